package services

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeLine trims s and collapses inner whitespace.
func normalizeLine(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// clipRunes shortens s to at most max runes.
func clipRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// checkLength rejects text longer than max runes.
func checkLength(field, s string, max int) error {
	if max > 0 && utf8.RuneCountInString(s) > max {
		return invalid("%s exceeds %d characters", field, max)
	}
	return nil
}

// checkMediaURL accepts an empty string or an absolute http(s) URL.
func checkMediaURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", invalid("%s must be an absolute http(s) URL", field)
	}
	return u.String(), nil
}
