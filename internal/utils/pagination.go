// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampLimit parses a page-size query value. Missing, malformed, or
// non-positive values yield def; values above ceiling are capped.
//
//	utils.ClampLimit("", 100, 500)     // 100
//	utils.ClampLimit("20", 100, 500)   // 20
//	utils.ClampLimit("9000", 100, 500) // 500
func ClampLimit(raw string, def, ceiling int) int {
	n := AtoiDefault(raw, def)
	if n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}
