// Package identity models the acting principal and verifies the bearer
// tokens that carry it.
package identity

import (
	"context"
	"strings"
)

// Anonymous is the label used when a principal has neither name nor email.
const Anonymous = "Anonymous"

// Principal is the authenticated identity performing an action.
type Principal struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Authenticated reports whether the principal carries an id.
func (p Principal) Authenticated() bool { return strings.TrimSpace(p.ID) != "" }

// Label picks the display label for a principal: name, then email, then
// Anonymous.
func Label(name, email string) string {
	if s := strings.TrimSpace(name); s != "" {
		return s
	}
	if s := strings.TrimSpace(email); s != "" {
		return s
	}
	return Anonymous
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.Authenticated()
}
