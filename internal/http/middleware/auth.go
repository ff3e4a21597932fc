// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the calling principal. A request carries its identity as
// "Authorization: Bearer <jwt>"; in development the X-User-ID and X-User-Name
// headers may be trusted instead. Requests without credentials continue as
// anonymous so that public reads (listings, ratings, profiles) work, and
// handlers decide which operations need a signed-in caller.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/summerjobs-backend/internal/identity"
)

// Gin context keys set by Authenticate.
const (
	CtxUserID    = "userID"
	CtxUserLabel = "userLabel"
)

// Dev identity headers, honoured only when AuthOptions.DevHeaders is set.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (identity.Principal, error)
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Verifier checks bearer tokens. Nil rejects every bearer token.
	Verifier TokenVerifier
	// DevHeaders trusts X-User-ID / X-User-Name when no token is sent.
	DevHeaders bool
}

// Authenticate attaches the caller's principal to the Gin context and the
// request context. An invalid bearer token is rejected with 401; a missing
// one leaves the request anonymous.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p identity.Principal

		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if opts.Verifier == nil {
				abortUnauthorized(c, "bearer tokens are not accepted")
				return
			}
			v, err := opts.Verifier.Verify(token)
			if err != nil {
				abortUnauthorized(c, "invalid or expired token")
				return
			}
			p = v
		} else if opts.DevHeaders {
			if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
				p = identity.Principal{ID: uid, Label: identity.Label(c.GetHeader(HeaderUserName), "")}
			}
		}

		if p.Authenticated() {
			c.Set(CtxUserID, p.ID)
			c.Set(CtxUserLabel, p.Label)
			c.Request = c.Request.WithContext(identity.WithPrincipal(c.Request.Context(), p))
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal attached by Authenticate, or the zero
// (anonymous) principal.
func PrincipalFrom(c *gin.Context) identity.Principal {
	if c.Request != nil {
		if p, ok := identity.FromContext(c.Request.Context()); ok {
			return p
		}
	}
	uid := c.GetString(CtxUserID)
	if uid == "" {
		return identity.Principal{}
	}
	return identity.Principal{ID: uid, Label: c.GetString(CtxUserLabel)}
}

func bearerToken(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="summerjobs"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
