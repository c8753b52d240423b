// Package domain contains the authenticated principal issued by the hosted auth service.
package domain

import (
	"context"
	"strings"
)

// Principal is the identity carried by a verified access token.
type Principal struct {
	Subject string
	Email   string
	Role    string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || strings.TrimSpace(p.Subject) == "" {
		return Principal{}, false
	}
	return p, true
}
