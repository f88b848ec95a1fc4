package auth

import "context"

type (
	identityKey struct{}
	headersKey  struct{}
)

// WithIdentity attaches the caller's identity. Tool handlers receive a
// context carrying the identity the gateway authorized.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the attached identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// WithHeaders attaches credential headers taken from a transport request.
func WithHeaders(ctx context.Context, headers map[string][]string) context.Context {
	return context.WithValue(ctx, headersKey{}, headers)
}

// HeadersFromContext returns the attached credential headers, or nil.
func HeadersFromContext(ctx context.Context) map[string][]string {
	h, _ := ctx.Value(headersKey{}).(map[string][]string)
	return h
}
