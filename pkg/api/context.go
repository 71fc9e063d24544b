package api

import (
	"context"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	accountKey   contextKey = "account"
	requestIDKey contextKey = "request_id"
)

// WithPrincipal attaches the authenticated principal to the context.
func WithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFrom returns the request principal. The error return makes the
// dependency explicit: a handler reached without authentication fails here
// instead of silently seeing everything.
func PrincipalFrom(ctx context.Context) (*model.Principal, error) {
	principal, ok := ctx.Value(principalKey).(*model.Principal)
	if !ok || principal == nil {
		return nil, httputil.Unauthorized("no authenticated principal")
	}
	return principal, nil
}

// WithAccount attaches the authorized account to the context. The account
// may be nil on the first-time registration path.
func WithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFrom returns the authorized account, or nil when none was resolved.
func AccountFrom(ctx context.Context) *model.Account {
	account, _ := ctx.Value(accountKey).(*model.Account)
	return account
}

// WithRequestID attaches the request id to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the request id, or the empty string.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
