package auth

import (
	"context"
	"time"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
	"github.com/oncoregistry/ingest/pkg/storage"
)

// Authorize gates a principal against the roles allowed for a resource.
//
// The check is two-stage. A missing account succeeds vacuously only on the
// account-creation resource (first-time registration). An unapproved account
// is allowed only the self-service resources, so pending users can see their
// own status without being authorized for data access. An approved account
// must hold one of the allowed roles; success touches last_access, except on
// the self-info resource where client polling would amplify writes.
func (a *AccountStore) Authorize(ctx context.Context, principal *model.Principal, allowedRoles []model.Role, resource string) (*model.Account, error) {
	if principal == nil {
		return nil, httputil.Unauthorized("no authenticated principal")
	}

	// Machine tokens act as the system identity without an account row.
	if principal.Service {
		if !roleAllowed(model.RoleSystem, allowedRoles) {
			return nil, httputil.Forbidden("system identity not allowed on this resource")
		}
		return &model.Account{
			Email:    principal.Email,
			Username: principal.Email,
			Role:     model.RoleSystem,
			Approved: true,
		}, nil
	}

	account, err := a.FindByEmail(ctx, principal.Email)
	if err != nil {
		return nil, err
	}
	authLog := observability.WithCategory(a.log, observability.CategoryAuth).
		WithField("email", principal.Email).
		WithField("resource", resource)

	if account == nil {
		if resource == model.ResourceAccountsCreate {
			return nil, nil
		}
		authLog.Info("authorization denied, no account")
		return nil, httputil.Unauthorized("no account registered for this identity")
	}

	if !account.Approved {
		if resource == model.ResourceAccountsInfo || resource == model.ResourceAccountsCreate {
			return account, nil
		}
		authLog.Info("authorization denied, registration pending")
		return nil, httputil.Unauthorized("account registration is pending approval")
	}

	if !roleAllowed(account.Role, allowedRoles) {
		authLog.WithField("role", account.Role).Info("authorization denied, role not allowed")
		return nil, httputil.Forbidden("role not permitted on this resource")
	}

	if resource != model.ResourceAccountsInfo {
		a.touchLastAccess(ctx, account)
	}
	return account, nil
}

func roleAllowed(role model.Role, allowed []model.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// touchLastAccess updates the account's last access time. Failures are
// logged and dropped; a stale timestamp must not fail the request.
func (a *AccountStore) touchLastAccess(ctx context.Context, account *model.Account) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := a.accounts().Update(ctx,
		storage.Filter{"email": account.Email},
		storage.Update{"$set": storage.Update{"last_access": now}})
	if err != nil {
		observability.WithCategory(a.log, observability.CategoryAccount).
			WithField("email", account.Email).
			WithError(err).Warn("failed to update last access")
		return
	}
	account.LastAccess = now
}
