package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
	"github.com/oncoregistry/ingest/pkg/storage"
)

// AccountStore reads and maintains account records. Every lookup goes to the
// store; no in-process caching, so authorization always sees fresh role and
// grant state.
type AccountStore struct {
	store storage.Store
	log   logrus.FieldLogger
}

// NewAccountStore creates an account store.
func NewAccountStore(store storage.Store, log logrus.FieldLogger) *AccountStore {
	return &AccountStore{store: store, log: log}
}

// FindByEmail returns the account for an email, or nil when none exists.
func (a *AccountStore) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	doc, err := a.accounts().FindOne(ctx, storage.Filter{"email": email})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up account %q: %w", email, err)
	}
	var account model.Account
	if err := storage.Decode(doc, &account); err != nil {
		return nil, fmt.Errorf("decode account %q: %w", email, err)
	}
	return &account, nil
}

// EnsureExists lazily creates a pending registrant account for a first-time
// portal login. Existing accounts are left untouched.
func (a *AccountStore) EnsureExists(ctx context.Context, email string) error {
	existing, err := a.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	account := model.Account{
		Email:      email,
		Username:   email,
		Role:       model.RoleRegistrant,
		Approved:   false,
		CreateDate: time.Now().UTC().Format(time.RFC3339),
	}
	doc, err := storage.ToDoc(account)
	if err != nil {
		return err
	}
	if _, err := a.accounts().Insert(ctx, doc); err != nil {
		return fmt.Errorf("create account for %q: %w", email, err)
	}
	observability.WithCategory(a.log, observability.CategoryAccount).
		WithField("email", email).Info("created pending account on first login")
	return nil
}

// GrantsFor returns the permission list for an email. A missing account has
// no grants.
func (a *AccountStore) GrantsFor(ctx context.Context, email string) ([]model.Grant, error) {
	account, err := a.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	return account.Permissions, nil
}

// Register inserts an explicitly registered account in the pending state.
// The role and approval flag are forced server-side.
func (a *AccountStore) Register(ctx context.Context, account *model.Account) error {
	existing, err := a.FindByEmail(ctx, account.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("account %q already exists", account.Email)
	}
	account.Role = model.RoleRegistrant
	account.Approved = false
	account.Username = account.Email
	account.CreateDate = time.Now().UTC().Format(time.RFC3339)

	doc, err := storage.ToDoc(account)
	if err != nil {
		return err
	}
	ids, err := a.accounts().Insert(ctx, doc)
	if err != nil {
		return fmt.Errorf("register account %q: %w", account.Email, err)
	}
	if len(ids) > 0 {
		account.ID = ids[0]
	}
	return nil
}

// UpdateProfile sets the caller-editable profile fields on their own
// account.
func (a *AccountStore) UpdateProfile(ctx context.Context, email, organization, firstName, lastName string) error {
	set := storage.Update{"organization": organization}
	if firstName != "" {
		set["first_n"] = firstName
	}
	if lastName != "" {
		set["last_n"] = lastName
	}
	err := a.accounts().Update(ctx, storage.Filter{"email": email}, storage.Update{"$set": set})
	if err != nil {
		return fmt.Errorf("update profile for %q: %w", email, err)
	}
	return nil
}

// SetRole applies an admin role change to an account. Assigning any active
// role doubles as approval; registrant and disabled stay unapproved.
func (a *AccountStore) SetRole(ctx context.Context, id string, role model.Role) error {
	set := storage.Update{"role": string(role)}
	if role != model.RoleRegistrant && role != model.RoleDisabled {
		set["approved"] = true
	}
	err := a.accounts().Update(ctx,
		storage.Filter{"_id": id},
		storage.Update{"$set": set})
	if err != nil {
		return fmt.Errorf("set role on account %s: %w", id, err)
	}
	return nil
}

// FindByID returns an account by document id, or nil when none exists.
func (a *AccountStore) FindByID(ctx context.Context, id string) (*model.Account, error) {
	doc, err := a.accounts().FindOne(ctx, storage.Filter{"_id": id})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up account %s: %w", id, err)
	}
	var account model.Account
	if err := storage.Decode(doc, &account); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", id, err)
	}
	return &account, nil
}

func (a *AccountStore) accounts() storage.Collection {
	return a.store.Collection(storage.CollAccounts)
}
