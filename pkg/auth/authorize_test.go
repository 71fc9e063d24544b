package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/storage"
	"github.com/oncoregistry/ingest/pkg/storage/memory"
)

func newTestAccounts(t *testing.T) (*AccountStore, storage.Store) {
	t.Helper()
	store := memory.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewAccountStore(store, log), store
}

func insertAccount(t *testing.T, store storage.Store, account model.Account) {
	t.Helper()
	doc, err := storage.ToDoc(account)
	require.NoError(t, err)
	_, err = store.Collection(storage.CollAccounts).Insert(context.Background(), doc)
	require.NoError(t, err)
}

func TestAuthorizeApprovedRole(t *testing.T) {
	accounts, store := newTestAccounts(t)
	insertAccount(t, store, model.Account{Email: "ana@example.com", Role: model.RoleUploader, Approved: true})

	account, err := accounts.Authorize(context.Background(),
		&model.Principal{Email: "ana@example.com"},
		[]model.Role{model.RoleUploader, model.RoleAdmin}, model.ResourceIngestion)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, model.RoleUploader, account.Role)
	assert.NotEmpty(t, account.LastAccess)
}

func TestAuthorizeNilPrincipal(t *testing.T) {
	accounts, _ := newTestAccounts(t)
	_, err := accounts.Authorize(context.Background(), nil, []model.Role{model.RoleAdmin}, model.ResourceData)
	assertAuthStatus(t, err, http.StatusUnauthorized)
}

func TestAuthorizeUnknownIdentity(t *testing.T) {
	accounts, _ := newTestAccounts(t)
	_, err := accounts.Authorize(context.Background(),
		&model.Principal{Email: "ghost@example.com"},
		[]model.Role{model.RoleReader}, model.ResourceData)
	assertAuthStatus(t, err, http.StatusUnauthorized)
}

func TestAuthorizeUnknownIdentityMayRegister(t *testing.T) {
	accounts, _ := newTestAccounts(t)
	account, err := accounts.Authorize(context.Background(),
		&model.Principal{Email: "ghost@example.com"},
		[]model.Role{model.RoleRegistrant}, model.ResourceAccountsCreate)
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestAuthorizePendingAccount(t *testing.T) {
	accounts, store := newTestAccounts(t)
	insertAccount(t, store, model.Account{Email: "ana@example.com", Role: model.RoleRegistrant, Approved: false})

	_, err := accounts.Authorize(context.Background(),
		&model.Principal{Email: "ana@example.com"},
		[]model.Role{model.RoleRegistrant}, model.ResourceData)
	assertAuthStatus(t, err, http.StatusUnauthorized)

	account, err := accounts.Authorize(context.Background(),
		&model.Principal{Email: "ana@example.com"},
		[]model.Role{model.RoleRegistrant}, model.ResourceAccountsInfo)
	require.NoError(t, err)
	assert.NotNil(t, account)
}

func TestAuthorizeRoleNotAllowed(t *testing.T) {
	accounts, store := newTestAccounts(t)
	insertAccount(t, store, model.Account{Email: "ana@example.com", Role: model.RoleReader, Approved: true})

	_, err := accounts.Authorize(context.Background(),
		&model.Principal{Email: "ana@example.com"},
		[]model.Role{model.RoleAdmin}, model.ResourceAccounts)
	assertAuthStatus(t, err, http.StatusForbidden)
}

func TestAuthorizeServicePrincipal(t *testing.T) {
	accounts, _ := newTestAccounts(t)
	principal := &model.Principal{Email: model.SystemIdentity, Service: true}

	account, err := accounts.Authorize(context.Background(), principal,
		[]model.Role{model.RoleAdmin, model.RoleSystem}, model.ResourceData)
	require.NoError(t, err)
	assert.Equal(t, model.RoleSystem, account.Role)

	_, err = accounts.Authorize(context.Background(), principal,
		[]model.Role{model.RoleAdmin}, model.ResourceAccounts)
	assertAuthStatus(t, err, http.StatusForbidden)
}

func TestAuthorizeSkipsLastAccessOnInfo(t *testing.T) {
	accounts, store := newTestAccounts(t)
	insertAccount(t, store, model.Account{Email: "ana@example.com", Role: model.RoleReader, Approved: true})

	account, err := accounts.Authorize(context.Background(),
		&model.Principal{Email: "ana@example.com"},
		[]model.Role{model.RoleReader}, model.ResourceAccountsInfo)
	require.NoError(t, err)
	assert.Empty(t, account.LastAccess)
}

func TestEnsureExistsIdempotent(t *testing.T) {
	accounts, store := newTestAccounts(t)
	require.NoError(t, accounts.EnsureExists(context.Background(), "ana@example.com"))
	require.NoError(t, accounts.EnsureExists(context.Background(), "ana@example.com"))

	docs, err := store.Collection(storage.CollAccounts).Find(context.Background(),
		storage.Filter{"email": "ana@example.com"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, string(model.RoleRegistrant), docs[0]["role"])
	assert.Equal(t, false, docs[0]["approved"])
}

func TestRegisterRejectsExisting(t *testing.T) {
	accounts, _ := newTestAccounts(t)
	first := model.Account{Email: "ana@example.com"}
	require.NoError(t, accounts.Register(context.Background(), &first))
	assert.Equal(t, model.RoleRegistrant, first.Role)
	assert.False(t, first.Approved)
	assert.NotEmpty(t, first.ID)

	second := model.Account{Email: "ana@example.com"}
	assert.Error(t, accounts.Register(context.Background(), &second))
}

func TestSetRoleApproves(t *testing.T) {
	accounts, _ := newTestAccounts(t)
	account := model.Account{Email: "ana@example.com"}
	require.NoError(t, accounts.Register(context.Background(), &account))

	require.NoError(t, accounts.SetRole(context.Background(), account.ID, model.RoleUploader))
	updated, err := accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, model.RoleUploader, updated.Role)
	assert.True(t, updated.Approved)

	require.NoError(t, accounts.SetRole(context.Background(), account.ID, model.RoleDisabled))
	updated, err = accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDisabled, updated.Role)
}

func TestGrantsForMissingAccount(t *testing.T) {
	accounts, _ := newTestAccounts(t)
	grants, err := accounts.GrantsFor(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func assertAuthStatus(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	var se httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, want, se.HTTPStatus())
}
