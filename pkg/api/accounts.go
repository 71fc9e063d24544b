package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/storage"
	"github.com/oncoregistry/ingest/pkg/tasks"
)

// handleRegisterAccount creates a pending account for the caller. The
// identity comes from the verified token, never from the body, so a caller
// cannot register on someone else's behalf.
func (s *Server) handleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	principal, err := PrincipalFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var account model.Account
	if err := decodeBody(r, &account); err != nil {
		httputil.WriteError(w, err)
		return
	}
	account.Email = principal.Email
	if err := s.validator.Validate(&account); err != nil {
		httputil.WriteError(w, httputil.BadRequest(err.Error()))
		return
	}
	if err := s.accounts.Register(r.Context(), &account); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			httputil.WriteError(w, httputil.Conflict("account already registered"))
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, account)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Collection(storage.CollAccounts).Find(r.Context(), storage.Filter{}, nil)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if docs == nil {
		docs = []storage.Doc{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{itemsKey: docs})
}

// handleAccountInfo returns the caller's own account, including pending
// ones, so the portal can show registration status.
func (s *Server) handleAccountInfo(w http.ResponseWriter, r *http.Request) {
	account := AccountFrom(r.Context())
	if account == nil {
		httputil.WriteError(w, httputil.NotFound("no account registered for this identity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

// profilePatch carries the self-editable account fields.
type profilePatch struct {
	Organization string `json:"organization,omitempty"`
	FirstName    string `json:"first_n,omitempty"`
	LastName     string `json:"last_n,omitempty"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, err := PrincipalFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var patch profilePatch
	if err := decodeBody(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := s.accounts.UpdateProfile(r.Context(), principal.Email,
		patch.Organization, patch.FirstName, patch.LastName); err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, err := s.accounts.FindByEmail(r.Context(), principal.Email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if account == nil {
		httputil.WriteError(w, httputil.NotFound("no account registered for this identity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

// rolePatch carries an admin role change.
type rolePatch struct {
	Role model.Role `json:"role"`
}

var assignableRoles = map[model.Role]bool{
	model.RoleReader:    true,
	model.RoleUploader:  true,
	model.RoleLead:      true,
	model.RoleAdmin:     true,
	model.RoleDeveloper: true,
	model.RoleDisabled:  true,
}

// handleSetAccountRole applies an admin role change and triggers the
// provisioning side effects: granting upload rights provisions bucket
// access, disabling an account revokes it downstream.
func (s *Server) handleSetAccountRole(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch rolePatch
	if err := decodeBody(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !assignableRoles[patch.Role] {
		httputil.WriteError(w, httputil.BadRequest("unknown role"))
		return
	}

	account, err := s.accounts.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if account == nil {
		httputil.WriteError(w, httputil.NotFound("account not found"))
		return
	}
	if err := s.accounts.SetRole(r.Context(), id, patch.Role); err != nil {
		httputil.WriteError(w, err)
		return
	}

	switch {
	case patch.Role == model.RoleUploader && account.Role == model.RoleRegistrant:
		s.dispatcher.Dispatch(r.Context(), tasks.TaskChangeUploadPermission,
			[]interface{}{account.Email, true}, tasks.NewCorrelationID())
	case patch.Role == model.RoleDisabled:
		s.dispatcher.Dispatch(r.Context(), tasks.TaskDeactivateAccount,
			[]interface{}{account.Email}, tasks.NewCorrelationID())
	}

	account.Role = patch.Role
	if patch.Role != model.RoleDisabled {
		account.Approved = true
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}
