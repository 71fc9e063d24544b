package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/oncoregistry/ingest/pkg/auth"
	"github.com/oncoregistry/ingest/pkg/authz"
	"github.com/oncoregistry/ingest/pkg/config"
	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/ingest"
	"github.com/oncoregistry/ingest/pkg/lifecycle"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
	"github.com/oncoregistry/ingest/pkg/schema"
	"github.com/oncoregistry/ingest/pkg/storage"
	"github.com/oncoregistry/ingest/pkg/tasks"
)

// allRoles lists every human role; resources gated with it rely on the
// approval and self-scoping checks instead of role membership.
var allRoles = []model.Role{
	model.RoleAdmin, model.RoleLead, model.RoleDeveloper, model.RoleReader,
	model.RoleUploader, model.RoleRegistrant, model.RoleSystem,
}

// allowedRoles declares, per resource, which roles may touch it at all.
// Finer scoping (grants, ownership) is applied by the filter compiler.
var allowedRoles = map[string][]model.Role{
	model.ResourceData: {
		model.RoleAdmin, model.RoleLead, model.RoleDeveloper,
		model.RoleReader, model.RoleUploader, model.RoleSystem,
	},
	model.ResourceIngestion: {
		model.RoleAdmin, model.RoleLead, model.RoleUploader, model.RoleSystem,
	},
	model.ResourceAnalysis: {
		model.RoleAdmin, model.RoleLead, model.RoleDeveloper,
		model.RoleReader, model.RoleSystem,
	},
	model.ResourceTrials: {
		model.RoleAdmin, model.RoleLead, model.RoleDeveloper,
		model.RoleReader, model.RoleUploader, model.RoleSystem,
	},
	model.ResourceAccounts:       {model.RoleAdmin, model.RoleSystem},
	model.ResourceAccountsCreate: allRoles,
	model.ResourceAccountsInfo:   allRoles,
	model.ResourceAccountsUpdate: allRoles,
	model.ResourceTest:           allRoles,
}

// dataEditRoles gates direct record insertion, reserved for the pipeline and
// administrators.
var dataEditRoles = []model.Role{model.RoleAdmin, model.RoleSystem}

// Server holds the wired dependencies behind the HTTP surface.
type Server struct {
	store      storage.Store
	verifier   auth.TokenVerifier
	accounts   *auth.AccountStore
	compiler   *authz.Compiler
	registrar  *ingest.Registrar
	lifecycle  *lifecycle.Manager
	dispatcher tasks.Dispatcher
	validator  *schema.Validator
	upload     config.UploadConfig
	metrics    *observability.Metrics
	log        logrus.FieldLogger
}

// Deps bundles the dependencies for NewServer.
type Deps struct {
	Store      storage.Store
	Verifier   auth.TokenVerifier
	Accounts   *auth.AccountStore
	Compiler   *authz.Compiler
	Registrar  *ingest.Registrar
	Lifecycle  *lifecycle.Manager
	Dispatcher tasks.Dispatcher
	Validator  *schema.Validator
	Upload     config.UploadConfig
	Metrics    *observability.Metrics
	Log        logrus.FieldLogger
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{
		store:      deps.Store,
		verifier:   deps.Verifier,
		accounts:   deps.Accounts,
		compiler:   deps.Compiler,
		registrar:  deps.Registrar,
		lifecycle:  deps.Lifecycle,
		dispatcher: deps.Dispatcher,
		validator:  deps.Validator,
		upload:     deps.Upload,
		metrics:    deps.Metrics,
		log:        deps.Log,
	}
}

// Router builds the HTTP router. Middleware applies in declaration order:
// request id, upload destination headers, then authentication on the API
// subtree; each route adds its access log and role gate.
func (s *Server) Router() *mux.Router {
	root := mux.NewRouter()
	root.Use(RequestIDMiddleware)
	root.Use(UploadDestinationMiddleware(s.upload))

	root.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		root.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := root.NewRoute().Subrouter()
	api.Use(AuthMiddleware(s.verifier))

	s.route(api, http.MethodGet, "/data", model.ResourceData, allowedRoles[model.ResourceData], s.handleListData)
	s.route(api, http.MethodPost, "/data", model.ResourceData, dataEditRoles, s.handleInsertData)
	s.route(api, http.MethodGet, "/data/{id}", model.ResourceData, allowedRoles[model.ResourceData], s.handleGetData)
	s.route(api, http.MethodPatch, "/data/{id}", model.ResourceData, allowedRoles[model.ResourceData], s.handlePatchData)

	s.route(api, http.MethodGet, "/ingestion", model.ResourceIngestion, allowedRoles[model.ResourceIngestion], s.handleListJobs)
	s.route(api, http.MethodPost, "/ingestion", model.ResourceIngestion, allowedRoles[model.ResourceIngestion], s.handleCreateJob)
	s.route(api, http.MethodGet, "/ingestion/{id}", model.ResourceIngestion, allowedRoles[model.ResourceIngestion], s.handleGetJob)
	s.route(api, http.MethodPatch, "/ingestion/{id}", model.ResourceIngestion, allowedRoles[model.ResourceIngestion], s.handlePatchJob)

	s.route(api, http.MethodGet, "/analysis", model.ResourceAnalysis, allowedRoles[model.ResourceAnalysis], s.handleListAnalysis)
	s.route(api, http.MethodPost, "/analysis", model.ResourceAnalysis, allowedRoles[model.ResourceAnalysis], s.handleCreateAnalysis)
	s.route(api, http.MethodGet, "/analysis/{id}", model.ResourceAnalysis, allowedRoles[model.ResourceAnalysis], s.handleGetAnalysis)

	s.route(api, http.MethodGet, "/trials", model.ResourceTrials, allowedRoles[model.ResourceTrials], s.handleListTrials)
	s.route(api, http.MethodPost, "/trials", model.ResourceTrials, dataEditRoles, s.handleCreateTrial)
	s.route(api, http.MethodGet, "/trials/{id}", model.ResourceTrials, allowedRoles[model.ResourceTrials], s.handleGetTrial)

	s.route(api, http.MethodPost, "/accounts", model.ResourceAccountsCreate, allowedRoles[model.ResourceAccountsCreate], s.handleRegisterAccount)
	s.route(api, http.MethodGet, "/accounts", model.ResourceAccounts, allowedRoles[model.ResourceAccounts], s.handleListAccounts)
	s.route(api, http.MethodGet, "/accounts/me", model.ResourceAccountsInfo, allowedRoles[model.ResourceAccountsInfo], s.handleAccountInfo)
	s.route(api, http.MethodPatch, "/accounts/me", model.ResourceAccountsUpdate, allowedRoles[model.ResourceAccountsUpdate], s.handleUpdateProfile)
	s.route(api, http.MethodPatch, "/accounts/{id}", model.ResourceAccounts, allowedRoles[model.ResourceAccounts], s.handleSetAccountRole)

	s.route(api, http.MethodGet, "/test", model.ResourceTest, allowedRoles[model.ResourceTest], s.handleTest)

	return root
}

// route registers one handler behind its access log and role gate.
func (s *Server) route(r *mux.Router, method, path, resource string, roles []model.Role, handler http.HandlerFunc) {
	wrapped := AccessLogMiddleware(s.log, s.metrics, resource)(
		RoleGate(s.accounts, resource, roles)(handler))
	r.Handle(path, wrapped).Methods(method)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTest is an authenticated no-op used by smoke checks; it bypasses
// query scoping entirely.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	principal, err := PrincipalFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"email":   principal.Email,
		"service": principal.Service,
	})
}
