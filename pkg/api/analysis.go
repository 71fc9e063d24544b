package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/storage"
)

func (s *Server) handleListAnalysis(w http.ResponseWriter, r *http.Request) {
	s.listResource(w, r, model.ResourceAnalysis, storage.CollAnalysis, nil)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.getResource(w, r, model.ResourceAnalysis, storage.CollAnalysis, id)
}

// handleCreateAnalysis records a new pipeline run. Status, start date and
// provenance are forced server-side so a client cannot back-date or
// pre-complete a run.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	principal, err := PrincipalFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var run model.AnalysisRun
	if err := decodeBody(r, &run); err != nil {
		httputil.WriteError(w, err)
		return
	}
	run.Status = model.JobStatus{Progress: model.ProgressInProgress}
	run.StartDate = time.Now().UTC().Format(time.RFC3339)
	run.StartedBy = principal.Email

	if err := s.validator.Validate(&run); err != nil {
		httputil.WriteError(w, httputil.BadRequest(err.Error()))
		return
	}
	if _, err := s.store.ParseRef(run.Trial); err != nil {
		httputil.WriteError(w, httputil.BadRequest("malformed trial reference"))
		return
	}
	if _, err := s.store.ParseRef(run.Assay); err != nil {
		httputil.WriteError(w, httputil.BadRequest("malformed assay reference"))
		return
	}

	doc, err := storage.ToDoc(run)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := s.store.Collection(storage.CollAnalysis).Insert(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(ids) > 0 {
		run.ID = ids[0]
	}
	httputil.WriteJSON(w, http.StatusCreated, run)
}
