package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/storage"
)

func (s *Server) handleListTrials(w http.ResponseWriter, r *http.Request) {
	s.listResource(w, r, model.ResourceTrials, storage.CollTrials, nil)
}

func (s *Server) handleGetTrial(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.getResource(w, r, model.ResourceTrials, storage.CollTrials, id)
}

func (s *Server) handleCreateTrial(w http.ResponseWriter, r *http.Request) {
	var trial model.Trial
	if err := decodeBody(r, &trial); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := s.validator.Validate(&trial); err != nil {
		httputil.WriteError(w, httputil.BadRequest(err.Error()))
		return
	}
	if trial.Collaborators == nil {
		trial.Collaborators = []string{}
	}

	doc, err := storage.ToDoc(trial)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := s.store.Collection(storage.CollTrials).Insert(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(ids) > 0 {
		trial.ID = ids[0]
	}
	httputil.WriteJSON(w, http.StatusCreated, trial)
}
