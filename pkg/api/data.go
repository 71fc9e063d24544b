package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/storage"
	"github.com/oncoregistry/ingest/pkg/tasks"
)

// handleListData lists visible data records within the caller's grants.
// Hidden records never appear in list results regardless of grants.
func (s *Server) handleListData(w http.ResponseWriter, r *http.Request) {
	s.listResource(w, r, model.ResourceData, storage.CollData, storage.Filter{"visibility": true})
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.getResource(w, r, model.ResourceData, storage.CollData, id)
}

// handlePatchData applies visibility and processed transitions to one
// record. The caller must hold a grant covering the document, checked
// against the document itself rather than the query filter.
func (s *Server) handlePatchData(w http.ResponseWriter, r *http.Request) {
	principal, err := PrincipalFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id := mux.Vars(r)["id"]

	if !principal.Service {
		grants, err := s.accounts.GrantsFor(r.Context(), principal.Email)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		allowed, err := s.compiler.CheckDocumentAccess(r.Context(), storage.CollData, id, grants)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if !allowed {
			httputil.WriteError(w, httputil.Unauthorized("not authorized to modify this record"))
			return
		}
	}

	doc, err := s.store.Collection(storage.CollData).FindOne(r.Context(), storage.Filter{"_id": id})
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteError(w, httputil.NotFound("document not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var original model.DataRecord
	if err := storage.Decode(doc, &original); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var patch model.DataPatch
	if err := decodeBody(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := s.lifecycle.ApplyPatch(r.Context(), original, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = s.store.Collection(storage.CollData).Update(r.Context(),
		storage.Filter{"_id": id},
		storage.Update{"$set": storage.Update{
			"visibility": updated.Visibility,
			"processed":  updated.Processed,
		}})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// handleInsertData admits one record directly, bypassing the upload flow.
// Reserved for the pipeline landing processed outputs.
func (s *Server) handleInsertData(w http.ResponseWriter, r *http.Request) {
	var record model.DataRecord
	if err := decodeBody(r, &record); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := s.validator.Validate(&record); err != nil {
		httputil.WriteError(w, httputil.BadRequest(err.Error()))
		return
	}
	if _, err := s.store.ParseRef(record.Trial); err != nil {
		httputil.WriteError(w, httputil.BadRequest("malformed trial reference"))
		return
	}
	if _, err := s.store.ParseRef(record.Assay); err != nil {
		httputil.WriteError(w, httputil.BadRequest("malformed assay reference"))
		return
	}

	// New records always start visible and unprocessed.
	record.Processed = false
	record.Visibility = true
	if record.Children == nil {
		record.Children = []model.ChildRef{}
	}
	if record.DateCreated == "" {
		record.DateCreated = time.Now().UTC().Format(time.RFC3339)
	}

	doc, err := storage.ToDoc(record)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := s.store.Collection(storage.CollData).Insert(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(ids) > 0 {
		record.ID = ids[0]
		doc["_id"] = ids[0]
	}

	s.dispatcher.Dispatch(r.Context(), tasks.TaskManageWorkflows,
		[]interface{}{doc}, tasks.NewCorrelationID())

	httputil.WriteJSON(w, http.StatusCreated, record)
}
