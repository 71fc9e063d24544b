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

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.listResource(w, r, model.ResourceIngestion, storage.CollIngestion, nil)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.getResource(w, r, model.ResourceIngestion, storage.CollIngestion, id)
}

// handleCreateJob registers an upload batch. The whole batch is validated
// before any of it is admitted; a single bad or duplicate declaration
// rejects everything.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	principal, err := PrincipalFrom(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var job model.UploadJob
	if err := decodeBody(r, &job); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := s.registrar.RegisterBatch(r.Context(), principal, &job); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if job.Status.Progress == "" {
		job.Status.Progress = model.ProgressInProgress
	}

	doc, err := storage.ToDoc(job)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := s.store.Collection(storage.CollIngestion).Insert(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(ids) > 0 {
		job.ID = ids[0]
	}
	httputil.WriteJSON(w, http.StatusCreated, job)
}

// jobPatch carries the mutable fields of an upload job.
type jobPatch struct {
	Status  *model.JobStatus `json:"status,omitempty"`
	EndTime string           `json:"end_time,omitempty"`
}

// handlePatchJob updates an upload job's status. Completing a job hands its
// staged files to the pipeline mover.
func (s *Server) handlePatchJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// The ownership scope applies to writes too; patching someone else's
	// job looks like a missing document.
	filter, err := s.scopedFilter(r, model.ResourceIngestion, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter["_id"] = id
	jobs := s.store.Collection(storage.CollIngestion)
	doc, err := jobs.FindOne(r.Context(), filter)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteError(w, httputil.NotFound("upload job not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var patch jobPatch
	if err := decodeBody(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	set := storage.Update{}
	if patch.Status != nil {
		if err := s.validator.Validate(patch.Status); err != nil {
			httputil.WriteError(w, httputil.BadRequest(err.Error()))
			return
		}
		status, err := storage.ToDoc(patch.Status)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		set["status"] = status
		doc["status"] = status
	}
	endTime := patch.EndTime
	if endTime == "" && patch.Status != nil && patch.Status.Progress == model.ProgressCompleted {
		endTime = time.Now().UTC().Format(time.RFC3339)
	}
	if endTime != "" {
		set["end_time"] = endTime
		doc["end_time"] = endTime
	}
	if len(set) > 0 {
		if err := jobs.Update(r.Context(), storage.Filter{"_id": id}, storage.Update{"$set": set}); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	if patch.Status != nil && patch.Status.Progress == model.ProgressCompleted {
		s.dispatcher.Dispatch(r.Context(), tasks.TaskMoveFilesFromStaging,
			[]interface{}{doc, s.upload.Destination()}, tasks.NewCorrelationID())
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}
