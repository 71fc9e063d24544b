// Package ingest validates and registers upload batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
	"github.com/oncoregistry/ingest/pkg/schema"
	"github.com/oncoregistry/ingest/pkg/storage"
)

// Registrar validates upload batches before they are admitted to the store.
type Registrar struct {
	store     storage.Store
	validator *schema.Validator
	metrics   *observability.Metrics
	log       logrus.FieldLogger
}

// NewRegistrar creates an upload registrar.
func NewRegistrar(store storage.Store, validator *schema.Validator, metrics *observability.Metrics, log logrus.FieldLogger) *Registrar {
	return &Registrar{store: store, validator: validator, metrics: metrics, log: log}
}

// RegisterBatch stamps provenance on the batch and validates it end to end:
// declaration shape, well-formed references, locked trials, then one batched
// duplicate query against visible data records. Any failure rejects the
// whole batch before a single record is admitted.
//
// The duplicate check is check-then-insert with no store-level uniqueness,
// so two concurrent identical batches can both pass validation. De-dup is
// best-effort by design.
func (r *Registrar) RegisterBatch(ctx context.Context, principal *model.Principal, job *model.UploadJob) error {
	if principal == nil {
		return httputil.Unauthorized("no authenticated principal")
	}

	// Server-stamped provenance; client-supplied values are never trusted.
	job.StartTime = time.Now().UTC().Format(time.RFC3339)
	job.StartedBy = principal.Email
	job.NumberOfFiles = len(job.Files)

	if err := r.validator.Validate(job); err != nil {
		return httputil.BadRequest(err.Error())
	}
	for i := range job.Files {
		decl := &job.Files[i]
		if _, err := r.store.ParseRef(decl.Trial); err != nil {
			return httputil.BadRequest(fmt.Sprintf("file %q: %v", decl.FileName, err))
		}
		if _, err := r.store.ParseRef(decl.Assay); err != nil {
			return httputil.BadRequest(fmt.Sprintf("file %q: %v", decl.FileName, err))
		}
	}

	if err := r.checkTrialLocks(ctx, job.Files); err != nil {
		return err
	}

	duplicates, err := r.findDuplicates(ctx, job.Files)
	if err != nil {
		// A failed existence check must not admit the batch.
		return fmt.Errorf("duplicate check failed: %w", err)
	}
	if len(duplicates) > 0 {
		if r.metrics != nil {
			r.metrics.DuplicateRejections.Inc()
		}
		observability.WithCategory(r.log, observability.CategoryRecord).
			WithField("started_by", job.StartedBy).
			WithField("duplicates", duplicates).
			Error("upload rejected, duplicate files found")
		return httputil.Conflict("upload aborted, duplicate files found: " + strings.Join(duplicates, ", "))
	}

	observability.WithCategory(r.log, observability.CategoryRecord).
		WithField("started_by", job.StartedBy).
		WithField("files", len(job.Files)).
		Info("upload job registered")
	return nil
}

// checkTrialLocks rejects the batch on the first locked trial any file
// references.
func (r *Registrar) checkTrialLocks(ctx context.Context, files []model.FileDeclaration) error {
	trials := r.store.Collection(storage.CollTrials)
	seen := make(map[string]bool)
	for _, decl := range files {
		if seen[decl.Trial] {
			continue
		}
		seen[decl.Trial] = true

		doc, err := trials.FindOne(ctx, storage.Filter{"_id": decl.Trial})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch trial %s: %w", decl.Trial, err)
		}
		if locked, _ := doc["locked"].(bool); locked {
			return httputil.Forbidden(fmt.Sprintf("trial %s is locked for new uploads", decl.Trial))
		}
	}
	return nil
}

// findDuplicates runs one disjunctive existence query over all declarations
// in the batch. Only visible records count: a hidden record with the same
// (trial, assay, file_name) does not block re-upload.
func (r *Registrar) findDuplicates(ctx context.Context, files []model.FileDeclaration) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	clauses := make([]storage.Filter, 0, len(files))
	for _, decl := range files {
		clauses = append(clauses, storage.Filter{
			"trial":      decl.Trial,
			"assay":      decl.Assay,
			"file_name":  decl.FileName,
			"visibility": true,
		})
	}

	docs, err := r.store.Collection(storage.CollData).
		Find(ctx, storage.Filter{"$or": clauses}, []string{"file_name"})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		if name, ok := doc["file_name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
