// Package lifecycle governs the visibility and processed transitions of a
// data record.
//
// Visibility and processed are independent booleans: a record can be hidden
// and unprocessed at the same time. Revoking visibility cascades a
// best-effort delete over the record's children; flipping processed to true
// hands the record to the postprocessing pipeline.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
	"github.com/oncoregistry/ingest/pkg/storage"
	"github.com/oncoregistry/ingest/pkg/tasks"
)

// Manager applies data record state transitions and their side effects.
type Manager struct {
	store      storage.Store
	dispatcher tasks.Dispatcher
	log        logrus.FieldLogger
}

// NewManager creates a lifecycle manager.
func NewManager(store storage.Store, dispatcher tasks.Dispatcher, log logrus.FieldLogger) *Manager {
	return &Manager{store: store, dispatcher: dispatcher, log: log}
}

// ApplyPatch runs the side effects of a data record patch against its
// original state, then returns the updated record. The caller persists the
// field changes; this method owns cascades and dispatches.
func (m *Manager) ApplyPatch(ctx context.Context, original model.DataRecord, patch model.DataPatch) (model.DataRecord, error) {
	updated := original

	if patch.Visibility != nil && *patch.Visibility != original.Visibility {
		updated.Visibility = *patch.Visibility
		if !*patch.Visibility {
			m.cascadeDelete(ctx, original)
		}
	}

	if patch.Processed != nil && *patch.Processed && !original.Processed {
		updated.Processed = true
		doc, err := storage.ToDoc(updated)
		if err != nil {
			return updated, fmt.Errorf("encode record for postprocessing: %w", err)
		}
		m.dispatcher.Dispatch(ctx, tasks.TaskPostprocessing,
			[]interface{}{doc}, tasks.NewCorrelationID())
	}

	return updated, nil
}

// cascadeDelete removes every child of a hidden record, one delete per
// (resource, id). Individual failures are logged and skipped: an orphaned
// child is preferable to a parent stuck visible. The parent itself is never
// deleted.
func (m *Manager) cascadeDelete(ctx context.Context, record model.DataRecord) {
	cascadeLog := observability.WithCategory(m.log, observability.CategoryRecord).
		WithField("file_name", record.FileName).
		WithField("record", record.ID)

	for _, child := range record.Children {
		err := m.store.Collection(child.Resource).Remove(ctx, storage.Filter{"_id": child.ID})
		if err != nil {
			cascadeLog.WithError(err).
				WithField("child", child.ID).
				WithField("child_resource", child.Resource).
				Error("failed to delete derived record")
			continue
		}
	}
	cascadeLog.WithField("children", len(record.Children)).Info("visibility revoked, derived records removed")
}
