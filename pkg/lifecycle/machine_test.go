package lifecycle

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/storage"
	"github.com/oncoregistry/ingest/pkg/storage/memory"
)

type recordedDispatch struct {
	task string
	args []interface{}
}

type fakeDispatcher struct {
	calls []recordedDispatch
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, task string, args []interface{}, correlationID int64) {
	f.calls = append(f.calls, recordedDispatch{task: task, args: args})
}

func newTestManager(t *testing.T) (*Manager, storage.Store, *fakeDispatcher) {
	t.Helper()
	store := memory.New()
	dispatcher := &fakeDispatcher{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewManager(store, dispatcher, log), store, dispatcher
}

func boolPtr(b bool) *bool { return &b }

func TestHidingCascadesToChildren(t *testing.T) {
	m, store, dispatcher := newTestManager(t)
	derived := store.Collection("analysis")
	_, err := derived.Insert(context.Background(),
		storage.Doc{"_id": "c1"}, storage.Doc{"_id": "c2"}, storage.Doc{"_id": "c3"},
		storage.Doc{"_id": "unrelated"})
	require.NoError(t, err)

	record := model.DataRecord{
		ID: "d1", FileName: "one.fastq", Visibility: true,
		Children: []model.ChildRef{
			{ID: "c1", Resource: "analysis"},
			{ID: "c2", Resource: "analysis"},
			{ID: "c3", Resource: "analysis"},
		},
	}
	updated, err := m.ApplyPatch(context.Background(), record, model.DataPatch{Visibility: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, updated.Visibility)
	assert.Empty(t, dispatcher.calls)

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := derived.FindOne(context.Background(), storage.Filter{"_id": id})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	_, err = derived.FindOne(context.Background(), storage.Filter{"_id": "unrelated"})
	assert.NoError(t, err)
}

func TestRestoringVisibilityDoesNotCascade(t *testing.T) {
	m, store, _ := newTestManager(t)
	derived := store.Collection("analysis")
	_, err := derived.Insert(context.Background(), storage.Doc{"_id": "c1"})
	require.NoError(t, err)

	record := model.DataRecord{
		ID: "d1", Visibility: false,
		Children: []model.ChildRef{{ID: "c1", Resource: "analysis"}},
	}
	updated, err := m.ApplyPatch(context.Background(), record, model.DataPatch{Visibility: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Visibility)

	_, err = derived.FindOne(context.Background(), storage.Filter{"_id": "c1"})
	assert.NoError(t, err)
}

func TestUnchangedVisibilityDoesNotCascade(t *testing.T) {
	m, store, _ := newTestManager(t)
	derived := store.Collection("analysis")
	_, err := derived.Insert(context.Background(), storage.Doc{"_id": "c1"})
	require.NoError(t, err)

	record := model.DataRecord{
		ID: "d1", Visibility: false,
		Children: []model.ChildRef{{ID: "c1", Resource: "analysis"}},
	}
	_, err = m.ApplyPatch(context.Background(), record, model.DataPatch{Visibility: boolPtr(false)})
	require.NoError(t, err)

	_, err = derived.FindOne(context.Background(), storage.Filter{"_id": "c1"})
	assert.NoError(t, err)
}

func TestProcessedTransitionDispatchesPostprocessing(t *testing.T) {
	m, _, dispatcher := newTestManager(t)
	record := model.DataRecord{ID: "d1", FileName: "one.fastq", Visibility: true}

	updated, err := m.ApplyPatch(context.Background(), record, model.DataPatch{Processed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Processed)
	require.Len(t, dispatcher.calls, 1)
	assert.Contains(t, dispatcher.calls[0].task, "postprocessing")

	doc, ok := dispatcher.calls[0].args[0].(storage.Doc)
	require.True(t, ok)
	assert.Equal(t, true, doc["processed"])
}

func TestAlreadyProcessedDoesNotRedispatch(t *testing.T) {
	m, _, dispatcher := newTestManager(t)
	record := model.DataRecord{ID: "d1", Processed: true, Visibility: true}

	_, err := m.ApplyPatch(context.Background(), record, model.DataPatch{Processed: boolPtr(true)})
	require.NoError(t, err)
	assert.Empty(t, dispatcher.calls)
}

func TestAxesAreIndependent(t *testing.T) {
	// Hiding and processing in one patch cascades and dispatches.
	m, store, dispatcher := newTestManager(t)
	derived := store.Collection("analysis")
	_, err := derived.Insert(context.Background(), storage.Doc{"_id": "c1"})
	require.NoError(t, err)

	record := model.DataRecord{
		ID: "d1", Visibility: true,
		Children: []model.ChildRef{{ID: "c1", Resource: "analysis"}},
	}
	updated, err := m.ApplyPatch(context.Background(), record, model.DataPatch{
		Visibility: boolPtr(false),
		Processed:  boolPtr(true),
	})
	require.NoError(t, err)
	assert.False(t, updated.Visibility)
	assert.True(t, updated.Processed)
	assert.Len(t, dispatcher.calls, 1)

	_, err = derived.FindOne(context.Background(), storage.Filter{"_id": "c1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
