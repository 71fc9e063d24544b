package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncoregistry/ingest/pkg/storage"
)

func seed(t *testing.T) storage.Collection {
	t.Helper()
	store := New()
	coll := store.Collection("data")
	_, err := coll.Insert(context.Background(),
		storage.Doc{"_id": "a", "trial": "t1", "assay": "wes", "file_name": "one.fastq", "visibility": true},
		storage.Doc{"_id": "b", "trial": "t1", "assay": "rna", "file_name": "two.fastq", "visibility": true},
		storage.Doc{"_id": "c", "trial": "t2", "assay": "wes", "file_name": "three.fastq", "visibility": false},
	)
	require.NoError(t, err)
	return coll
}

func TestFindEquality(t *testing.T) {
	coll := seed(t)
	docs, err := coll.Find(context.Background(), storage.Filter{"trial": "t1"}, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestFindOr(t *testing.T) {
	coll := seed(t)
	docs, err := coll.Find(context.Background(), storage.Filter{
		"$or": []storage.Filter{
			{"trial": "t1", "assay": "wes"},
			{"trial": "t2"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestFindIn(t *testing.T) {
	coll := seed(t)
	docs, err := coll.Find(context.Background(), storage.Filter{
		"assay": storage.Filter{"$in": []interface{}{"rna", "atac"}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0]["_id"])
}

func TestArrayContains(t *testing.T) {
	store := New()
	coll := store.Collection("trials")
	_, err := coll.Insert(context.Background(),
		storage.Doc{"_id": "t1", "collaborators": []interface{}{"ana@example.com", "bo@example.com"}},
		storage.Doc{"_id": "t2", "collaborators": []interface{}{"bo@example.com"}},
	)
	require.NoError(t, err)

	docs, err := coll.Find(context.Background(), storage.Filter{"collaborators": "ana@example.com"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "t1", docs[0]["_id"])
}

func TestSentinelMatchesNothing(t *testing.T) {
	coll := seed(t)
	docs, err := coll.Find(context.Background(), storage.Filter{"find": "nothing"}, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestProjectionKeepsID(t *testing.T) {
	coll := seed(t)
	docs, err := coll.Find(context.Background(), storage.Filter{"trial": "t1"}, []string{"file_name"})
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	for _, doc := range docs {
		assert.Contains(t, doc, "_id")
		assert.Contains(t, doc, "file_name")
		assert.NotContains(t, doc, "trial")
	}
}

func TestUpdateSet(t *testing.T) {
	coll := seed(t)
	err := coll.Update(context.Background(),
		storage.Filter{"_id": "a"},
		storage.Update{"$set": storage.Update{"visibility": false}})
	require.NoError(t, err)

	doc, err := coll.FindOne(context.Background(), storage.Filter{"_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, false, doc["visibility"])
}

func TestUpdateRejectsUnknownOperator(t *testing.T) {
	coll := seed(t)
	err := coll.Update(context.Background(),
		storage.Filter{"_id": "a"},
		storage.Update{"$inc": storage.Update{"n": 1}})
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	coll := seed(t)
	require.NoError(t, coll.Remove(context.Background(), storage.Filter{"_id": "b"}))

	_, err := coll.FindOne(context.Background(), storage.Filter{"_id": "b"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertAssignsID(t *testing.T) {
	store := New()
	coll := store.Collection("data")
	ids, err := coll.Insert(context.Background(), storage.Doc{"file_name": "x"})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestFindOneClonesDocument(t *testing.T) {
	coll := seed(t)
	doc, err := coll.FindOne(context.Background(), storage.Filter{"_id": "a"})
	require.NoError(t, err)
	doc["trial"] = "mutated"

	again, err := coll.FindOne(context.Background(), storage.Filter{"_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, "t1", again["trial"])
}

func TestParseRef(t *testing.T) {
	store := New()
	_, err := store.ParseRef("")
	assert.Error(t, err)
	_, err = store.ParseRef("has space")
	assert.Error(t, err)
	ref, err := store.ParseRef("abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", ref)
}
