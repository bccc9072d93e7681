package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/db"
)

type fakeAnnotationStore struct {
	inserted []*db.DocumentAnnotation
	nextID   int64
	err      error
}

func (f *fakeAnnotationStore) InsertDocumentAnnotation(_ context.Context, a *db.DocumentAnnotation) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	cp := *a
	cp.AnnotationID = f.nextID
	f.inserted = append(f.inserted, &cp)
	return f.nextID, nil
}

func TestAnnotateDocument(t *testing.T) {
	store := &fakeAnnotationStore{}
	tool := NewAnnotateDocument(store)

	payload, err := tool.Decode(json.RawMessage(`{"documentRef":"doc-1","note":"PO confirmed by customer"}`))
	require.NoError(t, err)
	domain, err := tool.Execute(context.Background(), "conv-1", payload)
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "doc-1", store.inserted[0].DocumentRef)

	res, err := tool.Results().Success(domain)
	require.NoError(t, err)
	shaped := res.(AnnotateDocumentResult)
	require.NotNil(t, shaped.AnnotationID)
	assert.Equal(t, int64(1), *shaped.AnnotationID)
	require.NotNil(t, shaped.AnnotatedDocumentRef)
	assert.Equal(t, "doc-1", *shaped.AnnotatedDocumentRef)

	// The single-entry list is what the promoter merges into the
	// derived context's documentAnnotations.
	require.Len(t, shaped.DocumentAnnotations, 1)
	assert.Equal(t, DocumentAnnotationEntry{AnnotationID: 1, DocumentRef: "doc-1"}, shaped.DocumentAnnotations[0])
}

func TestAnnotateDocumentErrorShapeHasNoEntries(t *testing.T) {
	builder := NewAnnotateDocument(&fakeAnnotationStore{}).Results()

	shaped := builder.Error("Tool annotate_document failed to complete.").(AnnotateDocumentResult)
	assert.Nil(t, shaped.AnnotationID)
	assert.Nil(t, shaped.AnnotatedDocumentRef)
	assert.Empty(t, shaped.DocumentAnnotations)
}

func TestAnnotateDocumentRejectsBlankFields(t *testing.T) {
	tool := NewAnnotateDocument(&fakeAnnotationStore{})

	for _, raw := range []string{
		`{"documentRef":"","note":"x"}`,
		`{"documentRef":"doc-1","note":""}`,
	} {
		_, err := tool.Decode(json.RawMessage(raw))
		require.Error(t, err, raw)
	}
}
