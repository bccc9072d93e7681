package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolgate/toolgate/internal/core"
	"github.com/toolgate/toolgate/internal/db"
)

// AnnotateDocumentArgs is the agent-facing argument schema for attaching a
// note to a document referenced in the conversation's input context.
type AnnotateDocumentArgs struct {
	DocumentRef string `json:"documentRef"`
	Note        string `json:"note"`
}

func (a AnnotateDocumentArgs) Validate() error {
	if a.DocumentRef == "" {
		return fmt.Errorf("documentRef: must not be blank")
	}
	if a.Note == "" {
		return fmt.Errorf("note: must not be blank")
	}
	return nil
}

// DocumentAnnotationPayload is the internal representation.
type DocumentAnnotationPayload struct {
	DocumentRef string
	Note        string
}

func (a AnnotateDocumentArgs) ToInternal() DocumentAnnotationPayload {
	return DocumentAnnotationPayload{DocumentRef: a.DocumentRef, Note: a.Note}
}

// DocumentAnnotationEntry is one annotation as it appears in the derived
// context's documentAnnotations list. The list accumulates across a turn:
// repeated annotate calls append entries rather than replacing each other.
type DocumentAnnotationEntry struct {
	AnnotationID int64  `json:"annotationId"`
	DocumentRef  string `json:"documentRef"`
}

// AnnotateDocumentResult is the minimal model-facing result shape: the
// continuation identifiers plus the single-entry annotation list the
// promoter merges forward.
type AnnotateDocumentResult struct {
	Message              string                    `json:"message"`
	AnnotationID         *int64                    `json:"annotationId"`
	AnnotatedDocumentRef *string                   `json:"annotatedDocumentRef"`
	DocumentAnnotations  []DocumentAnnotationEntry `json:"documentAnnotations"`
}

type savedAnnotation struct {
	id  int64
	ref string
}

// AnnotateDocument persists a document annotation.
type AnnotateDocument struct {
	schema *core.ArgSchema[AnnotateDocumentArgs]
	store  AnnotationStore
}

func NewAnnotateDocument(store AnnotationStore) *AnnotateDocument {
	return &AnnotateDocument{
		schema: core.MustArgSchema[AnnotateDocumentArgs](AnnotateDocumentName),
		store:  store,
	}
}

func (t *AnnotateDocument) Name() string { return AnnotateDocumentName }

func (t *AnnotateDocument) Schema() map[string]any { return t.schema.Schema() }

func (t *AnnotateDocument) Decode(raw json.RawMessage) (any, error) {
	args, err := t.schema.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	return args.ToInternal(), nil
}

func (t *AnnotateDocument) Execute(ctx context.Context, conversationID string, payload any) (any, error) {
	p, ok := payload.(DocumentAnnotationPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}
	id, err := t.store.InsertDocumentAnnotation(ctx, &db.DocumentAnnotation{
		ConversationID: conversationID,
		DocumentRef:    p.DocumentRef,
		Note:           p.Note,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return savedAnnotation{id: id, ref: p.DocumentRef}, nil
}

func (t *AnnotateDocument) Results() core.ResultBuilder { return annotateDocumentResults{} }

type annotateDocumentResults struct{}

func (annotateDocumentResults) Success(domain any) (any, error) {
	d, ok := domain.(savedAnnotation)
	if !ok {
		return nil, fmt.Errorf("unexpected domain value %T", domain)
	}
	id := d.id
	ref := d.ref
	return AnnotateDocumentResult{
		Message:              "Annotation saved.",
		AnnotationID:         &id,
		AnnotatedDocumentRef: &ref,
		DocumentAnnotations: []DocumentAnnotationEntry{
			{AnnotationID: id, DocumentRef: ref},
		},
	}, nil
}

func (annotateDocumentResults) Error(message string) any {
	return AnnotateDocumentResult{Message: message}
}
