// Package tools defines the order-desk tools exposed to the agent: their
// external argument schemas, the transforms to the internal storage
// representation, the backend actions, and the minimal result shapes
// returned to the model.
package tools

import (
	"context"

	"github.com/toolgate/toolgate/internal/core"
	"github.com/toolgate/toolgate/internal/db"
)

// Tool names as issued by the agent runtime.
const (
	SaveOrderDraftName      = "save_order_draft"
	LookupItemName          = "lookup_item"
	GenerateOrderReportName = "generate_order_report"
	AnnotateDocumentName    = "annotate_document"
)

// Value domains. The active subset governs new writes; the deprecated
// remainder keeps historical records valid and is never deleted.
var (
	UnitsOfMeasure   = core.NewValueSet("uom", []string{"BX", "CS", "EA", "PK"}, []string{"DZ", "GR"})
	DraftStatuses    = core.NewValueSet("status", []string{"draft", "submitted"}, []string{"legacy_hold"})
	ConfidenceLevels = core.NewValueSet("confidence", []string{"high", "low", "medium"}, nil)
)

// OrderStore is the backend surface the order tools need.
// *db.DB implements it.
type OrderStore interface {
	InsertOrderRequest(ctx context.Context, o *db.OrderRequest) (int64, error)
	ListOrderRequestsByConversation(ctx context.Context, conversationID string) ([]*db.OrderRequest, error)
}

// CatalogStore resolves item numbers. *db.DB implements it.
type CatalogStore interface {
	GetCatalogItemByNum(ctx context.Context, itemNum string) (*db.CatalogItem, error)
}

// AnnotationStore persists document annotations. *db.DB implements it.
type AnnotationStore interface {
	InsertDocumentAnnotation(ctx context.Context, a *db.DocumentAnnotation) (int64, error)
}

// All builds the full tool set over one database.
func All(database *db.DB) []core.Tool {
	return []core.Tool{
		NewSaveOrderDraft(database),
		NewLookupItem(database),
		NewGenerateOrderReport(database),
		NewAnnotateDocument(database),
	}
}
