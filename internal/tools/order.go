package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolgate/toolgate/internal/core"
	"github.com/toolgate/toolgate/internal/db"
)

// SaveOrderDraftArgs is the agent-facing argument schema. The structured
// output format forbids omitting fields, so optional fields are declared
// nullable instead: packSize and referencedOrderRequestId may be null, the
// rest must carry a value.
type SaveOrderDraftArgs struct {
	ItemNum                  string  `json:"itemNum"`
	Quantity                 int     `json:"quantity"`
	PackSize                 *string `json:"packSize"`
	UOM                      string  `json:"uom"`
	Status                   string  `json:"status"`
	Confidence               string  `json:"confidence"`
	ReferencedOrderRequestID *int64  `json:"referencedOrderRequestId"`
}

// Validate runs the declared field constraints after schema validation.
func (a SaveOrderDraftArgs) Validate() error {
	if a.ItemNum == "" {
		return fmt.Errorf("itemNum: must not be blank")
	}
	if a.Quantity <= 0 {
		return fmt.Errorf("quantity: must be a positive integer")
	}
	if err := UnitsOfMeasure.CheckActive("uom", a.UOM); err != nil {
		return err
	}
	if err := DraftStatuses.CheckActive("status", a.Status); err != nil {
		return err
	}
	return ConfidenceLevels.CheckActive("confidence", a.Confidence)
}

// OrderDraftPayload is the internal storage representation. Nullability
// differs from the external schema by policy: packSize normalizes to the
// empty string, never null; the referenced ID stays optional because its
// presence is the "references an earlier draft" state.
type OrderDraftPayload struct {
	ItemNum                  string
	Quantity                 int
	PackSize                 string
	UOM                      string
	Status                   string
	Confidence               string
	ReferencedOrderRequestID *int64
}

// ToInternal maps the external schema to the internal payload.
// Per-field defaults: packSize null -> "".
func (a SaveOrderDraftArgs) ToInternal() OrderDraftPayload {
	return OrderDraftPayload{
		ItemNum:                  a.ItemNum,
		Quantity:                 a.Quantity,
		PackSize:                 core.StringOrEmpty(a.PackSize),
		UOM:                      a.UOM,
		Status:                   a.Status,
		Confidence:               a.Confidence,
		ReferencedOrderRequestID: core.CloneInt64(a.ReferencedOrderRequestID),
	}
}

// OrderDraftRecord is the shape forwarded to downstream order systems.
// Confidence is internal scoring metadata and is dropped here, not renamed.
type OrderDraftRecord struct {
	ItemNum                  string `json:"itemNum"`
	Quantity                 int    `json:"quantity"`
	PackSize                 string `json:"packSize"`
	UOM                      string `json:"uom"`
	Status                   string `json:"status"`
	ReferencedOrderRequestID *int64 `json:"referencedOrderRequestId,omitempty"`
}

// ToExternal projects the payload for downstream consumers.
func (p OrderDraftPayload) ToExternal() OrderDraftRecord {
	return OrderDraftRecord{
		ItemNum:                  p.ItemNum,
		Quantity:                 p.Quantity,
		PackSize:                 p.PackSize,
		UOM:                      p.UOM,
		Status:                   p.Status,
		ReferencedOrderRequestID: core.CloneInt64(p.ReferencedOrderRequestID),
	}
}

// ToInternal rebuilds a payload from the narrower external record. Every
// field the external contract retains round-trips unchanged; confidence
// was deliberately excluded and comes back empty.
func (r OrderDraftRecord) ToInternal() OrderDraftPayload {
	return OrderDraftPayload{
		ItemNum:                  r.ItemNum,
		Quantity:                 r.Quantity,
		PackSize:                 r.PackSize,
		UOM:                      r.UOM,
		Status:                   r.Status,
		ReferencedOrderRequestID: core.CloneInt64(r.ReferencedOrderRequestID),
	}
}

// SaveOrderDraftResult is the minimal model-facing result shape: a message
// and the two continuation identifiers, nothing else.
type SaveOrderDraftResult struct {
	Message                  string `json:"message"`
	SavedOrderRequestID      *int64 `json:"savedOrderRequestId"`
	ReferencedOrderRequestID *int64 `json:"referencedOrderRequestId"`
}

// savedDraft is the handler's domain value.
type savedDraft struct {
	id  int64
	ref *int64
}

// SaveOrderDraft persists one order draft line.
type SaveOrderDraft struct {
	schema *core.ArgSchema[SaveOrderDraftArgs]
	store  OrderStore
}

// NewSaveOrderDraft builds the tool over its backend store.
func NewSaveOrderDraft(store OrderStore) *SaveOrderDraft {
	return &SaveOrderDraft{
		schema: core.MustArgSchema[SaveOrderDraftArgs](SaveOrderDraftName),
		store:  store,
	}
}

func (t *SaveOrderDraft) Name() string { return SaveOrderDraftName }

func (t *SaveOrderDraft) Schema() map[string]any { return t.schema.Schema() }

func (t *SaveOrderDraft) Decode(raw json.RawMessage) (any, error) {
	args, err := t.schema.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	return args.ToInternal(), nil
}

func (t *SaveOrderDraft) Execute(ctx context.Context, conversationID string, payload any) (any, error) {
	p, ok := payload.(OrderDraftPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}
	id, err := t.store.InsertOrderRequest(ctx, &db.OrderRequest{
		ConversationID:           conversationID,
		ItemNum:                  p.ItemNum,
		Quantity:                 p.Quantity,
		PackSize:                 p.PackSize,
		UOM:                      p.UOM,
		Status:                   p.Status,
		Confidence:               p.Confidence,
		ReferencedOrderRequestID: p.ReferencedOrderRequestID,
		CreatedAt:                time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return savedDraft{id: id, ref: p.ReferencedOrderRequestID}, nil
}

func (t *SaveOrderDraft) Results() core.ResultBuilder { return saveOrderDraftResults{} }

type saveOrderDraftResults struct{}

func (saveOrderDraftResults) Success(domain any) (any, error) {
	d, ok := domain.(savedDraft)
	if !ok {
		return nil, fmt.Errorf("unexpected domain value %T", domain)
	}
	id := d.id
	return SaveOrderDraftResult{
		Message:                  "Order draft saved.",
		SavedOrderRequestID:      &id,
		ReferencedOrderRequestID: d.ref,
	}, nil
}

func (saveOrderDraftResults) Error(message string) any {
	return SaveOrderDraftResult{Message: message}
}
