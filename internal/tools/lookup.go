package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/toolgate/toolgate/internal/core"
	"github.com/toolgate/toolgate/internal/db"
)

// LookupItemArgs is the agent-facing argument schema for catalog lookup.
type LookupItemArgs struct {
	ItemNum string `json:"itemNum"`
}

func (a LookupItemArgs) Validate() error {
	if a.ItemNum == "" {
		return fmt.Errorf("itemNum: must not be blank")
	}
	return nil
}

// ItemLookupPayload is the internal representation of a lookup request.
type ItemLookupPayload struct {
	ItemNum string
}

func (a LookupItemArgs) ToInternal() ItemLookupPayload {
	return ItemLookupPayload{ItemNum: a.ItemNum}
}

// LookupItemResult is the minimal model-facing result shape. A populated
// itemId means the lookup resolved; null means no match. There is no
// separate found flag to drift out of sync with the identifier.
type LookupItemResult struct {
	Message string `json:"message"`
	ItemID  *int64 `json:"itemId"`
}

type lookedUpItem struct {
	item *db.CatalogItem
	num  string
}

// LookupItem resolves an item number against the catalog.
type LookupItem struct {
	schema *core.ArgSchema[LookupItemArgs]
	store  CatalogStore
}

func NewLookupItem(store CatalogStore) *LookupItem {
	return &LookupItem{
		schema: core.MustArgSchema[LookupItemArgs](LookupItemName),
		store:  store,
	}
}

func (t *LookupItem) Name() string { return LookupItemName }

func (t *LookupItem) Schema() map[string]any { return t.schema.Schema() }

func (t *LookupItem) Decode(raw json.RawMessage) (any, error) {
	args, err := t.schema.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	return args.ToInternal(), nil
}

func (t *LookupItem) Execute(ctx context.Context, _ string, payload any) (any, error) {
	p, ok := payload.(ItemLookupPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}
	item, err := t.store.GetCatalogItemByNum(ctx, p.ItemNum)
	if err != nil {
		return nil, err
	}
	return lookedUpItem{item: item, num: p.ItemNum}, nil
}

func (t *LookupItem) Results() core.ResultBuilder { return lookupItemResults{} }

type lookupItemResults struct{}

func (lookupItemResults) Success(domain any) (any, error) {
	d, ok := domain.(lookedUpItem)
	if !ok {
		return nil, fmt.Errorf("unexpected domain value %T", domain)
	}
	if d.item == nil {
		return LookupItemResult{
			Message: fmt.Sprintf("No catalog item matches %q. Ask the user to confirm the item number.", d.num),
		}, nil
	}
	id := d.item.ItemID
	return LookupItemResult{
		Message: fmt.Sprintf("Item %s: %s.", d.item.ItemNum, d.item.Description),
		ItemID:  &id,
	}, nil
}

func (lookupItemResults) Error(message string) any {
	return LookupItemResult{Message: message}
}
