package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/db"
)

type fakeCatalogStore struct {
	items map[string]*db.CatalogItem
	err   error
}

func (f *fakeCatalogStore) GetCatalogItemByNum(_ context.Context, itemNum string) (*db.CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[itemNum], nil
}

func TestLookupItemFound(t *testing.T) {
	store := &fakeCatalogStore{items: map[string]*db.CatalogItem{
		"A1": {ItemID: 11, ItemNum: "A1", Description: "Widgets, small"},
	}}
	tool := NewLookupItem(store)

	payload, err := tool.Decode(json.RawMessage(`{"itemNum":"A1"}`))
	require.NoError(t, err)
	domain, err := tool.Execute(context.Background(), "conv-1", payload)
	require.NoError(t, err)

	res, err := tool.Results().Success(domain)
	require.NoError(t, err)
	shaped, ok := res.(LookupItemResult)
	require.True(t, ok)
	require.NotNil(t, shaped.ItemID)
	assert.Equal(t, int64(11), *shaped.ItemID)
	assert.Contains(t, shaped.Message, "Widgets, small")
}

func TestLookupItemNotFoundIsSuccessWithNullID(t *testing.T) {
	tool := NewLookupItem(&fakeCatalogStore{})

	payload, err := tool.Decode(json.RawMessage(`{"itemNum":"Z99"}`))
	require.NoError(t, err)
	domain, err := tool.Execute(context.Background(), "conv-1", payload)
	require.NoError(t, err, "no match is a successful lookup, not a failure")

	res, err := tool.Results().Success(domain)
	require.NoError(t, err)
	shaped := res.(LookupItemResult)
	assert.Nil(t, shaped.ItemID, "presence of itemId is the found/not-found state")
	assert.Contains(t, shaped.Message, "Z99")
}

func TestLookupItemRejectsBlankItemNum(t *testing.T) {
	tool := NewLookupItem(&fakeCatalogStore{})

	_, err := tool.Decode(json.RawMessage(`{"itemNum":""}`))
	require.Error(t, err)
}
