package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringOrEmpty(t *testing.T) {
	assert.Equal(t, "", StringOrEmpty(nil))
	s := "12-pack"
	assert.Equal(t, "12-pack", StringOrEmpty(&s))
}

func TestEmptyToNil(t *testing.T) {
	assert.Nil(t, EmptyToNil(""))
	p := EmptyToNil("12-pack")
	require.NotNil(t, p)
	assert.Equal(t, "12-pack", *p)
}

func TestCloneInt64DoesNotAlias(t *testing.T) {
	assert.Nil(t, CloneInt64(nil))

	v := int64(7)
	p := CloneInt64(&v)
	require.NotNil(t, p)
	assert.Equal(t, int64(7), *p)

	v = 9
	assert.Equal(t, int64(7), *p, "clone must not alias the source")
}

func TestDecodeDocument(t *testing.T) {
	var in InputContext
	err := DecodeDocument(map[string]any{
		"customerRef": "cust-42",
		"attachments": []any{
			map[string]any{"documentRef": "doc-1", "filename": "po.pdf"},
		},
	}, &in)
	require.NoError(t, err)
	assert.Equal(t, "cust-42", in.CustomerRef)
	require.Len(t, in.Attachments, 1)
	assert.Equal(t, "doc-1", in.Attachments[0].DocumentRef)
}

func TestDecodeDocumentRejectsUndeclaredFields(t *testing.T) {
	var in InputContext
	err := DecodeDocument(map[string]any{
		"customerRef": "cust-42",
		"derived":     map[string]any{"savedOrderRequestId": 7},
	}, &in)
	require.Error(t, err, "a caller must not smuggle fields past the declared schema")
}

func TestParseInputContextNilDocument(t *testing.T) {
	in, err := ParseInputContext(nil)
	require.NoError(t, err)
	assert.Equal(t, InputContext{}, in)
}
