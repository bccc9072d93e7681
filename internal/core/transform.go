package core

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Transform helpers shared by the per-tool ToInternal/ToExternal mappings.
// The policies themselves are declarative per field and live with each
// tool's definition; these helpers only encode the two normalization rules
// every mapping uses.

// StringOrEmpty maps a nullable external string to the internal non-null
// representation: null becomes the empty string, never a nil left in a
// field declared non-null internally.
func StringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// EmptyToNil maps an internal empty string back to the external nullable
// representation.
func EmptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CloneInt64 copies an optional identifier so the internal payload does not
// alias external-schema memory. Presence of the value is the state; there
// is no separate boolean flag to fall out of sync with it.
func CloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DecodeDocument decodes a generic JSON-shaped document into a typed
// struct, erroring on fields the target does not declare. Used where a
// handler consumes a document produced outside the typed schema path
// (e.g. input-context attachments).
func DecodeDocument(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		TagName:     "json",
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
