package core

// AdditionalData is the per-message context document. The input subset is
// written by the upstream caller when the message is created; the derived
// subset is written only by the pipeline's flush after tool execution.
// Tool intermediates and cross-tool working memory never appear here.
type AdditionalData struct {
	Input   InputContext   `json:"input"`
	Derived map[string]any `json:"derived"`
}

// InputContext is the caller-supplied subset: user-provided identifiers
// and attachments for this message.
type InputContext struct {
	CustomerRef string       `json:"customerRef,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment references an uploaded document.
type Attachment struct {
	DocumentRef string `json:"documentRef"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// ParseInputContext decodes a caller-supplied generic document into the
// typed input subset, rejecting fields outside the declared schema so a
// caller cannot smuggle values into the derived subset.
func ParseInputContext(doc map[string]any) (InputContext, error) {
	var in InputContext
	if doc == nil {
		return in, nil
	}
	if err := DecodeDocument(doc, &in); err != nil {
		return InputContext{}, err
	}
	return in, nil
}
