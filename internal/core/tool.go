package core

import (
	"context"
	"encoding/json"
)

// Tool binds one agent-facing tool name to its validation, transform,
// backend action, and minimal result shapes. Implementations live in
// internal/tools; the pipeline only ever sees this interface.
type Tool interface {
	Name() string

	// Schema returns the external argument schema exported to the agent
	// runtime as the tool definition.
	Schema() map[string]any

	// Decode validates raw arguments against the external schema and
	// transforms them into the internal payload. It is side-effect free;
	// a returned error is a validation failure and the dispatcher must
	// never see the call.
	Decode(raw json.RawMessage) (any, error)

	// Execute runs the backend action on a decoded payload and returns a
	// domain value. It must not perform agent-protocol formatting; retry
	// policy, if any, lives here.
	Execute(ctx context.Context, conversationID string, payload any) (any, error)

	// Results builds the tool's minimal model-facing result shapes.
	Results() ResultBuilder
}

// ResultBuilder produces the result variants returned to the model for one
// tool. Both variants share the tool's declared minimal shape: a message
// plus only the identifiers needed for continuation. Keeping the shape a
// dedicated struct per tool means an extra field is unrepresentable, not
// merely discouraged.
type ResultBuilder interface {
	// Success converts the handler's domain value into the success shape.
	Success(domain any) (any, error)

	// Error builds the error shape carrying a model-facing message, with
	// all identifier fields null.
	Error(message string) any
}
