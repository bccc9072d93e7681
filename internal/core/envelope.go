package core

import "encoding/json"

// ToolCallEnvelope is a single tool invocation issued by the agent runtime.
// It is consumed exactly once per turn; RawArguments stays opaque until the
// validator parses it.
type ToolCallEnvelope struct {
	CallID       string          `json:"call_id"`
	ToolName     string          `json:"tool_name"`
	RawArguments json.RawMessage `json:"arguments"`
}

// Result status values for FunctionCallResult.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// FunctionCallResult is the minimal structured response returned to the
// model for one tool call. Result carries the tool-specific shape: a
// model-facing message plus only the identifiers the agent needs to
// continue. Anything beyond that belongs in the audit record, never here.
type FunctionCallResult struct {
	Status string `json:"status"`
	Result any    `json:"result"`
}

// FunctionCallOutput is the outbound function_call_output message keyed by
// the originating call ID, so the model runtime can associate results even
// when calls complete out of order.
type FunctionCallOutput struct {
	CallID string             `json:"call_id"`
	Output FunctionCallResult `json:"output"`
}

// GenericResult is the fallback result shape used when no tool-specific
// shape exists (e.g. the tool name itself is unknown).
type GenericResult struct {
	Message string `json:"message"`
}
