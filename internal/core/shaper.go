package core

// Shape builds the FunctionCallResult returned to the model for one
// outcome. The model-facing shape is always a projection of what the audit
// record holds: audit gets everything here plus the internal error detail,
// never less.
//
// tool may be nil when the call never resolved to a handler (unknown tool);
// the generic message-only shape is used then.
func Shape(tool Tool, toolName string, outcome ExecutionOutcome) FunctionCallResult {
	if !outcome.Succeeded() {
		return shapeError(tool, toolName, outcome.Err)
	}

	result, err := tool.Results().Success(outcome.Value)
	if err != nil {
		// The handler produced a value the result builder cannot shape.
		// Treated as a handler failure so the model still gets a usable
		// error instead of a malformed success.
		return shapeError(tool, toolName, HandlerFailure(toolName, err))
	}
	return FunctionCallResult{Status: StatusSuccess, Result: result}
}

func shapeError(tool Tool, toolName string, err error) FunctionCallResult {
	pe := AsPipelineError(toolName, err)
	if tool == nil {
		return FunctionCallResult{
			Status: StatusError,
			Result: GenericResult{Message: pe.ModelMessage()},
		}
	}
	return FunctionCallResult{
		Status: StatusError,
		Result: tool.Results().Error(pe.ModelMessage()),
	}
}
