// Package core implements the tool-call execution and audit pipeline:
// argument validation, transform to the internal representation, dispatch,
// result shaping, the append-only audit trail, and promotion of whitelisted
// result fields into the conversation's durable context.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/toolgate/toolgate/internal/buffer"
	"github.com/toolgate/toolgate/internal/telemetry"
)

// Pipeline executes one conversational turn's tool calls end to end.
// Calls within a turn run concurrently under the dispatcher's bound, but
// outputs are returned in envelope order so the model runtime can associate
// each result with its originating call ID, and the context flush happens
// only after every call has settled.
type Pipeline struct {
	dispatcher *Dispatcher
	policy     *Policy
	audit      *AuditRecorder
	promoter   *Promoter
	buffers    buffer.Factory
	logger     *slog.Logger
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(dispatcher *Dispatcher, policy *Policy, audit *AuditRecorder, promoter *Promoter, buffers buffer.Factory, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		dispatcher: dispatcher,
		policy:     policy,
		audit:      audit,
		promoter:   promoter,
		buffers:    buffers,
		logger:     logger,
	}
}

// ExecuteTurn processes the turn's envelopes and returns one output per
// envelope, keyed by call ID and ordered by envelope position regardless
// of completion order. nextMessageID names the message whose derived
// context receives the promoted fields; empty means no message will be
// persisted this turn, in which case the holding buffer is still cleared.
func (p *Pipeline) ExecuteTurn(ctx context.Context, conversationID, nextMessageID string, envelopes []ToolCallEnvelope) []FunctionCallOutput {
	results := make([]FunctionCallResult, len(envelopes))

	var wg sync.WaitGroup
	for i, env := range envelopes {
		wg.Add(1)
		go func(i int, env ToolCallEnvelope) {
			defer wg.Done()
			results[i] = p.runCall(ctx, conversationID, env)
		}(i, env)
	}
	wg.Wait()

	// Promotion runs after every call has settled, in envelope order, so
	// same-key conflicts resolve deterministically (last write in envelope
	// order wins) and the flush can never race an outstanding call.
	buf := p.buffers.ForTurn(conversationID + ":" + turnID(envelopes))
	promoteCtx := context.WithoutCancel(ctx)
	for i, env := range envelopes {
		if err := p.promoter.Promote(promoteCtx, env.ToolName, results[i], buf); err != nil {
			p.logger.Error("context promotion degraded", "tool", env.ToolName, "call_id", env.CallID, "err", err)
		}
	}
	if err := p.promoter.Flush(promoteCtx, buf, nextMessageID); err != nil {
		p.logger.Error("context flush degraded, no context carried forward",
			"conversation_id", conversationID, "err", err)
	}

	outputs := make([]FunctionCallOutput, len(envelopes))
	for i, env := range envelopes {
		outputs[i] = FunctionCallOutput{CallID: env.CallID, Output: results[i]}
	}
	return outputs
}

// runCall takes one envelope through validate → transform → dispatch →
// shape, with the audit entry opened before dispatch and closed with the
// full shaped result.
func (p *Pipeline) runCall(ctx context.Context, conversationID string, env ToolCallEnvelope) FunctionCallResult {
	start := time.Now()

	// Audit writes survive turn cancellation: a cancelled-but-executed
	// call must still have its outcome recorded.
	auditCtx := context.WithoutCancel(ctx)
	handle := p.audit.RecordStart(auditCtx, conversationID, env)

	res := p.process(ctx, conversationID, env)

	telemetry.IncToolCall(env.ToolName, res.Status)
	telemetry.ObserveToolDuration(env.ToolName, time.Since(start))
	p.audit.RecordFinish(auditCtx, handle, res)
	return res
}

func (p *Pipeline) process(ctx context.Context, conversationID string, env ToolCallEnvelope) FunctionCallResult {
	if err := p.policy.CheckTool(env.ToolName); err != nil {
		p.logger.Warn("tool rejected by policy", "tool", env.ToolName, "call_id", env.CallID, "err", err)
		return Shape(nil, env.ToolName, ExecutionOutcome{Err: UnknownTool(env.ToolName)})
	}

	tool, ok := p.dispatcher.Lookup(env.ToolName)
	if !ok {
		return Shape(nil, env.ToolName, ExecutionOutcome{Err: UnknownTool(env.ToolName)})
	}

	payload, err := tool.Decode(env.RawArguments)
	if err != nil {
		// Validation failure short-circuits: the dispatcher never sees
		// the call.
		return Shape(tool, env.ToolName, ExecutionOutcome{Err: err})
	}

	outcome := p.dispatcher.Execute(ctx, conversationID, tool, payload)
	if !outcome.Succeeded() {
		p.logger.Error("tool execution failed", "tool", env.ToolName, "call_id", env.CallID, "err", outcome.Err)
	}
	return Shape(tool, env.ToolName, outcome)
}

// turnID derives a stable buffer identity for this batch of envelopes.
func turnID(envelopes []ToolCallEnvelope) string {
	if len(envelopes) == 0 {
		return "empty"
	}
	return envelopes[0].CallID
}
