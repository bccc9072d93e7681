package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/toolgate/toolgate/internal/db"
	"github.com/toolgate/toolgate/internal/telemetry"
)

// RunStepStore persists audit entries. *db.DB implements it.
type RunStepStore interface {
	InsertRunStep(ctx context.Context, rs *db.RunStep) error
	FinishRunStep(ctx context.Context, runStepID string, output []byte, status string, finishedAt time.Time) error
}

// RunStepHandle correlates a RecordFinish with its RecordStart. A zero
// handle (start write failed) makes RecordFinish a no-op.
type RunStepHandle struct {
	runStepID string
	recorded  bool
}

// AuditRecorder writes the append-only audit trail: one RunStep per tool
// call, input captured before dispatch, full serialized result captured
// after shaping. Entries are operator-facing only and are never read back
// into any model- or user-facing path.
//
// A persistence failure here must not fail the surrounding call: it is
// counted for operational alerting and logged, nothing more.
type AuditRecorder struct {
	store  RunStepStore
	logger *slog.Logger
}

// NewAuditRecorder wires the audit layer to its store.
func NewAuditRecorder(store RunStepStore, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{store: store, logger: logger}
}

// RecordStart appends the audit entry for one envelope. It must run before
// dispatch begins so the input survives even if execution never finishes;
// an entry left without output is an unknown outcome, never rewritten.
func (a *AuditRecorder) RecordStart(ctx context.Context, conversationID string, env ToolCallEnvelope) RunStepHandle {
	rs := &db.RunStep{
		RunStepID:      uuid.New().String(),
		ConversationID: conversationID,
		CallID:         env.CallID,
		ToolName:       env.ToolName,
		Status:         db.RunStepRunning,
		Input:          normalizeAuditInput(env.RawArguments),
		StartedAt:      time.Now().UTC(),
	}
	if err := a.store.InsertRunStep(ctx, rs); err != nil {
		telemetry.IncAuditWriteFailure()
		a.logger.Error("audit record start failed",
			"conversation_id", conversationID, "call_id", env.CallID, "tool", env.ToolName, "err", err)
		return RunStepHandle{}
	}
	return RunStepHandle{runStepID: rs.RunStepID, recorded: true}
}

// RecordFinish writes the full serialized shaped result exactly once,
// regardless of status. The audit output always contains at least what the
// model received.
func (a *AuditRecorder) RecordFinish(ctx context.Context, h RunStepHandle, res FunctionCallResult) {
	if !h.recorded {
		return
	}
	output, err := json.Marshal(res)
	if err != nil {
		telemetry.IncAuditWriteFailure()
		a.logger.Error("audit output marshal failed", "run_step_id", h.runStepID, "err", err)
		return
	}
	status := db.RunStepOK
	if res.Status != StatusSuccess {
		status = db.RunStepError
	}
	if err := a.store.FinishRunStep(ctx, h.runStepID, output, status, time.Now().UTC()); err != nil {
		telemetry.IncAuditWriteFailure()
		a.logger.Error("audit record finish failed", "run_step_id", h.runStepID, "err", err)
	}
}

// normalizeAuditInput keeps the raw arguments verbatim when they are valid
// JSON and wraps them otherwise, so even a malformed payload is preserved
// in the structured audit column.
func normalizeAuditInput(raw json.RawMessage) json.RawMessage {
	if len(raw) > 0 && json.Valid(raw) {
		return raw
	}
	wrapped, err := json.Marshal(map[string]string{"unparsed": string(raw)})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return wrapped
}
