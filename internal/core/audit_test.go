package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/toolgate/toolgate/internal/db"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeRunStepStore records audit writes in memory.
type fakeRunStepStore struct {
	mu        sync.Mutex
	inserted  []*db.RunStep
	finished  map[string][]finishCall
	insertErr error
	finishErr error
}

type finishCall struct {
	output []byte
	status string
}

func newFakeRunStepStore() *fakeRunStepStore {
	return &fakeRunStepStore{finished: make(map[string][]finishCall)}
}

func (f *fakeRunStepStore) InsertRunStep(_ context.Context, rs *db.RunStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *rs
	f.inserted = append(f.inserted, &cp)
	return nil
}

func (f *fakeRunStepStore) FinishRunStep(_ context.Context, runStepID string, output []byte, status string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finished[runStepID] = append(f.finished[runStepID], finishCall{output: output, status: status})
	return nil
}

func TestAuditRecordStartCapturesInput(t *testing.T) {
	store := newFakeRunStepStore()
	rec := NewAuditRecorder(store, discardLogger())

	env := ToolCallEnvelope{
		CallID:       "call-1",
		ToolName:     "save_order_draft",
		RawArguments: json.RawMessage(`{"itemNum":"A1"}`),
	}
	h := rec.RecordStart(context.Background(), "conv-1", env)
	if !h.recorded {
		t.Fatalf("handle should be recorded")
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d run steps, want 1", len(store.inserted))
	}
	rs := store.inserted[0]
	if rs.ConversationID != "conv-1" || rs.CallID != "call-1" || rs.ToolName != "save_order_draft" {
		t.Fatalf("run step misses identity fields: %+v", rs)
	}
	if rs.Status != db.RunStepRunning {
		t.Fatalf("status = %q, want running", rs.Status)
	}
	if string(rs.Input) != `{"itemNum":"A1"}` {
		t.Fatalf("input not captured verbatim: %s", rs.Input)
	}
	if rs.RunStepID == "" {
		t.Fatalf("run step ID must be assigned")
	}
}

func TestAuditRecordStartWrapsUnparsableInput(t *testing.T) {
	store := newFakeRunStepStore()
	rec := NewAuditRecorder(store, discardLogger())

	rec.RecordStart(context.Background(), "conv-1", ToolCallEnvelope{
		CallID:       "call-1",
		ToolName:     "save_order_draft",
		RawArguments: json.RawMessage(`{"itemNum":`),
	})
	var doc map[string]string
	if err := json.Unmarshal(store.inserted[0].Input, &doc); err != nil {
		t.Fatalf("audit input must still be valid JSON: %v", err)
	}
	if doc["unparsed"] != `{"itemNum":` {
		t.Fatalf("unparsed payload not preserved: %v", doc)
	}
}

func TestAuditWriteFailureDoesNotFailCall(t *testing.T) {
	store := newFakeRunStepStore()
	store.insertErr = errors.New("db down")
	rec := NewAuditRecorder(store, discardLogger())

	h := rec.RecordStart(context.Background(), "conv-1", ToolCallEnvelope{CallID: "call-1", ToolName: "lookup_item"})
	if h.recorded {
		t.Fatalf("failed start must return a zero handle")
	}

	// Finish on a zero handle is a no-op, not a crash.
	rec.RecordFinish(context.Background(), h, FunctionCallResult{Status: StatusSuccess})
	if len(store.finished) != 0 {
		t.Fatalf("finish must not be attempted without a recorded start")
	}
}

func TestAuditRecordFinishWritesFullResult(t *testing.T) {
	store := newFakeRunStepStore()
	rec := NewAuditRecorder(store, discardLogger())

	h := rec.RecordStart(context.Background(), "conv-1", ToolCallEnvelope{CallID: "call-1", ToolName: "lookup_item"})
	res := FunctionCallResult{Status: StatusSuccess, Result: GenericResult{Message: "Item A1: Widgets."}}
	rec.RecordFinish(context.Background(), h, res)

	id := store.inserted[0].RunStepID
	calls := store.finished[id]
	if len(calls) != 1 {
		t.Fatalf("finished %d times, want 1", len(calls))
	}
	if calls[0].status != db.RunStepOK {
		t.Fatalf("status = %q, want ok", calls[0].status)
	}
	if !strings.Contains(string(calls[0].output), "Item A1: Widgets.") {
		t.Fatalf("audit output must carry the serialized result, got %s", calls[0].output)
	}
}

func TestAuditRecordFinishErrorStatus(t *testing.T) {
	store := newFakeRunStepStore()
	rec := NewAuditRecorder(store, discardLogger())

	h := rec.RecordStart(context.Background(), "conv-1", ToolCallEnvelope{CallID: "call-1", ToolName: "lookup_item"})
	rec.RecordFinish(context.Background(), h, FunctionCallResult{
		Status: StatusError,
		Result: GenericResult{Message: "Tool lookup_item failed to complete."},
	})

	id := store.inserted[0].RunStepID
	if store.finished[id][0].status != db.RunStepError {
		t.Fatalf("error result must persist with error status")
	}
}
