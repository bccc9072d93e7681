package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/toolgate/toolgate/internal/buffer"
	"github.com/toolgate/toolgate/internal/telemetry"
)

// ContextStore merges derived context into a persisted message.
// *db.DB implements it.
type ContextStore interface {
	MergeDerivedContext(ctx context.Context, messageID string, derived []byte) error
}

// Promoter carries a whitelisted subset of successful tool results into the
// next message's derived context. The whitelist is fixed per field name at
// deployment time; nothing is ever inferred from the result at runtime.
// Working memory and tool intermediates are not promotable: only fields
// present in a shaped result can ever reach the whitelist.
type Promoter struct {
	whitelist map[string][]string
	store     ContextStore
	logger    *slog.Logger
}

// NewPromoter builds a Promoter from the per-tool field whitelist.
func NewPromoter(whitelist map[string][]string, store ContextStore, logger *slog.Logger) *Promoter {
	return &Promoter{whitelist: whitelist, store: store, logger: logger}
}

// Promote stages the whitelisted fields of a successful result into the
// turn's holding buffer. Error results and tools without a whitelist stage
// nothing. Scalar keys are last-write-wins with a warning naming the key;
// list-valued keys accumulate, so repeated calls in one turn append their
// entries instead of erasing each other.
func (p *Promoter) Promote(ctx context.Context, toolName string, res FunctionCallResult, buf buffer.TurnBuffer) error {
	if res.Status != StatusSuccess {
		return nil
	}
	fields := p.whitelist[toolName]
	if len(fields) == 0 {
		return nil
	}

	doc, err := resultDocument(res.Result)
	if err != nil {
		telemetry.IncPromotionFailure(toolName)
		return &PipelineError{Kind: KindPromotionFailure, Message: "context promotion failed", Err: err}
	}
	for _, field := range fields {
		value, ok := doc[field]
		if !ok || value == nil {
			continue
		}
		if entries, isList := value.([]any); isList {
			if err := buf.Append(ctx, field, entries); err != nil {
				telemetry.IncPromotionFailure(toolName)
				return &PipelineError{Kind: KindPromotionFailure, Message: "context promotion failed", Err: err}
			}
			continue
		}
		replaced, err := buf.Put(ctx, field, value)
		if err != nil {
			telemetry.IncPromotionFailure(toolName)
			return &PipelineError{Kind: KindPromotionFailure, Message: "context promotion failed", Err: err}
		}
		if replaced {
			p.logger.Warn("derived context key overwritten, last write wins",
				"key", field, "tool", toolName)
		}
	}
	return nil
}

// Flush merges the staged fields into nextMessageID's derived-context
// subset. The buffer is cleared unconditionally, including when no message
// is ultimately produced (empty nextMessageID) and on merge failure, so a
// stale buffer can never leak into a later turn. A merge failure degrades
// to "no context carried forward".
func (p *Promoter) Flush(ctx context.Context, buf buffer.TurnBuffer, nextMessageID string) error {
	defer func() {
		if err := buf.Clear(ctx); err != nil {
			p.logger.Error("turn buffer clear failed", "err", err)
		}
	}()

	snapshot, err := buf.Snapshot(ctx)
	if err != nil {
		telemetry.IncPromotionFailure("flush")
		return &PipelineError{Kind: KindPromotionFailure, Message: "context promotion failed", Err: err}
	}
	if len(snapshot) == 0 || nextMessageID == "" {
		return nil
	}

	derived, err := json.Marshal(snapshot)
	if err != nil {
		telemetry.IncPromotionFailure("flush")
		return &PipelineError{Kind: KindPromotionFailure, Message: "context promotion failed", Err: err}
	}
	if err := p.store.MergeDerivedContext(ctx, nextMessageID, derived); err != nil {
		telemetry.IncPromotionFailure("flush")
		return &PipelineError{Kind: KindPromotionFailure, Message: "context promotion failed", Err: err}
	}
	return nil
}

// resultDocument projects a shaped result onto a field-name map so the
// whitelist can select from it by name.
func resultDocument(result any) (map[string]any, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return doc, nil
}
