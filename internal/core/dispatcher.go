package core

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ExecutionOutcome is the captured result of one dispatched call: either a
// domain value or a typed failure, never both, exactly one per call.
type ExecutionOutcome struct {
	Value any
	Err   error
}

// Succeeded reports whether the call produced a domain value.
func (o ExecutionOutcome) Succeeded() bool { return o.Err == nil }

// Dispatcher routes validated, transformed calls to their registered
// handlers. The mapping is closed at construction; it holds no business
// logic of its own and only captures the handler outcome uniformly.
// Concurrent dispatch across a turn is bounded by a semaphore.
type Dispatcher struct {
	tools   map[string]Tool
	sem     chan struct{}
	timeout time.Duration
}

// NewDispatcher builds a Dispatcher over a fixed tool set.
// maxConcurrency <= 0 means unbounded; timeout <= 0 means no per-call
// deadline beyond the caller's context.
func NewDispatcher(maxConcurrency int, timeout time.Duration, tools ...Tool) *Dispatcher {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	var sem chan struct{}
	if maxConcurrency > 0 {
		sem = make(chan struct{}, maxConcurrency)
	}
	return &Dispatcher{tools: m, sem: sem, timeout: timeout}
}

// Lookup resolves a tool by name.
func (d *Dispatcher) Lookup(name string) (Tool, bool) {
	t, ok := d.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.tools))
	for name := range d.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Execute runs one backend action and captures its outcome. Handler errors
// and panics become typed failures whose model-facing message carries no
// internal detail. The dispatcher never retries.
func (d *Dispatcher) Execute(ctx context.Context, conversationID string, tool Tool, payload any) ExecutionOutcome {
	if err := d.acquire(ctx); err != nil {
		return ExecutionOutcome{Err: HandlerFailure(tool.Name(), err)}
	}
	defer d.release()

	// A call that has started runs to completion even if the turn is
	// cancelled, so a backend mutation is never left half-applied. The
	// per-call timeout is the only deadline past this point.
	runCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, d.timeout)
		defer cancel()
	}

	value, err := d.run(runCtx, conversationID, tool, payload)
	if err != nil {
		return ExecutionOutcome{Err: AsPipelineError(tool.Name(), err)}
	}
	return ExecutionOutcome{Value: value}
}

func (d *Dispatcher) run(ctx context.Context, conversationID string, tool Tool, payload any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = HandlerFailure(tool.Name(), fmt.Errorf("handler panic: %v", r))
		}
	}()
	return tool.Execute(ctx, conversationID, payload)
}

func (d *Dispatcher) acquire(ctx context.Context) error {
	if d.sem == nil {
		return nil
	}
	select {
	case d.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) release() {
	if d.sem != nil {
		<-d.sem
	}
}
