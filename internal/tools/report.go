package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolgate/toolgate/internal/core"
)

// GenerateOrderReportArgs is the agent-facing argument schema. The title
// is optional and therefore nullable.
type GenerateOrderReportArgs struct {
	Title *string `json:"title"`
}

// OrderReportPayload is the internal representation; a null title
// normalizes to the empty string and the handler substitutes its default.
type OrderReportPayload struct {
	Title string
}

func (a GenerateOrderReportArgs) ToInternal() OrderReportPayload {
	return OrderReportPayload{Title: core.StringOrEmpty(a.Title)}
}

// OrderReport is the structured report object promoted into the next
// message's derived context, where the conversation UI renders it as a
// report card. The model never sees it verbatim beyond this result.
type OrderReport struct {
	Title       string            `json:"title"`
	GeneratedAt time.Time         `json:"generatedAt"`
	LineCount   int               `json:"lineCount"`
	Lines       []OrderReportLine `json:"lines"`
}

// OrderReportLine summarizes one saved draft line.
type OrderReportLine struct {
	OrderRequestID int64  `json:"orderRequestId"`
	ItemNum        string `json:"itemNum"`
	Quantity       int    `json:"quantity"`
	UOM            string `json:"uom"`
	Status         string `json:"status"`
}

// GenerateOrderReportResult is the minimal model-facing result shape.
type GenerateOrderReportResult struct {
	Message     string       `json:"message"`
	OrderReport *OrderReport `json:"orderReport"`
}

// GenerateOrderReport summarizes the conversation's saved drafts.
type GenerateOrderReport struct {
	schema *core.ArgSchema[GenerateOrderReportArgs]
	store  OrderStore
	now    func() time.Time
}

func NewGenerateOrderReport(store OrderStore) *GenerateOrderReport {
	return &GenerateOrderReport{
		schema: core.MustArgSchema[GenerateOrderReportArgs](GenerateOrderReportName),
		store:  store,
		now:    time.Now,
	}
}

func (t *GenerateOrderReport) Name() string { return GenerateOrderReportName }

func (t *GenerateOrderReport) Schema() map[string]any { return t.schema.Schema() }

func (t *GenerateOrderReport) Decode(raw json.RawMessage) (any, error) {
	args, err := t.schema.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	return args.ToInternal(), nil
}

func (t *GenerateOrderReport) Execute(ctx context.Context, conversationID string, payload any) (any, error) {
	p, ok := payload.(OrderReportPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}
	drafts, err := t.store.ListOrderRequestsByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	title := p.Title
	if title == "" {
		title = "Order summary"
	}
	report := &OrderReport{
		Title:       title,
		GeneratedAt: t.now().UTC(),
		LineCount:   len(drafts),
		Lines:       make([]OrderReportLine, 0, len(drafts)),
	}
	for _, d := range drafts {
		report.Lines = append(report.Lines, OrderReportLine{
			OrderRequestID: d.OrderRequestID,
			ItemNum:        d.ItemNum,
			Quantity:       d.Quantity,
			UOM:            d.UOM,
			Status:         d.Status,
		})
	}
	return report, nil
}

func (t *GenerateOrderReport) Results() core.ResultBuilder { return generateOrderReportResults{} }

type generateOrderReportResults struct{}

func (generateOrderReportResults) Success(domain any) (any, error) {
	report, ok := domain.(*OrderReport)
	if !ok {
		return nil, fmt.Errorf("unexpected domain value %T", domain)
	}
	return GenerateOrderReportResult{
		Message:     fmt.Sprintf("Order report generated with %d line(s).", report.LineCount),
		OrderReport: report,
	}, nil
}

func (generateOrderReportResults) Error(message string) any {
	return GenerateOrderReportResult{Message: message}
}
