// Package db provides PostgreSQL persistence for toolgate: the append-only
// run_steps audit trail, conversation messages with their additional-data
// context, and the order-desk tables the tool handlers write.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the underlying *sql.DB and provides typed query methods.
type DB struct {
	conn *sql.DB
}

// New opens a PostgreSQL connection, verifies connectivity, and applies
// pending migrations.
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := ApplyMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// RunStep is one audit entry for one tool invocation. Output stays NULL
// until the call finishes; an entry that never receives an output is an
// unknown outcome, not a failure, and is never rewritten after the fact.
type RunStep struct {
	RunStepID      string          `json:"run_step_id"`
	ConversationID string          `json:"conversation_id"`
	CallID         string          `json:"call_id"`
	ToolName       string          `json:"tool_name"`
	Status         string          `json:"status"`
	Input          json.RawMessage `json:"input"`
	Output         json.RawMessage `json:"output,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// Run step status values. "running" means the outcome is not yet known.
const (
	RunStepRunning = "running"
	RunStepOK      = "ok"
	RunStepError   = "error"
)

// InsertRunStep appends a new audit entry.
func (d *DB) InsertRunStep(ctx context.Context, rs *RunStep) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO run_steps (run_step_id, conversation_id, call_id, tool_name, status, input, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rs.RunStepID, rs.ConversationID, rs.CallID, rs.ToolName, rs.Status, []byte(rs.Input), rs.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run_step: %w", err)
	}
	return nil
}

// FinishRunStep sets an entry's output exactly once. A second finish, or a
// finish against an already-completed entry, is reported as a conflict
// rather than overwriting the audit trail.
func (d *DB) FinishRunStep(ctx context.Context, runStepID string, output []byte, status string, finishedAt time.Time) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE run_steps SET output = $2, status = $3, finished_at = $4
		 WHERE run_step_id = $1 AND output IS NULL`,
		runStepID, output, status, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish run_step: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run_step rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run_step %s already finished or missing", runStepID)
	}
	return nil
}

// ListRunStepsByConversation returns audit entries for operator inspection,
// oldest first.
func (d *DB) ListRunStepsByConversation(ctx context.Context, conversationID string) ([]*RunStep, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT run_step_id, conversation_id, call_id, tool_name, status, input, output, started_at, finished_at
		 FROM run_steps WHERE conversation_id = $1 ORDER BY started_at`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run_steps: %w", err)
	}
	defer rows.Close()

	out := make([]*RunStep, 0)
	for rows.Next() {
		rs := &RunStep{}
		var output []byte
		var finished sql.NullTime
		if err := rows.Scan(&rs.RunStepID, &rs.ConversationID, &rs.CallID, &rs.ToolName, &rs.Status, (*[]byte)(&rs.Input), &output, &rs.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run_step: %w", err)
		}
		if output != nil {
			rs.Output = json.RawMessage(output)
		}
		if finished.Valid {
			t := finished.Time
			rs.FinishedAt = &t
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Message is one persisted conversation message. AdditionalData holds the
// per-message context document: an "input" subset written by the upstream
// caller and a "derived" subset written only by the pipeline after tool
// execution.
type Message struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	AdditionalData json.RawMessage `json:"additional_data"`
	CreatedAt      time.Time       `json:"created_at"`
}

// InsertMessage persists a new message. Nil additional data becomes an
// empty document.
func (d *DB) InsertMessage(ctx context.Context, m *Message) error {
	data := m.AdditionalData
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, additional_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.MessageID, m.ConversationID, m.Role, m.Content, []byte(data), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID. Returns nil if not found.
func (d *DB) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	m := &Message{}
	err := d.conn.QueryRowContext(ctx,
		`SELECT message_id, conversation_id, role, content, additional_data, created_at
		 FROM messages WHERE message_id = $1`, messageID,
	).Scan(&m.MessageID, &m.ConversationID, &m.Role, &m.Content, (*[]byte)(&m.AdditionalData), &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// MergeDerivedContext merges fields into the message's derived-context
// subset. The merge is additive at the key level: scalar and object keys
// replace, list keys concatenate onto what the message already holds.
// Prior messages and the input subset are never touched.
func (d *DB) MergeDerivedContext(ctx context.Context, messageID string, derived []byte) error {
	var incoming map[string]any
	if err := json.Unmarshal(derived, &incoming); err != nil {
		return fmt.Errorf("decode derived context: %w", err)
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("merge derived context begin: %w", err)
	}
	defer tx.Rollback()

	var existingRaw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(additional_data->'derived', '{}'::jsonb)
		 FROM messages WHERE message_id = $1 FOR UPDATE`, messageID,
	).Scan(&existingRaw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("message %s not found", messageID)
	}
	if err != nil {
		return fmt.Errorf("merge derived context read: %w", err)
	}
	var existing map[string]any
	if err := json.Unmarshal(existingRaw, &existing); err != nil {
		return fmt.Errorf("decode stored derived context: %w", err)
	}

	merged, err := json.Marshal(mergeDerivedDocuments(existing, incoming))
	if err != nil {
		return fmt.Errorf("encode merged derived context: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages
		 SET additional_data = additional_data || jsonb_build_object('derived', $2::jsonb)
		 WHERE message_id = $1`,
		messageID, merged,
	); err != nil {
		return fmt.Errorf("merge derived context write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("merge derived context commit: %w", err)
	}
	return nil
}

// mergeDerivedDocuments overlays incoming onto existing: list values
// concatenate, everything else replaces.
func mergeDerivedDocuments(existing, incoming map[string]any) map[string]any {
	if existing == nil {
		existing = make(map[string]any)
	}
	for k, v := range incoming {
		newList, newIsList := v.([]any)
		if !newIsList {
			existing[k] = v
			continue
		}
		oldList, _ := existing[k].([]any)
		existing[k] = append(oldList, newList...)
	}
	return existing
}

// OrderRequest is one saved order draft line.
type OrderRequest struct {
	OrderRequestID           int64     `json:"order_request_id"`
	ConversationID           string    `json:"conversation_id"`
	ItemNum                  string    `json:"item_num"`
	Quantity                 int       `json:"quantity"`
	PackSize                 string    `json:"pack_size"`
	UOM                      string    `json:"uom"`
	Status                   string    `json:"status"`
	Confidence               string    `json:"confidence"`
	ReferencedOrderRequestID *int64    `json:"referenced_order_request_id,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
}

// InsertOrderRequest persists a draft line and returns its generated ID.
func (d *DB) InsertOrderRequest(ctx context.Context, o *OrderRequest) (int64, error) {
	var id int64
	err := d.conn.QueryRowContext(ctx,
		`INSERT INTO order_requests (conversation_id, item_num, quantity, pack_size, uom, status, confidence, referenced_order_request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING order_request_id`,
		o.ConversationID, o.ItemNum, o.Quantity, o.PackSize, o.UOM, o.Status, o.Confidence, o.ReferencedOrderRequestID, o.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order_request: %w", err)
	}
	return id, nil
}

// ListOrderRequestsByConversation returns a conversation's draft lines,
// oldest first.
func (d *DB) ListOrderRequestsByConversation(ctx context.Context, conversationID string) ([]*OrderRequest, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT order_request_id, conversation_id, item_num, quantity, pack_size, uom, status, confidence, referenced_order_request_id, created_at
		 FROM order_requests WHERE conversation_id = $1 ORDER BY created_at`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order_requests: %w", err)
	}
	defer rows.Close()

	out := make([]*OrderRequest, 0)
	for rows.Next() {
		o := &OrderRequest{}
		var ref sql.NullInt64
		if err := rows.Scan(&o.OrderRequestID, &o.ConversationID, &o.ItemNum, &o.Quantity, &o.PackSize, &o.UOM, &o.Status, &o.Confidence, &ref, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order_request: %w", err)
		}
		if ref.Valid {
			v := ref.Int64
			o.ReferencedOrderRequestID = &v
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CatalogItem is a purchasable item the lookup tool resolves against.
type CatalogItem struct {
	ItemID      int64  `json:"item_id"`
	ItemNum     string `json:"item_num"`
	Description string `json:"description"`
}

// GetCatalogItemByNum retrieves a catalog item by its item number.
// Returns nil if not found.
func (d *DB) GetCatalogItemByNum(ctx context.Context, itemNum string) (*CatalogItem, error) {
	it := &CatalogItem{}
	err := d.conn.QueryRowContext(ctx,
		`SELECT item_id, item_num, description FROM catalog_items WHERE item_num = $1`, itemNum,
	).Scan(&it.ItemID, &it.ItemNum, &it.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog_item: %w", err)
	}
	return it, nil
}

// DocumentAnnotation is a note attached to a document referenced in a
// conversation's input context.
type DocumentAnnotation struct {
	AnnotationID   int64     `json:"annotation_id"`
	ConversationID string    `json:"conversation_id"`
	DocumentRef    string    `json:"document_ref"`
	Note           string    `json:"note"`
	CreatedAt      time.Time `json:"created_at"`
}

// InsertDocumentAnnotation persists an annotation and returns its ID.
func (d *DB) InsertDocumentAnnotation(ctx context.Context, a *DocumentAnnotation) (int64, error) {
	var id int64
	err := d.conn.QueryRowContext(ctx,
		`INSERT INTO document_annotations (conversation_id, document_ref, note, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING annotation_id`,
		a.ConversationID, a.DocumentRef, a.Note, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document_annotation: %w", err)
	}
	return id, nil
}
