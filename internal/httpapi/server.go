// Package httpapi exposes the tool-call pipeline over HTTP: agents post a
// turn's tool calls, operators read the audit trail.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolgate/toolgate/internal/core"
	"github.com/toolgate/toolgate/internal/db"
)

// TurnExecutor runs one turn's tool calls through the pipeline.
type TurnExecutor interface {
	ExecuteTurn(ctx context.Context, conversationID, nextMessageID string, envelopes []core.ToolCallEnvelope) []core.FunctionCallOutput
}

// AuditReader lists a conversation's audit entries.
type AuditReader interface {
	ListRunStepsByConversation(ctx context.Context, conversationID string) ([]*db.RunStep, error)
}

// MessageStore persists the turn's next assistant message before the
// pipeline runs, so derived context has a row to land on.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *db.Message) error
}

// Server wires the HTTP routes to the pipeline and the audit store.
type Server struct {
	logger    *slog.Logger
	executor  TurnExecutor
	audit     AuditReader
	messages  MessageStore
	jwtSecret []byte
}

func NewServer(logger *slog.Logger, executor TurnExecutor, audit AuditReader, messages MessageStore, jwtSecret []byte) *Server {
	return &Server{
		logger:    logger,
		executor:  executor,
		audit:     audit,
		messages:  messages,
		jwtSecret: jwtSecret,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withLogging(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/conversations/{conversationID}", func(r chi.Router) {
		r.With(requireScope(s.jwtSecret, ScopeAgent)).
			Post("/turns", s.handleExecuteTurn)
		r.With(requireScope(s.jwtSecret, ScopeOperator)).
			Get("/run-steps", s.handleListRunSteps)
	})
	return r
}

type toolCallRequest struct {
	CallID    string          `json:"call_id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

type nextMessageRequest struct {
	MessageID    string         `json:"message_id"`
	Role         string         `json:"role"`
	Content      string         `json:"content"`
	InputContext map[string]any `json:"input_context"`
}

type turnRequest struct {
	ToolCalls   []toolCallRequest   `json:"tool_calls"`
	NextMessage *nextMessageRequest `json:"next_message"`
}

func (s *Server) handleExecuteTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		writeErr(w, http.StatusBadRequest, "conversationID is required")
		return
	}

	var req turnRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.ToolCalls) == 0 {
		writeErr(w, http.StatusBadRequest, "tool_calls must not be empty")
		return
	}
	for i, tc := range req.ToolCalls {
		if tc.CallID == "" || tc.ToolName == "" {
			writeErr(w, http.StatusBadRequest, fmt.Sprintf("tool_calls[%d]: call_id and tool_name are required", i))
			return
		}
	}

	nextMessageID := ""
	if req.NextMessage != nil {
		if req.NextMessage.MessageID == "" {
			writeErr(w, http.StatusBadRequest, "next_message.message_id is required")
			return
		}
		input, err := core.ParseInputContext(req.NextMessage.InputContext)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Sprintf("next_message.input_context: %v", err))
			return
		}
		data, err := json.Marshal(core.AdditionalData{Input: input, Derived: map[string]any{}})
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "encode message context")
			return
		}
		msg := &db.Message{
			MessageID:      req.NextMessage.MessageID,
			ConversationID: conversationID,
			Role:           req.NextMessage.Role,
			Content:        req.NextMessage.Content,
			AdditionalData: data,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.messages.InsertMessage(r.Context(), msg); err != nil {
			s.logger.Error("insert next message", "message_id", msg.MessageID, "error", err)
			writeErr(w, http.StatusInternalServerError, "persist next message")
			return
		}
		nextMessageID = req.NextMessage.MessageID
	}

	envelopes := make([]core.ToolCallEnvelope, len(req.ToolCalls))
	for i, tc := range req.ToolCalls {
		envelopes[i] = core.ToolCallEnvelope{
			CallID:       tc.CallID,
			ToolName:     tc.ToolName,
			RawArguments: tc.Arguments,
		}
	}

	outputs := s.executor.ExecuteTurn(r.Context(), conversationID, nextMessageID, envelopes)
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
}

func (s *Server) handleListRunSteps(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		writeErr(w, http.StatusBadRequest, "conversationID is required")
		return
	}
	steps, err := s.audit.ListRunStepsByConversation(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("list run steps", "conversation_id", conversationID, "error", err)
		writeErr(w, http.StatusInternalServerError, "list run steps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_steps": steps})
}

// decodeJSONBody decodes a single JSON object from the request body,
// rejecting unknown fields and trailing content.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
