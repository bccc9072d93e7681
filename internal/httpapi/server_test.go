package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/core"
	"github.com/toolgate/toolgate/internal/db"
)

var testSecret = []byte("test-secret")

type fakeExecutor struct {
	conversationID string
	nextMessageID  string
	envelopes      []core.ToolCallEnvelope
}

func (f *fakeExecutor) ExecuteTurn(_ context.Context, conversationID, nextMessageID string, envelopes []core.ToolCallEnvelope) []core.FunctionCallOutput {
	f.conversationID = conversationID
	f.nextMessageID = nextMessageID
	f.envelopes = envelopes
	outputs := make([]core.FunctionCallOutput, len(envelopes))
	for i, env := range envelopes {
		outputs[i] = core.FunctionCallOutput{
			CallID: env.CallID,
			Output: core.FunctionCallResult{Status: core.StatusSuccess, Result: core.GenericResult{Message: "ok"}},
		}
	}
	return outputs
}

type fakeAuditReader struct {
	steps []*db.RunStep
	err   error
}

func (f *fakeAuditReader) ListRunStepsByConversation(context.Context, string) ([]*db.RunStep, error) {
	return f.steps, f.err
}

type fakeMessageStore struct {
	inserted []*db.Message
	err      error
}

func (f *fakeMessageStore) InsertMessage(_ context.Context, m *db.Message) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, m)
	return nil
}

func signToken(t *testing.T, scope string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, scopedClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func newTestServer(t *testing.T) (*Server, *fakeExecutor, *fakeAuditReader, *fakeMessageStore) {
	t.Helper()
	exec := &fakeExecutor{}
	audit := &fakeAuditReader{}
	messages := &fakeMessageStore{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewServer(logger, exec, audit, messages, testSecret), exec, audit, messages
}

func doRequest(srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestTurnRequiresToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/turns", "", `{"tool_calls":[]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTurnRejectsBadToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, scopedClaims{Scope: ScopeAgent})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/turns", signed, `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunStepsRejectsAgentScope(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/conversations/conv-1/run-steps", signToken(t, ScopeAgent), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOperatorScopeMayExecuteTurns(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/turns", signToken(t, ScopeOperator),
		`{"tool_calls":[{"call_id":"c1","tool_name":"lookup_item","arguments":{"itemNum":"A1"}}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExecuteTurnHappyPath(t *testing.T) {
	srv, exec, _, messages := newTestServer(t)

	body := `{
		"tool_calls": [
			{"call_id":"c1","tool_name":"save_order_draft","arguments":{"itemNum":"A1","quantity":3,"packSize":null,"uom":"EA","status":"draft","confidence":"high","referencedOrderRequestId":null}}
		],
		"next_message": {
			"message_id":"msg-2","role":"assistant","content":"Draft saved.",
			"input_context":{"customerRef":"cust-42"}
		}
	}`
	rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/turns", signToken(t, ScopeAgent), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "conv-1", exec.conversationID)
	assert.Equal(t, "msg-2", exec.nextMessageID)
	require.Len(t, exec.envelopes, 1)
	assert.Equal(t, "c1", exec.envelopes[0].CallID)
	assert.Equal(t, "save_order_draft", exec.envelopes[0].ToolName)

	require.Len(t, messages.inserted, 1)
	msg := messages.inserted[0]
	assert.Equal(t, "msg-2", msg.MessageID)
	var data core.AdditionalData
	require.NoError(t, json.Unmarshal(msg.AdditionalData, &data))
	assert.Equal(t, "cust-42", data.Input.CustomerRef)
	assert.Empty(t, data.Derived)

	var resp struct {
		Outputs []core.FunctionCallOutput `json:"outputs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Outputs, 1)
	assert.Equal(t, "c1", resp.Outputs[0].CallID)
	assert.Equal(t, core.StatusSuccess, resp.Outputs[0].Output.Status)
}

func TestExecuteTurnWithoutNextMessage(t *testing.T) {
	srv, exec, _, messages := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/turns", signToken(t, ScopeAgent),
		`{"tool_calls":[{"call_id":"c1","tool_name":"lookup_item","arguments":{"itemNum":"A1"}}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", exec.nextMessageID)
	assert.Empty(t, messages.inserted)
}

func TestExecuteTurnRejectsBadBodies(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	token := signToken(t, ScopeAgent)

	cases := []struct {
		name string
		body string
	}{
		{"not json", `{"tool_calls":`},
		{"unknown field", `{"tool_calls":[],"extra":true}`},
		{"empty tool calls", `{"tool_calls":[]}`},
		{"missing call id", `{"tool_calls":[{"tool_name":"lookup_item","arguments":{}}]}`},
		{"undeclared input context field", `{"tool_calls":[{"call_id":"c1","tool_name":"lookup_item","arguments":{}}],"next_message":{"message_id":"msg-2","input_context":{"derived":{"x":1}}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/turns", token, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListRunSteps(t *testing.T) {
	srv, _, audit, _ := newTestServer(t)
	finished := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	audit.steps = []*db.RunStep{{
		RunStepID:      "rs-1",
		ConversationID: "conv-1",
		CallID:         "c1",
		ToolName:       "save_order_draft",
		Status:         db.RunStepOK,
		Input:          json.RawMessage(`{"itemNum":"A1"}`),
		Output:         json.RawMessage(`{"status":"success"}`),
		StartedAt:      finished.Add(-time.Second),
		FinishedAt:     &finished,
	}}

	rec := doRequest(srv, http.MethodGet, "/api/v1/conversations/conv-1/run-steps", signToken(t, ScopeOperator), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RunSteps []*db.RunStep `json:"run_steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.RunSteps, 1)
	assert.Equal(t, "rs-1", resp.RunSteps[0].RunStepID)
	assert.Equal(t, db.RunStepOK, resp.RunSteps[0].Status)
}
