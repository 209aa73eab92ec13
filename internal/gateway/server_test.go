package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrun/internal/agui"
	"agentrun/internal/approval"
	"agentrun/internal/chat"
	"agentrun/internal/config"
	"agentrun/internal/gateway/handlers"
	"agentrun/internal/gateway/websocket"
	"agentrun/internal/runctl"
	"agentrun/internal/storage"
)

const helloTranscript = `
turns:
  - - type: RUN_STARTED
    - type: TEXT_MESSAGE_START
      messageId: a1
    - type: TEXT_MESSAGE_CONTENT
      messageId: a1
      delta: Hello there
    - type: TEXT_MESSAGE_END
      messageId: a1
    - type: RUN_FINISHED
`

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fixture struct {
	server    *Server
	ctrl      *runctl.RunController
	approvals *approval.Manager
	audit     *storage.ApprovalLog
	ts        *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tr, err := agui.ParseTranscript([]byte(helloTranscript))
	require.NoError(t, err)

	cfg := &config.Config{Agents: map[string]config.AgentConfig{
		"helper": {Name: "Helper", Description: "answers"},
		"other":  {},
	}}

	ctrl := runctl.New(runctl.Options{
		Transports: func(chat.AgentRef) (agui.EventSource, error) {
			return agui.NewScriptSource(tr, agui.WithSynchronous(true), agui.WithLogger(nopLogger())), nil
		},
		Logger: nopLogger(),
	})
	t.Cleanup(func() { _ = ctrl.Close() })

	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	audit := storage.NewApprovalLog(db)

	hub := websocket.NewHub()
	mgr := approval.NewManager(&approval.ManagerConfig{
		Notifier: approval.NewBroadcastNotifier(hub),
		Audit:    audit,
		Timeout:  time.Minute,
		Logger:   nopLogger(),
	})
	t.Cleanup(mgr.Close)

	s := NewServer(Options{
		Controller: ctrl,
		Config:     cfg,
		Approvals:  mgr,
		Audit:      audit,
		Hub:        hub,
		Version:    "test",
		Logger:     nopLogger(),
	})
	go hub.Run()

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return &fixture{server: s, ctrl: ctrl, approvals: mgr, audit: audit, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) bind(t *testing.T, id string) {
	t.Helper()
	resp := f.do(t, http.MethodPut, "/api/v1/agent", map[string]string{"id": id})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "helper")

	resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h := decode[handlers.HealthResponse](t, resp)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "test", h.Version)
	assert.Equal(t, "helper", h.Agent)
	assert.False(t, h.Running)
}

func TestSendMessageRunsConversation(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "helper")

	resp := f.do(t, http.MethodPost, "/api/v1/messages", map[string]any{
		"content": "hi",
		"context": []chat.ContextItem{{Description: "page", Value: "/home"}},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	snap := decode[runctl.Snapshot](t, resp)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, chat.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "Hello there", snap.Messages[1].Content)
	assert.False(t, snap.Running)

	conv := decode[runctl.Snapshot](t, f.do(t, http.MethodGet, "/api/v1/conversation", nil))
	assert.Len(t, conv.Messages, 2)
}

func TestControllerErrorMapping(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	f.bind(t, "helper")

	resp = f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decode[handlers.ErrorResponse](t, resp)
	assert.Equal(t, handlers.ErrCodeInvalidRequest, e.Error.Code)

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/api/v1/messages", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestResetAbortRegenerate(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "helper")
	f.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "hi"})

	resp := f.do(t, http.MethodPost, "/api/v1/regenerate", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	snap := decode[runctl.Snapshot](t, resp)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hello there", snap.Messages[1].Content)

	resp = f.do(t, http.MethodPost, "/api/v1/abort", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[runctl.Snapshot](t, resp).Messages, 2)

	resp = f.do(t, http.MethodPost, "/api/v1/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[runctl.Snapshot](t, resp).Messages)
}

func TestAgents(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "helper")

	agents := decode[[]AgentInfo](t, f.do(t, http.MethodGet, "/api/v1/agents", nil))
	require.Len(t, agents, 2)
	assert.Equal(t, AgentInfo{ID: "helper", Name: "Helper", Alias: "helper", Description: "answers", Active: true}, agents[0])
	assert.Equal(t, "other", agents[1].ID)
	assert.False(t, agents[1].Active)

	resp := f.do(t, http.MethodPut, "/api/v1/agent", map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/agent", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovalEndpoints(t *testing.T) {
	f := newFixture(t)

	done := make(chan *approval.Result, 1)
	go func() {
		res, _ := f.approvals.RequestApproval(context.Background(), &approval.Request{
			Kind:     approval.KindTool,
			ToolName: "delete_file",
		})
		done <- res
	}()

	var pending []approval.Request
	require.Eventually(t, func() bool {
		pending = decode[[]approval.Request](t, f.do(t, http.MethodGet, "/api/v1/approvals", nil))
		return len(pending) == 1
	}, time.Second, 10*time.Millisecond)

	resp := f.do(t, http.MethodPost, "/api/v1/approvals/"+pending[0].ID, map[string]any{"approved": false, "message": "no"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := <-done
	assert.False(t, res.Approved)
	assert.Equal(t, approval.DecisionRejected, res.Decision)

	resp = f.do(t, http.MethodPost, "/api/v1/approvals/"+pending[0].ID, map[string]any{"approved": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	history := decode[[]storage.ApprovalEntry](t, f.do(t, http.MethodGet, "/api/v1/approvals/history?limit=10", nil))
	require.Len(t, history, 2)
	assert.ElementsMatch(t, []string{"request", "decision"}, []string{history[0].EventType, history[1].EventType})

	resp = f.do(t, http.MethodGet, "/api/v1/approvals/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dial(t *testing.T, f *fixture) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type rawFrame struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// readUntil reads frames until one of the given type arrives.
func readUntil(t *testing.T, conn *gws.Conn, frameType string) rawFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var fr rawFrame
		require.NoError(t, conn.ReadJSON(&fr))
		if fr.Type == frameType {
			return fr
		}
	}
}

func TestWebSocketStreamsState(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "helper")
	conn := dial(t, f)

	readUntil(t, conn, websocket.TypeSnapshot)
	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(websocket.Message{Type: websocket.TypeChat, Content: "hi"}))

	fr := readUntil(t, conn, websocket.TypeMessages)
	var msgs []chat.ChatMessage
	require.NoError(t, json.Unmarshal(fr.Data, &msgs))
	require.NotEmpty(t, msgs)
	assert.Equal(t, "hi", msgs[0].Content)

	readUntil(t, conn, websocket.TypeAgentState)
}

func TestWebSocketPingAndErrors(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f)
	readUntil(t, conn, websocket.TypeSnapshot)

	require.NoError(t, conn.WriteJSON(websocket.Message{Type: websocket.TypePing}))
	readUntil(t, conn, websocket.TypePong)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("not json")))
	fr := readUntil(t, conn, websocket.TypeError)
	assert.Equal(t, "INVALID_MESSAGE", fr.Code)

	require.NoError(t, conn.WriteJSON(websocket.Message{Type: websocket.TypeApprovalResponse, RequestID: "nope", Approved: true}))
	fr = readUntil(t, conn, websocket.TypeError)
	assert.Equal(t, "APPROVAL_ERROR", fr.Code)
}

func TestWebSocketApprovalRoundTrip(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f)
	readUntil(t, conn, websocket.TypeSnapshot)
	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	done := make(chan any, 1)
	go func() {
		answer, _ := f.approvals.Prompt(context.Background(), chat.InterruptInfo{Title: "Pick one"})
		done <- answer
	}()

	fr := readUntil(t, conn, websocket.TypeApprovalRequest)
	var req approval.Request
	require.NoError(t, json.Unmarshal(fr.Data, &req))
	assert.Equal(t, "Pick one", req.Title)

	require.NoError(t, conn.WriteJSON(websocket.Message{
		Type:      websocket.TypeApprovalResponse,
		RequestID: req.ID,
		Approved:  true,
		Value:     json.RawMessage(`"blue"`),
	}))

	select {
	case answer := <-done:
		assert.Equal(t, "blue", answer)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt was not answered")
	}
	readUntil(t, conn, websocket.TypeApprovalResolved)
}

func TestWatcherBroadcastsReload(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f)
	readUntil(t, conn, websocket.TypeSnapshot)
	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")

	w, err := NewWatcher(f.server.Hub(), nopLogger(), dir)
	require.NoError(t, err)
	changed := make(chan string, 4)
	w.OnChange(func(p string) { changed <- p })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(helloTranscript), 0600))

	fr := readUntil(t, conn, websocket.TypeReload)
	var payload ReloadPayload
	require.NoError(t, json.Unmarshal(fr.Data, &payload))
	assert.Equal(t, path, payload.Path)

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("change callback not called")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	f := newFixture(t)
	f.server.router.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	resp := f.do(t, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	e := decode[handlers.ErrorResponse](t, resp)
	assert.Equal(t, handlers.ErrCodeInternalError, e.Error.Code)
}
