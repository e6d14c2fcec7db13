package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/chat"
	"spoke-graph/backend/internal/graph"
	apperrors "spoke-graph/backend/pkg/errors"
)

type fakeAsker struct {
	answer string
	err    error
}

func (f *fakeAsker) Ask(ctx context.Context, question string) (string, error) {
	return f.answer, f.err
}

type fakeGraphAsker struct {
	answer *chat.Answer
	err    error
	asked  []string
}

func (f *fakeGraphAsker) Ask(ctx context.Context, question string) (*chat.Answer, error) {
	f.asked = append(f.asked, question)
	return f.answer, f.err
}

type fakeStats struct {
	stats *graph.Stats
	err   error
}

func (f *fakeStats) Stats(ctx context.Context) (*graph.Stats, error) {
	return f.stats, f.err
}

func newTestAPI() (*api, *fakeAsker, *fakeGraphAsker, *fakeStats) {
	gin.SetMode(gin.TestMode)
	asker := &fakeAsker{answer: "direct answer"}
	qa := &fakeGraphAsker{answer: &chat.Answer{
		Question: "q",
		Attempts: 1,
		Query:    "MATCH (n) RETURN n",
		Rows:     []map[string]any{{"n": "x"}},
		Story:    "story",
	}}
	stats := &fakeStats{stats: &graph.Stats{Nodes: 3, Edges: 2}}
	return &api{asker: asker, qa: qa, stats: stats, log: zap.NewNop()}, asker, qa, stats
}

func doJSON(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHealthEndpoint(t *testing.T) {
	a, _, _, _ := newTestAPI()
	router := newRouter(a)

	w := doJSON(router, "GET", "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	a, _, _, _ := newTestAPI()
	router := newRouter(a)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/ask", bytes.NewBufferString(`{"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, "abc-123")
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	assert.Equal(t, "abc-123", decode(t, w)["request_id"])
}

func TestAskEndpoint(t *testing.T) {
	a, _, _, _ := newTestAPI()
	router := newRouter(a)

	w := doJSON(router, "POST", "/api/ask", `{"question":"What is metformin?"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "direct answer", decode(t, w)["answer"])
}

func TestAskEndpoint_InvalidRequest(t *testing.T) {
	a, _, _, _ := newTestAPI()
	router := newRouter(a)

	w := doJSON(router, "POST", "/api/ask", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, "POST", "/api/graph/ask", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskEndpoint_UpstreamFailure(t *testing.T) {
	a, asker, _, _ := newTestAPI()
	asker.err = apperrors.NewAgentLLMFailed("gpt-4o", 3, true, errors.New("503"))
	router := newRouter(a)

	w := doJSON(router, "POST", "/api/ask", `{"question":"q"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w)["error"], "LLM request failed")
}

func TestGraphAskEndpoint(t *testing.T) {
	a, _, qa, _ := newTestAPI()
	router := newRouter(a)

	w := doJSON(router, "POST", "/api/graph/ask", `{"question":"Which genes?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, true, response["found"])
	assert.Equal(t, "Attempt Count: 1\n\nQuery Info: MATCH (n) RETURN n\n\nLLM Interpretation:\nstory", response["answer"])

	result, ok := response["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "MATCH (n) RETURN n", result["query"])
	assert.Equal(t, []string{"Which genes?"}, qa.asked)
}

func TestStatsEndpoint(t *testing.T) {
	a, _, _, stats := newTestAPI()
	router := newRouter(a)

	w := doJSON(router, "GET", "/api/graph/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.EqualValues(t, 3, response["nodes"])
	assert.EqualValues(t, 2, response["edges"])

	stats.err = apperrors.NewStoreUnreachable("bolt://localhost:7687", errors.New("refused"))
	w = doJSON(router, "GET", "/api/graph/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	a, _, _, _ := newTestAPI()
	router := newRouter(a)

	w := doJSON(router, "OPTIONS", "/api/ask", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{chat.ErrEmptyQuestion, http.StatusBadRequest},
		{apperrors.NewUnsafeQuery("CREATE (n)", "CREATE"), http.StatusBadRequest},
		{apperrors.NewContextCancelled("ask", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{apperrors.NewStoreUnreachable("bolt://x", errors.New("refused")), http.StatusServiceUnavailable},
		{apperrors.ErrAgentNoResponse, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "error %v", tt.err)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	a, _, _, _ := newTestAPI()
	srv := &http.Server{Addr: addr, Handler: newRouter(a)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, srv, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
