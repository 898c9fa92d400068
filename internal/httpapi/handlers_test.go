package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okenna/parentcare/internal/advice"
	"github.com/okenna/parentcare/internal/hitl"
	"github.com/okenna/parentcare/internal/knowledge"
	"github.com/okenna/parentcare/internal/llm"
	"github.com/okenna/parentcare/internal/push"
	"github.com/okenna/parentcare/internal/safety"
	"github.com/okenna/parentcare/internal/session"
)

type apiFixture struct {
	handler    *Handler
	router     http.Handler
	registry   *session.Registry
	queue      *hitl.Queue
	dispatcher *push.Dispatcher
	orch       *advice.Orchestrator
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	registry := session.NewRegistry(nil, nil)
	dispatcher := push.NewDispatcher(256, nil)
	queue := hitl.NewQueue(hitl.NewMemoryStore(), registry, dispatcher, nil)
	orch := advice.NewOrchestrator(advice.Deps{
		Classifier: safety.NewClassifier(nil, nil),
		Retriever:  knowledge.NewRetriever(knowledge.DefaultTopics(), nil),
		LLM:        &llm.ScriptClient{Answer: "Keep bedtime calm and consistent."},
		Registry:   registry,
		Queue:      queue,
		Dispatcher: dispatcher,
	}, advice.Config{Model: "test-model"})

	handler := NewHandler(registry, queue, orch, dispatcher, nil, nil)
	router := NewRouter(RouterConfig{Handler: handler})
	return &apiFixture{
		handler:    handler,
		router:     router,
		registry:   registry,
		queue:      queue,
		dispatcher: dispatcher,
		orch:       orch,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestCreateSessionAndHistory(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID, _ := decodeBody(t, w)["session_id"].(string)
	require.NotEmpty(t, sessionID)

	w = f.do(t, http.MethodGet, "/sessions/"+sessionID+"/history", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/sessions/missing/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAskEndpointRunsInBackground(t *testing.T) {
	f := newAPIFixture(t)
	s := f.registry.Create(context.Background())

	w := f.do(t, http.MethodPost, "/sessions/"+s.ID+"/ask", `{"question":"My toddler won't sleep through the night"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		history, err := f.registry.History(s.ID)
		return err == nil && len(history) == 2
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodPost, "/sessions/"+s.ID+"/ask", `{"question":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/sessions/missing/ask", `{"question":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	s := f.registry.Create(ctx)

	require.NoError(t, f.orch.Ask(ctx, s.ID, "I'm thinking about hurting myself"))

	w := f.do(t, http.MethodGet, "/cases?status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	cases := decodeBody(t, w)["cases"].([]any)
	require.Len(t, cases, 1)
	caseID := cases[0].(map[string]any)["id"].(string)

	w = f.do(t, http.MethodGet, "/cases/"+caseID, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.NotNil(t, body["case"])
	transcript := body["transcript"].([]any)
	assert.Len(t, transcript, 2)

	w = f.do(t, http.MethodPost, "/cases/"+caseID+"/claim", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/cases/"+caseID+"/claim", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/cases/"+caseID+"/reply", `{"text":"Please call 988 right now. We're here for you."}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/cases/"+caseID+"/reply", `{"text":"again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/cases/missing/reply", `{"text":"hello"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/cases?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEndSession(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	idle := f.registry.Create(ctx)
	w := f.do(t, http.MethodDelete, "/sessions/"+idle.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	withCase := f.registry.Create(ctx)
	require.NoError(t, f.orch.Ask(ctx, withCase.ID, "how much ibuprofen is safe"))
	w = f.do(t, http.MethodDelete, "/sessions/"+withCase.ID, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodDelete, "/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
