package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/vincentbot/internal/config"
	"github.com/hyperjump/vincentbot/internal/embedding"
	"github.com/hyperjump/vincentbot/internal/generation"
	"github.com/hyperjump/vincentbot/internal/indexer"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/loader"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/pipeline"
	"github.com/hyperjump/vincentbot/internal/prompt"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	err error
}

func (g stubGenerator) Generate(ctx context.Context, p models.Prompt) (*models.Answer, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &models.Answer{Text: "Vincent built a chatbot."}, nil
}

type testServer struct {
	srv      *Server
	pipeline *pipeline.Pipeline
	catalog  *storage.SQLiteCatalog
}

func newTestServer(t *testing.T, gen generation.Generator) *testServer {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "profile.txt")
	require.NoError(t, os.WriteFile(src, []byte(
		"Vincent has five years of experience in backend systems.\n\n"+
			"Vincent built a chatbot using retrieval augmented generation."), 0600))

	chunker, err := indexer.NewChunker(50, 10)
	require.NoError(t, err)
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })
	passages, err := keyword.OpenPassageIndex(filepath.Join(dir, "passages"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = passages.Close() })
	store := vector.NewStore(filepath.Join(dir, "index"))

	idx := indexer.NewIndexer(chunker, embedding.NewNgramEmbedder(256), store,
		indexer.WithCatalog(catalog),
		indexer.WithPassages(passages),
		indexer.WithLoader(loader.NewLoader(nil), true),
	)
	p := pipeline.New(idx, prompt.NewAssembler(),
		pipeline.WithSources([]string{src}),
		pipeline.WithGenerator(gen),
		pipeline.WithK(2),
	)
	srv := NewServer(p, &config.ServerConfig{Host: "127.0.0.1", Port: 0, RequestTimeout: 5 * time.Second}, zap.NewNop(),
		WithCatalog(catalog),
		WithPassages(passages),
		WithDiskPaths(filepath.Join(dir, "index"), filepath.Join(dir, "catalog.db")),
	)
	return &testServer{srv: srv, pipeline: p, catalog: catalog}
}

func (ts *testServer) rebuild(t *testing.T) {
	t.Helper()
	_, err := ts.pipeline.Rebuild(context.Background())
	require.NoError(t, err)
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHandleChat(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	ts.rebuild(t)

	w, out := do(t, ts.srv.Router(), http.MethodPost, "/chat", `{"query":"What did Vincent build?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "Vincent built a chatbot.", out["response"])
	assert.NotContains(t, out, "error")
	sources, ok := out["sources"].([]interface{})
	require.True(t, ok)
	assert.Len(t, sources, 1)
}

func TestHandleChat_BadRequests(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	ts.rebuild(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `query=hello`, "invalid request body"},
		{"empty query", `{"query":"   "}`, pipeline.MsgInvalidArgument},
		{"missing query", `{}`, pipeline.MsgInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := do(t, ts.srv.Router(), http.MethodPost, "/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, out["error"])
		})
	}
}

func TestHandleChat_IndexUnavailable(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	w, out := do(t, ts.srv.Router(), http.MethodPost, "/chat", `{"query":"What did Vincent build?"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, pipeline.MsgIndexUnavailable, out["error"])
}

func TestHandleChat_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"generation timeout", models.NewTimeoutError(models.KindGenerationUnavailable, "generate", context.DeadlineExceeded),
			http.StatusOK, pipeline.MsgGenerationTimeout},
		{"generation unavailable", models.NewError(models.KindGenerationUnavailable, "generate", "bad gateway", nil),
			http.StatusOK, pipeline.MsgGenerationRetry},
		{"malformed", models.NewError(models.KindGenerationMalformed, "generate", "no choices", nil),
			http.StatusOK, pipeline.MsgGenerationMalformed},
		{"embedding", models.NewError(models.KindEmbeddingUnavailable, "embed", "down", nil),
			http.StatusOK, pipeline.MsgEmbeddingUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, pipeline.MsgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, stubGenerator{err: tt.err})
			ts.rebuild(t)
			w, out := do(t, ts.srv.Router(), http.MethodPost, "/chat", `{"query":"What did Vincent build?"}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.want, out["error"])
			assert.NotContains(t, out, "response")
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

func TestHandleChat_SlowUpstreamReturnsRetryMessage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(upstream.Close)
	gen, err := generation.NewOpenAIGenerator(generation.Options{
		APIKey:  "sk-test",
		BaseURL: upstream.URL + "/v1",
		Model:   "mistralai/mistral-7b-instruct",
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	ts := newTestServer(t, gen)
	ts.rebuild(t)
	w, out := do(t, ts.srv.Router(), http.MethodPost, "/chat", `{"query":"What did Vincent build?"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pipeline.MsgGenerationTimeout, out["error"])
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	_, out := do(t, ts.srv.Router(), http.MethodGet, "/health", "")
	assert.Equal(t, "degraded", out["status"])

	ts.rebuild(t)
	w, out := do(t, ts.srv.Router(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	ts.rebuild(t)

	w, out := do(t, ts.srv.Router(), http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ngram-v1-256", out["embedder"])
	assert.EqualValues(t, 1, out["documents"])
	assert.EqualValues(t, 3, out["chunks"])
	assert.Contains(t, out, "index")
	assert.Contains(t, out, "latest_build")
	assert.NotContains(t, out, "index_error")
	size, ok := out["disk_usage_bytes"].(float64)
	require.True(t, ok)
	assert.Greater(t, size, float64(0))
}

func TestHandleListDocuments(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	ts.rebuild(t)

	w, out := do(t, ts.srv.Router(), http.MethodGet, "/api/v1/documents?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	docs, ok := out["documents"].([]interface{})
	require.True(t, ok)
	require.Len(t, docs, 1)
	doc := docs[0].(map[string]interface{})
	assert.True(t, strings.HasSuffix(doc["source"].(string), "profile.txt"))

	w, _ = do(t, ts.srv.Router(), http.MethodGet, "/api/v1/documents?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePassages(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	ts.rebuild(t)

	w, out := do(t, ts.srv.Router(), http.MethodGet, "/api/v1/passages?q=chatbot&limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	hits, ok := out["passages"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].(map[string]interface{})["text"], "chatbot")

	w, _ = do(t, ts.srv.Router(), http.MethodGet, "/api/v1/passages", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, ts.srv.Router(), http.MethodGet, "/api/v1/passages?q=x&fuzziness=5", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRebuild(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})

	w, out := do(t, ts.srv.Router(), http.MethodPost, "/api/v1/rebuild", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, out["chunks"])
	assert.NotEmpty(t, out["build_id"])
	require.NoError(t, ts.pipeline.CheckIndex())
}

func TestHandleRebuild_OutlivesRequestTimeout(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	srv := NewServer(ts.pipeline, &config.ServerConfig{RequestTimeout: time.Nanosecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/rebuild", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, ts.pipeline.CheckIndex())
}

func TestServer_StopBeforeStart(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	srv := NewServer(ts.pipeline, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, zap.NewNop())

	require.NoError(t, srv.Stop(context.Background()))
	assert.ErrorIs(t, srv.Start(), http.ErrServerClosed)
}

func TestServer_StopWhileStarting(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	srv := NewServer(ts.pipeline, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, zap.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestHandlers_OptionalComponentsDisabled(t *testing.T) {
	ts := newTestServer(t, stubGenerator{})
	bare := NewServer(ts.pipeline, &config.ServerConfig{}, nil)

	w, _ := do(t, bare.Router(), http.MethodGet, "/api/v1/documents", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	w, _ = do(t, bare.Router(), http.MethodGet, "/api/v1/passages?q=chatbot", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	w, out := do(t, bare.Router(), http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, out, "documents")
	assert.Contains(t, out, "index_error")
}
