package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/vincentbot/internal/config"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testPrompt = models.Prompt{
	Messages: []models.Message{
		{Role: models.RoleSystem, Content: "You are Vincent Bot.\n\nContext:\nVincent built a chatbot."},
		{Role: models.RoleUser, Content: "What did Vincent build?"},
	},
	ContextChunks: 1,
	DroppedChunks: 2,
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "gen-1",
		"object":  "chat.completion",
		"model":   "mistralai/mistral-7b-instruct",
		"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	})
	return string(b)
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *OpenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewOpenAIGenerator(Options{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Model:   "mistralai/mistral-7b-instruct",
		Timeout: timeout,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	return g
}

func TestGenerate(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Model    string           `json:"model"`
			Messages []models.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistralai/mistral-7b-instruct", req.Model)
		assert.Equal(t, testPrompt.Messages, req.Messages)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("  Vincent built a chatbot using RAG.\n")))
	}, time.Second)

	answer, err := g.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "Vincent built a chatbot using RAG.", answer.Text)
	assert.Equal(t, "mistralai/mistral-7b-instruct", answer.Model)
	assert.Equal(t, 2, answer.DroppedChunks)
}

func TestGenerate_failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      models.ErrorKind
		transient bool
	}{
		{"no choices", 200, `{"id":"x","object":"chat.completion","choices":[]}`, models.KindGenerationMalformed, false},
		{"empty content", 200, completion("   "), models.KindGenerationMalformed, false},
		{"undecodable json", 200, `{"choices": [ {"message": `, models.KindGenerationMalformed, false},
		{"server error", 500, `{"error":{"message":"upstream exploded","type":"server_error"}}`, models.KindGenerationUnavailable, true},
		{"bad gateway html", 502, `<html>bad gateway</html>`, models.KindGenerationUnavailable, true},
		{"rate limited", 429, `{"error":{"message":"slow down","type":"rate_limit"}}`, models.KindGenerationUnavailable, true},
		{"unauthorized", 401, `{"error":{"message":"no auth","type":"auth"}}`, models.KindGenerationUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, time.Second)

			_, err := g.Generate(context.Background(), testPrompt)
			require.Error(t, err)
			assert.Equal(t, tt.kind, models.KindOf(err))
			assert.Equal(t, tt.transient, models.IsTransient(err))
			assert.False(t, models.IsTimeout(err))
		})
	}
}

func TestGenerate_timeout(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	start := time.Now()
	_, err := g.Generate(context.Background(), testPrompt)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	assert.True(t, models.IsTimeout(err))
}

func TestGenerate_transportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	g, err := NewOpenAIGenerator(Options{APIKey: "k", BaseURL: url + "/v1", Model: "m"})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), testPrompt)
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	assert.True(t, models.IsTransient(err))
}

func TestNewOpenAIGenerator_requiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(Options{Model: "m"})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

type scripted struct {
	errs  []error
	calls atomic.Int32
}

func (s *scripted) Generate(ctx context.Context, p models.Prompt) (*models.Answer, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &models.Answer{Text: "ok"}, nil
}

func transient() error {
	return models.NewError(models.KindGenerationUnavailable, "generate", "503", nil)
}

func TestWithRetry_retriesTransient(t *testing.T) {
	inner := &scripted{errs: []error{transient(), transient()}}
	answer, err := WithRetry(inner, 3, time.Millisecond, nil).Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestWithRetry_neverRepeatsMalformed(t *testing.T) {
	inner := &scripted{errs: []error{models.NewError(models.KindGenerationMalformed, "generate", "no choices", nil)}}
	_, err := WithRetry(inner, 3, time.Millisecond, nil).Generate(context.Background(), testPrompt)
	assert.ErrorIs(t, err, models.ErrGenerationMalformed)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestWithRetry_capsAttempts(t *testing.T) {
	inner := &scripted{errs: []error{transient(), transient(), transient(), transient(), transient()}}
	_, err := WithRetry(inner, 10, time.Millisecond, nil).Generate(context.Background(), testPrompt)
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	assert.Equal(t, int32(MaxAttempts), inner.calls.Load())
}

func TestWithRetry_doublesDelay(t *testing.T) {
	inner := &scripted{errs: []error{transient(), transient(), transient()}}
	start := time.Now()
	_, err := WithRetry(inner, 3, 20*time.Millisecond, nil).Generate(context.Background(), testPrompt)
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	// Waits of 20ms then 40ms; none after the last attempt.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestWithRetry_honoursCancellation(t *testing.T) {
	inner := &scripted{errs: []error{transient(), transient()}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := WithRetry(inner, 3, time.Second, nil).Generate(ctx, testPrompt)
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestWithRetry_retriesRealUpstream(t *testing.T) {
	var calls atomic.Int32
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"warming up"}}`))
			return
		}
		_, _ = w.Write([]byte(completion("second time lucky")))
	}, time.Second)

	answer, err := WithRetry(g, 2, time.Millisecond, zap.NewNop()).Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", answer.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_fromConfig(t *testing.T) {
	t.Setenv("VINCENTBOT_TEST_GEN_KEY", "sk")
	cfg := config.GenerationConfig{Model: "m", APIKeyEnv: "VINCENTBOT_TEST_GEN_KEY", MaxAttempts: 1}
	g, err := New(cfg, nil)
	require.NoError(t, err)
	_, plain := g.(*OpenAIGenerator)
	assert.True(t, plain)

	cfg.MaxAttempts = 3
	g, err = New(cfg, nil)
	require.NoError(t, err)
	_, retrying := g.(*Retrying)
	assert.True(t, retrying)

	cfg.APIKeyEnv = "VINCENTBOT_TEST_GEN_KEY_UNSET"
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
