package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/vincentbot/internal/indexer"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/pipeline"
)

func TestWriteAnswer_text(t *testing.T) {
	answer := &models.Answer{
		Text:          "Vincent built a chatbot.",
		Sources:       []string{"/data/profile_docs/github_data.txt", "/data/profile_docs/cv_text.txt"},
		DroppedChunks: 2,
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, answer, OutputText); err != nil {
		t.Fatalf("WriteAnswer(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Vincent built a chatbot.", "Sources: github_data.txt, cv_text.txt", "2 context chunks dropped"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Contains(out, "/data/profile_docs") {
		t.Errorf("text output should show base names only:\n%s", out)
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	answer := &models.Answer{Text: "hi", Sources: []string{"a.txt"}, Took: time.Second}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, answer, OutputJSON); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded models.Answer
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Text != "hi" || len(decoded.Sources) != 1 {
		t.Errorf("decoded %+v", decoded)
	}
}

func TestWritePassages(t *testing.T) {
	passages := []keyword.Passage{{Source: "/x/cv_text.txt", Index: 3, Text: "Backend engineer", Score: 1.25}}
	var buf bytes.Buffer
	if err := WritePassages(&buf, "backend", passages, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{`Found 1 passages for "backend"`, "Rank: 1", "Score: 1.2500", "cv_text.txt #3", "Backend engineer"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WritePassages(&buf, "nothing", nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"passages": []`) {
		t.Errorf("empty JSON should carry an empty list, got %s", buf.String())
	}
}

func TestWriteReport(t *testing.T) {
	report := &indexer.Report{
		BuildID: "b-1", Documents: 2, Chunks: 7, Dimensions: 512, ModelID: "ngram-v1-512",
		Took: 1500 * time.Millisecond, Warnings: []string{"passages: disk full"},
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Indexed 2 documents into 7 chunks", "512 dimensions", "ngram-v1-512", "1.5s", "Build: b-1", "warning: passages: disk full"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteStatus(t *testing.T) {
	built := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Status{
		Embedder: "ngram-v1-512", IndexLoaded: true, IndexModel: "ngram-v1-512", IndexEntries: 12,
		Dimensions: 512, BuiltAt: &built, IndexBuildID: "b-9", Documents: 2, Chunks: 12, DiskUsageBytes: 2048,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"12 entries", "build b-9", "2 documents, 12 chunks", "2.0 KiB"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteStatus(&buf, &Status{Embedder: "x", IndexError: "no index loaded"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "not loaded") || !strings.Contains(buf.String(), "no index loaded") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	if ParseOutputFormat("JSON") != OutputJSON {
		t.Error("JSON should parse case-insensitively")
	}
	if ParseOutputFormat("yaml") != OutputText {
		t.Error("unknown formats should fall back to text")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateWords(tt.s, tt.maxWords); got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}

func TestClient_Ask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req models.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Query {
		case "slow":
			_ = json.NewEncoder(w).Encode(models.ChatResponse{Error: pipeline.MsgGenerationTimeout})
		case "down":
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(models.ChatResponse{Error: pipeline.MsgIndexUnavailable})
		default:
			_ = json.NewEncoder(w).Encode(models.ChatResponse{Response: "Vincent built a chatbot.", Sources: []string{"cv.txt"}})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	answer, err := c.Ask(context.Background(), "What did Vincent build?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "Vincent built a chatbot." || len(answer.Sources) != 1 {
		t.Errorf("answer = %+v", answer)
	}

	_, err = c.Ask(context.Background(), "slow")
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusOK {
		t.Fatalf("want RemoteError with 200, got %v", err)
	}
	if ErrorMessage(err) != pipeline.MsgGenerationTimeout {
		t.Errorf("ErrorMessage = %q", ErrorMessage(err))
	}

	_, err = c.Ask(context.Background(), "down")
	if ErrorMessage(err) != pipeline.MsgIndexUnavailable {
		t.Errorf("ErrorMessage = %q", ErrorMessage(err))
	}
}

func TestErrorMessage_local(t *testing.T) {
	err := models.NewError(models.KindEmbeddingUnavailable, "embed", "down", nil)
	if got := ErrorMessage(err); got != pipeline.MsgEmbeddingUnavailable {
		t.Errorf("ErrorMessage = %q", got)
	}
}

func TestClient_PassagesAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/passages":
			if r.URL.Query().Get("q") != "backend engineer" || r.URL.Query().Get("limit") != "3" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"passages": []keyword.Passage{{ChunkID: "c1", Text: "Backend engineer", Score: 0.7}},
			})
		case "/api/v1/status":
			if r.URL.Query().Get("broken") != "" {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": pipeline.MsgInternal})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"embedder":     "ngram-v1-512",
				"index":        map[string]interface{}{"model_id": "ngram-v1-512", "build_id": "b-2", "dimensions": 512, "count": 3},
				"documents":    1,
				"chunks":       3,
				"latest_build": map[string]interface{}{"id": "b-2", "status": "succeeded", "documents": 1, "chunks": 3},
			})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	hits, err := c.Passages(context.Background(), "backend engineer", 3, 0)
	if err != nil {
		t.Fatalf("Passages: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "c1" {
		t.Errorf("hits = %+v", hits)
	}

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.IndexLoaded || status.IndexEntries != 3 || status.Chunks != 3 {
		t.Errorf("status = %+v", status)
	}
	if !strings.HasPrefix(status.LatestBuild, "b-2 succeeded") {
		t.Errorf("latest build = %q", status.LatestBuild)
	}

	var remote *RemoteError
	err = c.get(context.Background(), "/api/v1/status?broken=1", &struct{}{})
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusInternalServerError {
		t.Fatalf("want RemoteError 500, got %v", err)
	}
}
