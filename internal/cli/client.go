package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/pipeline"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/internal/vector"
)

// RemoteError is a failure reported by a vincentbot server. Message is already safe
// to show to users.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// ErrorMessage returns the user-facing text for err, whether it came from a server or
// from a local pipeline.
func ErrorMessage(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Message
	}
	return pipeline.UserMessage(err)
}

// Client asks questions through a running vincentbot server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ask posts query to /chat.
func (c *Client) Ask(ctx context.Context, query string) (*models.Answer, error) {
	body, err := json.Marshal(models.ChatRequest{Query: query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	var out models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: pipeline.MsgInternal}
	}
	if out.Error != "" {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: pipeline.MsgInternal}
	}
	return &models.Answer{
		Text:          out.Response,
		Sources:       out.Sources,
		DroppedChunks: out.DroppedChunks,
		Took:          time.Since(start),
	}, nil
}

// Passages runs a keyword lookup on the server.
func (c *Client) Passages(ctx context.Context, query string, limit, fuzziness int) ([]keyword.Passage, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	if fuzziness > 0 {
		q.Set("fuzziness", strconv.Itoa(fuzziness))
	}
	var out struct {
		Passages []keyword.Passage `json:"passages"`
	}
	if err := c.get(ctx, "/api/v1/passages?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Passages, nil
}

// Status fetches the server's status document.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out struct {
		Embedder       string           `json:"embedder"`
		Index          *vector.Manifest `json:"index"`
		IndexError     string           `json:"index_error"`
		Documents      int64            `json:"documents"`
		Chunks         int64            `json:"chunks"`
		LatestBuild    *storage.Build   `json:"latest_build"`
		Passages       uint64           `json:"passages"`
		DiskUsageBytes int64            `json:"disk_usage_bytes"`
	}
	if err := c.get(ctx, "/api/v1/status", &out); err != nil {
		return nil, err
	}
	s := &Status{
		Embedder:       out.Embedder,
		IndexError:     out.IndexError,
		Documents:      out.Documents,
		Chunks:         out.Chunks,
		Passages:       out.Passages,
		DiskUsageBytes: out.DiskUsageBytes,
	}
	if out.Index != nil {
		s.SetIndex(*out.Index)
	}
	s.SetLatestBuild(out.LatestBuild)
	return s, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: body.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
