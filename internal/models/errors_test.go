package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := NewError(KindIndexUnavailable, "vector.load", "missing index", nil)
	wrapped := fmt.Errorf("startup: %w", err)

	assert.True(t, errors.Is(wrapped, ErrIndexUnavailable))
	assert.False(t, errors.Is(wrapped, ErrEmbeddingUnavailable))
	assert.Equal(t, KindIndexUnavailable, KindOf(wrapped))
}

func TestError_UnwrapReachesCause(t *testing.T) {
	err := NewTimeoutError(KindGenerationUnavailable, "generate", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, IsTimeout(err))
	assert.True(t, IsTransient(err))
}

func TestError_Message(t *testing.T) {
	err := NewError(KindGenerationUnavailable, "generate", "upstream error", errors.New("boom"))
	err.StatusCode = 502
	assert.Equal(t, "generate: generation_unavailable: status=502: upstream error: boom", err.Error())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"embedding unavailable", NewError(KindEmbeddingUnavailable, "embed", "down", nil), true},
		{"generation unavailable", NewError(KindGenerationUnavailable, "generate", "down", nil), true},
		{"malformed", NewError(KindGenerationMalformed, "generate", "no choices", nil), false},
		{"invalid argument", NewError(KindInvalidArgument, "query", "k", nil), false},
		{"plain error", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransient_MalformedNeverRetryable(t *testing.T) {
	err := NewError(KindGenerationMalformed, "generate", "bad json", nil)
	err.Transient = true
	assert.False(t, IsTransient(err))
}

func TestChatRequest_Validate(t *testing.T) {
	req := &ChatRequest{Query: "  What did Vincent build?\n"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "What did Vincent build?", req.Query)

	empty := &ChatRequest{Query: "   "}
	err := empty.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRetrievalResult_SourcesDistinctInRankOrder(t *testing.T) {
	r := &RetrievalResult{Chunks: []ScoredChunk{
		{Chunk: Chunk{Source: "cv.txt", Text: "a"}},
		{Chunk: Chunk{Source: "github.txt", Text: "b"}},
		{Chunk: Chunk{Source: "cv.txt", Text: "c"}},
	}}
	assert.Equal(t, []string{"cv.txt", "github.txt"}, r.Sources())
	assert.Equal(t, []string{"a", "b", "c"}, r.Texts())

	var nilResult *RetrievalResult
	assert.Nil(t, nilResult.Texts())
}
