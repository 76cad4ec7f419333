//go:build !cgo

package embedding

import (
	"context"

	"github.com/hyperjump/vincentbot/internal/models"
)

// ONNXEmbedder is unavailable without CGO; see onnx.go.
type ONNXEmbedder struct{}

// NewONNXEmbedder returns InvalidConfiguration when built without CGO.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, models.NewError(models.KindInvalidConfiguration, "embedding.onnx",
		"onnx embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime", nil)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, nil }

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) ModelID() string { return "onnx" }

func (e *ONNXEmbedder) Close() error { return nil }
