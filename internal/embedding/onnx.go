//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-transformer (all-MiniLM-L6-v2 by default) through ONNX
// Runtime and mean-pools the last hidden state over the attention mask. It requires CGO
// and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	modelName  string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	// Tensors are allocated once; Embed overwrites the inputs and reads the output.
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	hidden        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXEmbedder loads the model at modelPath.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, models.NewError(models.KindInvalidConfiguration, "embedding.onnx", "initialize onnx runtime", err)
		}
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}

	tokenizer := &SimpleTokenizer{}
	ids, mask, types := tokenizer.Tokenize("", maxTokens)
	shape := ort.NewShape(1, int64(maxTokens))

	e := &ONNXEmbedder{
		modelName:  filepath.Base(modelPath),
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  tokenizer,
	}
	var err error
	if e.inputIDs, err = ort.NewTensor(shape, ids); err != nil {
		return nil, e.fail("create input_ids tensor", err)
	}
	if e.attentionMask, err = ort.NewTensor(shape, mask); err != nil {
		return nil, e.fail("create attention_mask tensor", err)
	}
	if e.tokenTypeIDs, err = ort.NewTensor(shape, types); err != nil {
		return nil, e.fail("create token_type_ids tensor", err)
	}
	if e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(maxTokens), int64(dimensions))); err != nil {
		return nil, e.fail("create output tensor", err)
	}

	e.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask, e.tokenTypeIDs},
		[]ort.ArbitraryTensor{e.hidden},
		nil,
	)
	if err != nil {
		return nil, e.fail("create onnx session", err)
	}
	return e, nil
}

func (e *ONNXEmbedder) fail(msg string, err error) error {
	_ = e.Close()
	return models.NewError(models.KindInvalidConfiguration, "embedding.onnx", msg, err)
}

// Embed returns the mean-pooled, L2-normalised sentence embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	copy(e.tokenTypeIDs.GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, models.NewError(models.KindEmbeddingUnavailable, "embedding.onnx", "inference failed", err)
	}

	hidden := e.hidden.GetData()
	vec := make([]float32, e.dimensions)
	var tokens float32
	for t := 0; t < e.maxTokens; t++ {
		if mask[t] == 0 {
			continue
		}
		tokens++
		row := hidden[t*e.dimensions : (t+1)*e.dimensions]
		for i, v := range row {
			vec[i] += v
		}
	}
	if tokens > 0 {
		for i := range vec {
			vec[i] /= tokens
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the hidden size.
func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// ModelID returns "onnx-<model file>-<dims>".
func (e *ONNXEmbedder) ModelID() string {
	return fmt.Sprintf("onnx-%s-%d", e.modelName, e.dimensions)
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []interface{ Destroy() error }{e.inputIDs, e.attentionMask, e.tokenTypeIDs, e.hidden} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	e.inputIDs, e.attentionMask, e.tokenTypeIDs, e.hidden = nil, nil, nil, nil
	return err
}
