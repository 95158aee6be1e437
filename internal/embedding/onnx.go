//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-transformer ONNX model. It requires CGO and the
// onnxruntime shared library. Output vectors are unit-normalized.
//
// The session and its pre-allocated tensors are not safe for concurrent Run
// calls, so Embed serializes on a mutex.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder for the model at modelPath.
// A failure here (missing weights, bad model) is fatal for the caller; there is
// no lazy retry per call.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	tokenizer := &SimpleTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", maxTokens)

	inputIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	attentionMaskTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), attentionMask)
	if err != nil {
		inputIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tokenTypeIDsTensor, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), tokenTypeIDs)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	outputData := make([]float32, dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), outputData)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputIDsTensor.Destroy()
		attentionMaskTensor.Destroy()
		tokenTypeIDsTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:             session,
		dimensions:          dimensions,
		maxTokens:           maxTokens,
		tokenizer:           tokenizer,
		inputIDsTensor:      inputIDsTensor,
		attentionMaskTensor: attentionMaskTensor,
		tokenTypeIDsTensor:  tokenTypeIDsTensor,
		outputTensor:        outputTensor,
	}, nil
}

// Embed returns the unit-normalized embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.maxTokens)

	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	copy(e.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := e.outputTensor.GetData()
	vec := make([]float32, e.dimensions)
	copy(vec, outputData[:e.dimensions])

	NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []interface{ Destroy() error }{
		e.inputIDsTensor, e.attentionMaskTensor, e.tokenTypeIDsTensor, e.outputTensor,
	} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	e.inputIDsTensor = nil
	e.attentionMaskTensor = nil
	e.tokenTypeIDsTensor = nil
	e.outputTensor = nil
	return err
}
