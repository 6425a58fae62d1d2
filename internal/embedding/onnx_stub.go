//go:build !cgo

package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

var errONNXUnavailable = fmt.Errorf("onnx embedding needs a cgo build linked against onnxruntime: %w", models.ErrEmbeddingUnavailable)

// ONNXEmbedder is unavailable in builds without cgo; NewONNXEmbedder always fails.
type ONNXEmbedder struct{}

func NewONNXEmbedder(string, int, int) (*ONNXEmbedder, error) {
	return nil, errONNXUnavailable
}

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errONNXUnavailable
}

func (*ONNXEmbedder) Dimensions() int { return 0 }

func (*ONNXEmbedder) Close() error { return nil }
