package embedding

import (
	"context"
	"strings"
)

// Provider produces fixed-dimension embeddings from input strings
type Provider interface {
	Dimensions() int
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// NewProvider selects an embedding provider by name.
// Unknown providers fall back to a deterministic hash-based embedder,
// which keeps the pipeline runnable without an inference backend.
func NewProvider(providerName string, dims int) Provider {
	if dims <= 0 {
		dims = 384
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	switch name {
	case "hash", "", "dev":
		return NewHashProvider(dims)
	default:
		return NewHashProvider(dims)
	}
}
