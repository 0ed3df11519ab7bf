// Package embedding provides clients for interacting with embedding models.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"acu-chatbot-go/internal/config"
)

// ErrDisabled 表示语义匹配未启用或缺少凭据。
var ErrDisabled = errors.New("embedding: disabled")

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// CreateEmbeddings 批量生成向量，返回顺序与输入一致。
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.EmbeddingConfig) (Client, error) {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil, ErrDisabled
	}
	switch cfg.Provider {
	case "", "gemini":
		return newGenAIClient(ctx, cfg)
	case "openai":
		return newOpenAICompatibleClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

func first(ctx context.Context, c Client, text string) ([]float32, error) {
	vecs, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("received empty embedding from api")
	}
	return vecs[0], nil
}
