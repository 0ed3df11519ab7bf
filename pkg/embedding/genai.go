package embedding

import (
	"context"
	"fmt"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/pkg/log"

	"google.golang.org/genai"
)

const semanticSimilarity = "SEMANTIC_SIMILARITY"

type genAIClient struct {
	cfg    config.EmbeddingConfig
	client *genai.Client
}

func newGenAIClient(ctx context.Context, cfg config.EmbeddingConfig) (*genAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &genAIClient{cfg: cfg, client: client}, nil
}

func (c *genAIClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return first(ctx, c, text)
}

func (c *genAIClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	embedCfg := &genai.EmbedContentConfig{TaskType: semanticSimilarity}
	if c.cfg.Dimensions > 0 {
		embedCfg.OutputDimensionality = genai.Ptr(int32(c.cfg.Dimensions))
	}

	result, err := c.client.Models.EmbedContent(ctx, c.cfg.Model, contents, embedCfg)
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	log.Debugf("[EmbeddingClient] genai 返回 %d 个向量, model: %s", len(out), c.cfg.Model)
	return out, nil
}
