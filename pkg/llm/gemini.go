package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"acu-chatbot-go/internal/config"

	"google.golang.org/genai"
)

var errEmptyResponse = errors.New("empty response from model")

type geminiClient struct {
	cfg    config.LLMConfig
	client *genai.Client
}

func newGeminiClient(ctx context.Context, cfg config.LLMConfig) (*geminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiClient{cfg: cfg, client: client}, nil
}

func (c *geminiClient) Name() string { return "gemini" }

func (c *geminiClient) Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	contents, genCfg := buildGeminiRequest(messages, gen)
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

func (c *geminiClient) Stream(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) error {
	contents, genCfg := buildGeminiRequest(messages, gen)
	wrote := false
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.cfg.Model, contents, genCfg) {
		if err != nil {
			return fmt.Errorf("failed to read from gemini stream: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		wrote = true
		if err := writer.WriteChunk(text); err != nil {
			return err
		}
	}
	if !wrote {
		return errEmptyResponse
	}
	return nil
}

// buildGeminiRequest 把 system 消息合并为 SystemInstruction，其余映射为 user/model 轮次。
func buildGeminiRequest(messages []Message, gen *GenerationParams) ([]*genai.Content, *genai.GenerateContentConfig) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	genCfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if gen != nil {
		if gen.Temperature != nil {
			genCfg.Temperature = genai.Ptr(float32(*gen.Temperature))
		}
		if gen.TopP != nil {
			genCfg.TopP = genai.Ptr(float32(*gen.TopP))
		}
		if gen.MaxTokens != nil {
			genCfg.MaxOutputTokens = int32(*gen.MaxTokens)
		}
	}
	return contents, genCfg
}
