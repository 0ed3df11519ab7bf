package llm

import (
	"context"
	"fmt"
	"strings"

	"acu-chatbot-go/internal/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIClient 适用于任何 OpenAI 兼容的接口（DeepSeek、Qwen 等）。
type openAIClient struct {
	cfg    config.LLMConfig
	client openai.Client
}

func newOpenAIClient(cfg config.LLMConfig) *openAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIClient{cfg: cfg, client: openai.NewClient(opts...)}
}

func (c *openAIClient) Name() string { return "openai" }

func (c *openAIClient) Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.buildParams(messages, gen))
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

func (c *openAIClient) Stream(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.buildParams(messages, gen))
	defer stream.Close()

	wrote := false
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		wrote = true
		if err := writer.WriteChunk(content); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}
	if !wrote {
		return errEmptyResponse
	}
	return nil
}

func (c *openAIClient) buildParams(messages []Message, gen *GenerationParams) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.Model),
		Messages: msgs,
	}
	if gen != nil {
		if gen.Temperature != nil {
			params.Temperature = openai.Float(*gen.Temperature)
		}
		if gen.TopP != nil {
			params.TopP = openai.Float(*gen.TopP)
		}
		if gen.MaxTokens != nil {
			params.MaxTokens = openai.Int(int64(*gen.MaxTokens))
		}
	}
	return params
}
