// Package llm provides clients for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"

	"acu-chatbot-go/internal/config"
)

// ErrNotConfigured 表示未配置凭据，属于正常的配置状态而不是故障。
var ErrNotConfigured = errors.New("llm: credential not configured")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// ChunkWriter 接收流式输出的增量文本。
type ChunkWriter interface {
	WriteChunk(text string) error
}

// ChunkWriterFunc 让普通函数满足 ChunkWriter。
type ChunkWriterFunc func(text string) error

func (f ChunkWriterFunc) WriteChunk(text string) error { return f(text) }

// Client defines the interface for an LLM client.
type Client interface {
	// Generate 一次性返回完整回答。
	Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// Stream 按顺序把增量写入 writer，writer 返回错误时立即停止。
	Stream(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) error
	Name() string
}

// NewClient creates a new LLM client based on the provider in the config.
// 未配置 API Key 时返回 ErrNotConfigured。
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.Provider {
	case "", "gemini":
		return newGeminiClient(ctx, cfg)
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// ParamsFromConfig 把配置中的非零生成参数转换为 GenerationParams。
func ParamsFromConfig(cfg config.LLMGenerationConfig) *GenerationParams {
	gen := &GenerationParams{}
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gen.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gen.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gen.MaxTokens = &m
	}
	return gen
}
