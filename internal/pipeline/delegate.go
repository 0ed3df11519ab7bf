package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/llm"
	"acu-chatbot-go/pkg/log"
)

// errConsumerGone 表示下游已不再读取增量。
var errConsumerGone = errors.New("consumer gone")

// fallbackSeparator 用在中途失败时，把兜底文案与已发送部分隔开。
const fallbackSeparator = "\n\n"

// DelegateRequest 是组装上下文所需的输入。
type DelegateRequest struct {
	Message string
	History []model.Turn
	Facts   []model.FactSnippet
}

// Increment 是委托层输出的一段增量。Fallback 表示这是替代上游失败的兜底文案。
type Increment struct {
	Text     string
	Fallback bool
}

// Delegate 调用外部生成式服务。上游错误与超时都在此处被吸收为兜底文案。
type Delegate struct {
	client       llm.Client
	cfg          config.LLMConfig
	gen          *llm.GenerationParams
	fallbackText string
}

// NewDelegate 创建委托层。client 为 nil 表示未配置凭据。
func NewDelegate(client llm.Client, cfg config.LLMConfig, fallbackText string) *Delegate {
	return &Delegate{
		client:       client,
		cfg:          cfg,
		gen:          llm.ParamsFromConfig(cfg.Generation),
		fallbackText: fallbackText,
	}
}

// Configured 表示是否配置了生成式服务凭据。
func (d *Delegate) Configured() bool {
	return d != nil && d.client != nil
}

// BuildMessages 组装 system 提示、片段、最近历史与用户消息。
func (d *Delegate) BuildMessages(req DelegateRequest) []llm.Message {
	refStart := d.cfg.Prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := d.cfg.Prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	if d.cfg.Prompt.Rules != "" {
		sys.WriteString(d.cfg.Prompt.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if len(req.Facts) > 0 {
		for _, f := range req.Facts {
			sys.WriteString("[")
			sys.WriteString(f.Topic)
			sys.WriteString("] ")
			sys.WriteString(f.Payload)
			sys.WriteString("\n")
		}
	} else if d.cfg.Prompt.NoResultText != "" {
		sys.WriteString(d.cfg.Prompt.NoResultText)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)

	history := req.History
	if n := d.cfg.HistoryTurns; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: sys.String()})
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == model.RoleBot {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Message})
	return msgs
}

func (d *Delegate) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, d.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// Answer 一次性获取回答。失败时返回兜底文案与 fellBack=true，不会返回错误。
func (d *Delegate) Answer(ctx context.Context, req DelegateRequest) (text string, fellBack bool) {
	callCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	text, err := d.client.Generate(callCtx, d.BuildMessages(req), d.gen)
	if err != nil {
		log.Warnw("生成式服务调用失败，使用兜底回复",
			"kind", model.KindUpstreamUnavailable,
			"provider", d.client.Name(),
			"latency", time.Since(start).String(),
			"error", err)
		return d.fallbackText, true
	}
	return text, false
}

// Stream 启动一次流式调用，按顺序输出增量，结束时关闭通道。
// 上游出错或超时时追加一段兜底增量；ctx 被取消时静默退出。
func (d *Delegate) Stream(ctx context.Context, req DelegateRequest) <-chan Increment {
	out := make(chan Increment)
	go func() {
		defer close(out)
		callCtx, cancel := d.withTimeout(ctx)
		defer cancel()

		sent := false
		writer := llm.ChunkWriterFunc(func(text string) error {
			select {
			case out <- Increment{Text: text}:
				sent = true
				return nil
			case <-ctx.Done():
				return errConsumerGone
			}
		})

		err := d.client.Stream(callCtx, d.BuildMessages(req), d.gen, writer)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			// 调用方已取消（例如客户端断开），不再产生任何输出。
			return
		}
		log.Warnw("生成式服务流式调用失败，追加兜底回复",
			"kind", model.KindUpstreamUnavailable,
			"provider", d.client.Name(),
			"partial", sent,
			"error", err)

		text := d.fallbackText
		if sent {
			text = fallbackSeparator + d.fallbackText
		}
		select {
		case out <- Increment{Text: text, Fallback: true}:
		case <-ctx.Done():
		}
	}()
	return out
}
