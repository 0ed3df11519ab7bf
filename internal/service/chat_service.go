// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/internal/pipeline"
	"acu-chatbot-go/internal/stream"
	"acu-chatbot-go/pkg/log"

	"github.com/google/uuid"
)

const (
	maxSessionIDLen    = 100
	maxClientHistory   = 20
	defaultMaxMsgRunes = 1000
)

// ChatRequest 是 /api/chat 系列接口的请求体。
type ChatRequest struct {
	Message   string       `json:"message"`
	SessionID string       `json:"session_id"`
	History   []model.Turn `json:"history"`
}

// ChatReply 是一次非流式回答。
type ChatReply struct {
	Response       string     `json:"response"`
	SourceTier     string     `json:"source_tier"`
	IntentName     string     `json:"intent_name,omitempty"`
	MsgID          string     `json:"msg_id"`
	SessionID      string     `json:"session_id"`
	FactsFetchedAt *time.Time `json:"facts_fetched_at,omitempty"`
}

// Resolver 把一条消息解析为回答。
type Resolver interface {
	Resolve(ctx context.Context, req pipeline.Request) pipeline.Resolution
}

// ChatConfig 是聊天服务的限制参数。
type ChatConfig struct {
	MaxMessageRunes int
	ChunkSize       int
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Validate 检查请求，失败时返回 INVALID_INPUT。
	Validate(req *ChatRequest) error
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)
	// ChatStream 把回答写入 sink，成功时最后发送 done 事件。
	ChatStream(ctx context.Context, req ChatRequest, sink stream.Sink) error
}

type chatService struct {
	resolver Resolver
	sessions SessionService
	recorder FeedbackService
	cfg      ChatConfig
	now      func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(resolver Resolver, sessions SessionService, recorder FeedbackService, cfg ChatConfig) ChatService {
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = defaultMaxMsgRunes
	}
	return &chatService{
		resolver: resolver,
		sessions: sessions,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

func invalid(msg string) error {
	return model.NewAppError(model.KindInvalidInput, msg)
}

func (s *chatService) Validate(req *ChatRequest) error {
	req.Message = strings.TrimSpace(req.Message)
	req.SessionID = strings.TrimSpace(req.SessionID)
	switch {
	case req.Message == "":
		return invalid("message must not be empty")
	case utf8.RuneCountInString(req.Message) > s.cfg.MaxMessageRunes:
		return invalid(fmt.Sprintf("message must be at most %d characters", s.cfg.MaxMessageRunes))
	case len(req.SessionID) > maxSessionIDLen:
		return invalid(fmt.Sprintf("session_id must be at most %d characters", maxSessionIDLen))
	case len(req.History) > maxClientHistory:
		return invalid(fmt.Sprintf("history must have at most %d items", maxClientHistory))
	}
	for _, t := range req.History {
		if t.Role != model.RoleUser && t.Role != model.RoleBot {
			return invalid("history role must be 'user' or 'bot'")
		}
	}
	return nil
}

// exchange 是一次请求在锁内的共享部分。
type exchange struct {
	ex      *Exchange
	started time.Time
	msgID   string
}

func (s *chatService) begin(ctx context.Context, req *ChatRequest) (*exchange, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	started := s.now().UTC()
	ex, err := s.sessions.Begin(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to begin session: %w", err)
	}
	if ex.Seed(req.History) {
		log.Debugf("[ChatService] 会话 %s 使用客户端提供的 %d 条历史", ex.Session.ID, len(ex.Session.Turns))
	}
	return &exchange{ex: ex, started: started, msgID: uuid.NewString()}, nil
}

// finish 在回答完整时提交会话，并始终写入两条消息记录。
func (s *chatService) finish(ctx context.Context, x *exchange, message string, res pipeline.Resolution, text string, tier pipeline.Tier, complete bool) {
	answeredAt := s.now().UTC()
	if complete {
		err := x.ex.Commit(ctx,
			model.Turn{Role: model.RoleUser, Text: message, Timestamp: x.started},
			model.Turn{Role: model.RoleBot, Text: text, Timestamp: answeredAt},
		)
		if err != nil {
			log.Error("[ChatService] 保存会话失败", err)
		}
	}

	user := &model.MessageRecord{
		ID:        uuid.NewString(),
		SessionID: x.ex.Session.ID,
		Sender:    model.RoleUser,
		Text:      message,
		Timestamp: x.started,
		Complete:  true,
	}
	bot := &model.MessageRecord{
		ID:         x.msgID,
		SessionID:  x.ex.Session.ID,
		Sender:     model.RoleBot,
		Text:       text,
		Timestamp:  answeredAt,
		SourceTier: string(tier),
		IntentName: res.IntentName,
		ResponseMS: answeredAt.Sub(x.started).Milliseconds(),
		Complete:   complete,
	}
	// 客户端断开后仍需写入记录
	if err := s.recorder.Record(context.WithoutCancel(ctx), user, bot); err != nil {
		log.Error("[ChatService] 写入消息记录失败", err)
	}
	log.Infow("[ChatService] 消息已解析",
		"session_id", x.ex.Session.ID,
		"msg_id", x.msgID,
		"tier", tier,
		"intent", res.IntentName,
		"trace", res.Trace,
		"complete", complete,
		"response_ms", bot.ResponseMS,
	)
}

func (s *chatService) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	x, err := s.begin(ctx, &req)
	if err != nil {
		return nil, err
	}
	defer x.ex.Release()

	res := s.resolver.Resolve(ctx, pipeline.Request{Message: req.Message, History: x.ex.History()})
	if res.State == pipeline.StateFailed {
		return nil, invalid("message must not be empty")
	}
	if res.ErrKind == model.KindUpstreamUnavailable {
		log.Warnw("[ChatService] 生成服务不可用，已使用兜底回复", "session_id", x.ex.Session.ID)
	}

	complete := ctx.Err() == nil
	s.finish(ctx, x, req.Message, res, res.Text, res.Tier, complete)
	if !complete {
		return nil, ctx.Err()
	}
	return &ChatReply{
		Response:       res.Text,
		SourceTier:     string(res.Tier),
		IntentName:     res.IntentName,
		MsgID:          x.msgID,
		SessionID:      x.ex.Session.ID,
		FactsFetchedAt: res.FactsFetchedAt,
	}, nil
}

func (s *chatService) ChatStream(ctx context.Context, req ChatRequest, sink stream.Sink) error {
	x, err := s.begin(ctx, &req)
	if err != nil {
		return err
	}
	defer x.ex.Release()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := s.resolver.Resolve(streamCtx, pipeline.Request{Message: req.Message, History: x.ex.History(), Stream: true})
	if res.State == pipeline.StateFailed {
		return invalid("message must not be empty")
	}

	out := stream.Forward(streamCtx, sink, res, s.cfg.ChunkSize)
	tier := res.Tier
	if out.Fallback {
		tier = pipeline.TierDelegateFallback
		log.Warnw("[ChatService] 流式生成中断，已追加兜底回复", "session_id", x.ex.Session.ID)
	}
	if !out.Complete {
		// 停止委托的生产者
		cancel()
		s.finish(ctx, x, req.Message, res, out.Text, tier, false)
		log.Infof("[ChatService] 连接已关闭，流式响应提前结束: %v", out.Err)
		return nil
	}

	s.finish(ctx, x, req.Message, res, out.Text, tier, true)
	done := stream.Event{
		Done:       true,
		MsgID:      x.msgID,
		SourceTier: string(tier),
		SessionID:  x.ex.Session.ID,
		FetchedAt:  res.FactsFetchedAt,
	}
	if err := sink.Send(done); err != nil {
		log.Warnf("[ChatService] 发送结束事件失败: %v", err)
	}
	return nil
}
