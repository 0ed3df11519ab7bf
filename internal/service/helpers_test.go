package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/internal/pipeline"
	"acu-chatbot-go/internal/repository"
	"acu-chatbot-go/internal/stream"
	"acu-chatbot-go/pkg/llm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	greeting     = "Merhaba! Size nasıl yardımcı olabilirim?"
	noAnswerText = "Bu konuda size yardımcı olamıyorum."
	fallbackText = "Üzgünüm, şu anda AI servisine bağlanamıyorum."
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.MessageRecord{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// scriptedLLM 按 chunks 输出；block 为 true 时输出完后等待取消。
type scriptedLLM struct {
	mu     sync.Mutex
	chunks []string
	err    error
	block  bool
	seen   [][]llm.Message
}

func (f *scriptedLLM) Name() string { return "scripted" }

func (f *scriptedLLM) record(msgs []llm.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, msgs)
}

func (f *scriptedLLM) Generate(ctx context.Context, msgs []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.record(msgs)
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.chunks, ""), nil
}

func (f *scriptedLLM) Stream(ctx context.Context, msgs []llm.Message, _ *llm.GenerationParams, w llm.ChunkWriter) error {
	f.record(msgs)
	for _, c := range f.chunks {
		if err := w.WriteChunk(c); err != nil {
			return err
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

type harness struct {
	chat     ChatService
	sessions SessionService
	feedback FeedbackService
	msgs     repository.MessageRepository
	sessRepo repository.SessionRepository
}

func newHarness(t *testing.T, client llm.Client) *harness {
	t.Helper()
	intents := []model.Intent{
		{
			Name:             "selamlasma",
			Patterns:         []model.Pattern{{Kind: model.PatternExact, Value: "merhaba"}},
			ResponseTemplate: greeting,
		},
		{
			Name:             "kutuphane",
			Patterns:         []model.Pattern{{Kind: model.PatternKeywords, Value: "kutuphane saat*"}},
			ResponseTemplate: "Kütüphane 08:00-22:00 arası açıktır.",
		},
	}
	rules, err := pipeline.NewRuleMatcher(intents, 8)
	require.NoError(t, err)

	var delegate *pipeline.Delegate
	if client != nil {
		delegate = pipeline.NewDelegate(client, config.LLMConfig{HistoryTurns: 10}, fallbackText)
	}
	resolver := pipeline.NewResolver(rules, nil, delegate, nil, pipeline.ResolverConfig{
		NoAnswerText:    noAnswerText,
		UnavailableText: "Bu bilgi şu anda mevcut değil.",
	})

	h := &harness{
		msgs:     repository.NewMessageRepository(newTestDB(t)),
		sessRepo: repository.NewMemorySessionRepository(),
	}
	h.sessions = NewSessionService(h.sessRepo, 20, 0)
	h.feedback = NewFeedbackService(h.msgs)
	h.chat = NewChatService(resolver, h.sessions, h.feedback, ChatConfig{MaxMessageRunes: 1000, ChunkSize: 4})
	return h
}

var errClosed = errors.New("connection closed")

type recordingSink struct {
	mu     sync.Mutex
	events []stream.Event
	failAt int
}

func (s *recordingSink) Send(ev stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.events)+1 >= s.failAt {
		return errClosed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) tokens() string {
	var b strings.Builder
	for _, ev := range s.events {
		b.WriteString(ev.Token)
	}
	return b.String()
}

func (s *recordingSink) last() stream.Event {
	return s.events[len(s.events)-1]
}
