package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"acu-chatbot-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestChat_GreetingWithoutCredential(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	reply, err := h.chat.Chat(ctx, ChatRequest{Message: "Merhaba", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, greeting, reply.Response)
	assert.Equal(t, "rule", reply.SourceTier)
	assert.Equal(t, "selamlasma", reply.IntentName)
	assert.Equal(t, "s1", reply.SessionID)
	assert.NotEmpty(t, reply.MsgID)

	sess, ok, err := h.sessRepo.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, model.RoleUser, sess.Turns[0].Role)
	assert.Equal(t, greeting, sess.Turns[1].Text)

	rec, err := h.msgs.FindByID(ctx, reply.MsgID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleBot, rec.Sender)
	assert.Equal(t, "rule", rec.SourceTier)
	assert.True(t, rec.Complete)
	assert.Nil(t, rec.Feedback)
}

func TestChat_NoMatchWithoutCredentialReturnsNoAnswer(t *testing.T) {
	h := newHarness(t, nil)
	reply, err := h.chat.Chat(context.Background(), ChatRequest{Message: "kuantum fiziği nedir"})
	require.NoError(t, err)
	assert.Equal(t, noAnswerText, reply.Response)
	assert.Equal(t, "delegate_fallback", reply.SourceTier)
	assert.NotEmpty(t, reply.SessionID, "boş session_id 时生成新的")
}

func TestChat_UpstreamFailureIsNotAnError(t *testing.T) {
	h := newHarness(t, &scriptedLLM{err: fmt.Errorf("quota exceeded")})
	reply, err := h.chat.Chat(context.Background(), ChatRequest{Message: "yurt başvurusu nasıl yapılır"})
	require.NoError(t, err)
	assert.Equal(t, fallbackText, reply.Response)
	assert.Equal(t, "delegate_fallback", reply.SourceTier)
}

func TestChat_Validation(t *testing.T) {
	h := newHarness(t, nil)
	cases := map[string]ChatRequest{
		"empty":        {Message: "   "},
		"too long":     {Message: strings.Repeat("ş", 1001)},
		"long session": {Message: "merhaba", SessionID: strings.Repeat("a", 101)},
		"history size": {Message: "merhaba", History: make([]model.Turn, 21)},
		"history role": {Message: "merhaba", History: []model.Turn{{Role: "system", Text: "x"}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.chat.Chat(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, model.KindInvalidInput, model.KindOf(err))
		})
	}
	// 恰好 1000 个字符是允许的
	_, err := h.chat.Chat(context.Background(), ChatRequest{Message: strings.Repeat("ş", 1000)})
	assert.NoError(t, err)
}

func TestChat_ClientHistoryUsedForEmptySession(t *testing.T) {
	llmClient := &scriptedLLM{chunks: []string{"Tabii."}}
	h := newHarness(t, llmClient)
	ctx := context.Background()
	history := []model.Turn{
		{Role: model.RoleUser, Text: "yurtlar hakkında bilgi"},
		{Role: model.RoleBot, Text: "Kampüste iki yurt var."},
	}
	_, err := h.chat.Chat(ctx, ChatRequest{Message: "fiyatları nedir", SessionID: "s2", History: history})
	require.NoError(t, err)

	require.Len(t, llmClient.seen, 1)
	msgs := llmClient.seen[0]
	require.Len(t, msgs, 4) // system + 2 条历史 + 本轮
	assert.Equal(t, "Kampüste iki yurt var.", msgs[2].Content)

	sess, _, _ := h.sessRepo.Get(ctx, "s2")
	assert.Len(t, sess.Turns, 4)

	// 服务端已有历史时忽略客户端历史
	_, err = h.chat.Chat(ctx, ChatRequest{Message: "teşekkürler", SessionID: "s2", History: history[:1]})
	require.NoError(t, err)
	assert.Len(t, llmClient.seen[1], 6)
}

func TestChat_SameSessionExchangesAreSerialized(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.chat.Chat(ctx, ChatRequest{Message: "merhaba", SessionID: "shared"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, ok, err := h.sessRepo.Get(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sess.Turns, 2*n)
	for i := 0; i < len(sess.Turns); i += 2 {
		assert.Equal(t, model.RoleUser, sess.Turns[i].Role)
		assert.Equal(t, model.RoleBot, sess.Turns[i+1].Role)
	}
}

func TestChatStream_ConcatenationEqualsAtomic(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	atomic, err := h.chat.Chat(ctx, ChatRequest{Message: "merhaba", SessionID: "a"})
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, h.chat.ChatStream(ctx, ChatRequest{Message: "merhaba", SessionID: "b"}, sink))
	require.GreaterOrEqual(t, len(sink.events), 2)
	assert.Equal(t, atomic.Response, sink.tokens())

	done := sink.last()
	assert.True(t, done.Done)
	assert.Equal(t, "rule", done.SourceTier)
	assert.Equal(t, "b", done.SessionID)
	rec, err := h.msgs.FindByID(ctx, done.MsgID)
	require.NoError(t, err)
	assert.Equal(t, atomic.Response, rec.Text)

	sess, _, _ := h.sessRepo.Get(ctx, "b")
	assert.Len(t, sess.Turns, 2)
}

func TestChatStream_DelegateIncrements(t *testing.T) {
	h := newHarness(t, &scriptedLLM{chunks: []string{"Yemekhane ", "12:00'de ", "açılır."}})
	sink := &recordingSink{}
	require.NoError(t, h.chat.ChatStream(context.Background(), ChatRequest{Message: "yemekhane ne zaman açılıyor", SessionID: "d"}, sink))
	assert.Equal(t, "Yemekhane 12:00'de açılır.", sink.tokens())
	assert.Equal(t, "delegate", sink.last().SourceTier)
}

func TestChatStream_MidwayFailureAppendsFallback(t *testing.T) {
	h := newHarness(t, &scriptedLLM{chunks: []string{"Kısmi cevap"}, err: fmt.Errorf("stream reset")})
	sink := &recordingSink{}
	require.NoError(t, h.chat.ChatStream(context.Background(), ChatRequest{Message: "burs başvurusu", SessionID: "f"}, sink))
	assert.Equal(t, "Kısmi cevap\n\n"+fallbackText, sink.tokens())
	done := sink.last()
	assert.Equal(t, "delegate_fallback", done.SourceTier)

	rec, err := h.msgs.FindByID(context.Background(), done.MsgID)
	require.NoError(t, err)
	assert.Equal(t, sink.tokens(), rec.Text)
}

func TestChatStream_DisconnectSkipsTurnAndRecordsIncomplete(t *testing.T) {
	h := newHarness(t, &scriptedLLM{chunks: []string{"bir ", "iki ", "üç "}, block: true})
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	sink := &recordingSink{failAt: 3}
	require.NoError(t, h.chat.ChatStream(ctx, ChatRequest{Message: "uzun bir soru", SessionID: "gone"}, sink))
	assert.Equal(t, "bir iki ", sink.tokens())
	for _, ev := range sink.events {
		assert.False(t, ev.Done)
	}

	sess, ok, _ := h.sessRepo.Get(ctx, "gone")
	assert.False(t, ok && len(sess.Turns) > 0, "未完成的交互不能写入会话")

	recent, err := h.msgs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	var bot *model.MessageRecord
	for i := range recent {
		if recent[i].Sender == model.RoleBot {
			bot = &recent[i]
		}
	}
	require.NotNil(t, bot)
	assert.False(t, bot.Complete)
	assert.Equal(t, "bir iki ", bot.Text)

	// 断开后会话锁必须已释放，同一会话的下一条消息能立即处理
	next, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := h.chat.Chat(next, ChatRequest{Message: "merhaba", SessionID: "gone"})
	require.NoError(t, err)
	assert.Equal(t, greeting, reply.Response)
	assert.Equal(t, "gone", reply.SessionID)
}

func TestChat_CancelledWhileWaitingForSessionLock(t *testing.T) {
	h := newHarness(t, nil)
	ex, err := h.sessions.Begin(context.Background(), "busy")
	require.NoError(t, err)
	defer ex.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.chat.Chat(ctx, ChatRequest{Message: "merhaba", SessionID: "busy"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
