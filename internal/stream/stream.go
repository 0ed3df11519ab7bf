// Package stream 负责把解析结果以分段事件的形式发送给客户端。
package stream

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"acu-chatbot-go/internal/pipeline"
)

// Event 是下发给客户端的一个流式事件。
type Event struct {
	Token      string     `json:"token,omitempty"`
	Done       bool       `json:"done,omitempty"`
	MsgID      string     `json:"msg_id,omitempty"`
	SourceTier string     `json:"source_tier,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Message    string     `json:"message,omitempty"`
	FetchedAt  *time.Time `json:"facts_fetched_at,omitempty"`
}

// Sink 是一种传输方式（SSE、WebSocket）。Send 返回错误表示连接已不可用。
type Sink interface {
	Send(ev Event) error
}

// Outcome 是一次转发的结果。
type Outcome struct {
	// Text 是已成功下发的全部文本。
	Text string
	// Fallback 表示委托流中途失败并追加了兜底文案。
	Fallback bool
	// Complete 为 false 表示因连接关闭或取消而提前结束。
	Complete bool
	Err      error
}

// Chunk 把文本按 size 个字符切段，不会拆开一个 rune。
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = 4
	}
	var chunks []string
	for len(text) > 0 {
		i, n := 0, 0
		for i < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[i:])
			i += w
			n++
		}
		chunks = append(chunks, text[:i])
		text = text[i:]
	}
	return chunks
}

// Forward 把解析结果逐段写入 sink，不发送终止事件。
// 已知文本按 chunkSize 切段；委托流按收到的顺序原样转发。
// 提前结束时调用方应取消 ctx 以停止委托的生产者。
func Forward(ctx context.Context, sink Sink, res pipeline.Resolution, chunkSize int) Outcome {
	var sent strings.Builder
	if res.Increments == nil {
		for _, c := range Chunk(res.Text, chunkSize) {
			if err := ctx.Err(); err != nil {
				return Outcome{Text: sent.String(), Err: err}
			}
			if err := sink.Send(Event{Token: c}); err != nil {
				return Outcome{Text: sent.String(), Err: err}
			}
			sent.WriteString(c)
		}
		return Outcome{Text: sent.String(), Complete: true}
	}

	fallback := false
	for {
		select {
		case <-ctx.Done():
			return Outcome{Text: sent.String(), Fallback: fallback, Err: ctx.Err()}
		case inc, ok := <-res.Increments:
			if !ok {
				// 委托在父 ctx 取消时会静默关闭通道
				if err := ctx.Err(); err != nil {
					return Outcome{Text: sent.String(), Fallback: fallback, Err: err}
				}
				return Outcome{Text: sent.String(), Fallback: fallback, Complete: true}
			}
			if inc.Fallback {
				fallback = true
			}
			if inc.Text == "" {
				continue
			}
			if err := sink.Send(Event{Token: inc.Text}); err != nil {
				return Outcome{Text: sent.String(), Fallback: fallback, Err: err}
			}
			sent.WriteString(inc.Text)
		}
	}
}
