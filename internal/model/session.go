// Package model 包含了应用的数据模型定义。
package model

import "time"

// Role 标识一条对话或消息记录的发送方。
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn 代表会话历史中的一条消息。
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session 是一个有界的会话上下文，由会话存储独占持有。
type Session struct {
	ID           string    `json:"id"`
	Turns        []Turn    `json:"turns"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Snapshot 返回一份历史的深拷贝，供流水线只读使用。
func (s Session) Snapshot() Session {
	cp := s
	cp.Turns = make([]Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return cp
}

// Append 追加若干条消息，并从最旧的一端裁剪到 max 条以内。max <= 0 表示不限制。
func (s *Session) Append(max int, turns ...Turn) {
	s.Turns = append(s.Turns, turns...)
	if max > 0 && len(s.Turns) > max {
		s.Turns = append([]Turn(nil), s.Turns[len(s.Turns)-max:]...)
	}
	if n := len(turns); n > 0 {
		s.LastActiveAt = turns[n-1].Timestamp
	}
}

// Expired 判断会话自最后活跃以来是否已超过保留期。
func (s Session) Expired(retention time.Duration, now time.Time) bool {
	return retention > 0 && s.LastActiveAt.Add(retention).Before(now)
}
