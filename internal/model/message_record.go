package model

import "time"

// Feedback 是用户对一条回复的评价，只允许 up 或 down。
type Feedback string

const (
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
)

// Valid 判断取值是否属于封闭枚举。
func (f Feedback) Valid() bool {
	return f == FeedbackUp || f == FeedbackDown
}

// MessageRecord 是持久化的消息审计记录。只追加，feedback 是唯一的原地更新。
type MessageRecord struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID    string    `gorm:"index;type:varchar(100);not null" json:"session_id"`
	Sender       Role      `gorm:"type:varchar(8);not null" json:"sender"`
	Text         string    `gorm:"type:text;not null" json:"text"`
	Timestamp    time.Time `gorm:"index;not null" json:"timestamp"`
	SourceTier   string    `gorm:"type:varchar(32);index" json:"source_tier,omitempty"`
	IntentName   string    `gorm:"type:varchar(64)" json:"intent_name,omitempty"`
	Feedback     *Feedback `gorm:"type:varchar(8)" json:"feedback"`
	FeedbackText string    `gorm:"type:text" json:"feedback_text,omitempty"`
	ResponseMS   int64     `json:"response_ms,omitempty"`
	Complete     bool      `gorm:"not null" json:"complete"`
}

func (MessageRecord) TableName() string {
	return "message_records"
}
