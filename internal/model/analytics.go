package model

import "time"

// FeedbackCounts 按反馈极性统计的机器人消息数。
type FeedbackCounts struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
	None int64 `json:"none"`
}

// BucketCount 是一个时间桶内的消息数。
type BucketCount struct {
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

// Share 是分布中的一项。
type Share struct {
	Count int64   `json:"count"`
	Pct   float64 `json:"pct"`
}

// Summary 是对消息记录的只读聚合结果。
type Summary struct {
	Period              string           `json:"period"`
	Bucket              string           `json:"bucket"`
	Since               *time.Time       `json:"since,omitempty"`
	TotalMessages       int64            `json:"total_messages"`
	UserMessages        int64            `json:"user_messages"`
	BotMessages         int64            `json:"bot_messages"`
	UniqueSessions      int64            `json:"unique_sessions"`
	IncompleteResponses int64            `json:"incomplete_responses"`
	SourceDistribution  map[string]Share `json:"source_distribution"`
	IntentDistribution  map[string]Share `json:"intent_distribution"`
	Feedback            FeedbackCounts   `json:"feedback"`
	Buckets             []BucketCount    `json:"buckets"`
	AvgResponseMS       *float64         `json:"avg_response_ms"`
}
