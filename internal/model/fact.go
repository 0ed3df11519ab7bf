package model

import "time"

// FactSnippet 是由外部采集器刷新的一段结构化数据，按 topic 索引。
type FactSnippet struct {
	Topic     string        `yaml:"topic" json:"topic"`
	Payload   string        `yaml:"payload" json:"payload"`
	FetchedAt time.Time     `yaml:"fetched_at" json:"fetched_at"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

// Stale 判断片段是否已过期。TTL 为 0 表示永不过期。
func (f FactSnippet) Stale(now time.Time) bool {
	return f.TTL > 0 && f.FetchedAt.Add(f.TTL).Before(now)
}
