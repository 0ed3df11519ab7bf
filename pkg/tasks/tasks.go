// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// FactRefreshTask 请求所有实例刷新外部数据片段。
type FactRefreshTask struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason,omitempty"`
}
