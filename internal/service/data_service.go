package service

import (
	"context"
	"fmt"
	"time"

	"acu-chatbot-go/internal/facts"
	"acu-chatbot-go/pkg/log"
	"acu-chatbot-go/pkg/tasks"

	"github.com/google/uuid"
)

// FactRefresher 执行一次数据片段刷新。
type FactRefresher interface {
	Refresh(ctx context.Context) (facts.Report, error)
}

// RefreshPublisher 把刷新任务广播给所有实例。
type RefreshPublisher interface {
	ProduceRefreshTask(ctx context.Context, task tasks.FactRefreshTask) error
}

// RefreshResult 是 /api/update-data 的响应。
type RefreshResult struct {
	Status string        `json:"status"` // updated | queued
	TaskID string        `json:"task_id"`
	Report *facts.Report `json:"report,omitempty"`
}

// DataService 负责触发和执行外部数据刷新。
type DataService interface {
	TriggerRefresh(ctx context.Context, requestedBy, reason string) (*RefreshResult, error)
	// Process 执行一个刷新任务，满足 kafka.TaskProcessor。
	Process(ctx context.Context, task tasks.FactRefreshTask) error
}

type dataService struct {
	refresher FactRefresher
	publisher RefreshPublisher
}

// NewDataService 创建 DataService。publisher 为 nil 时在本进程内同步刷新。
func NewDataService(refresher FactRefresher, publisher RefreshPublisher) DataService {
	return &dataService{refresher: refresher, publisher: publisher}
}

func (s *dataService) TriggerRefresh(ctx context.Context, requestedBy, reason string) (*RefreshResult, error) {
	task := tasks.FactRefreshTask{
		ID:          uuid.NewString(),
		RequestedAt: time.Now().UTC(),
		RequestedBy: requestedBy,
		Reason:      reason,
	}
	if s.publisher != nil {
		if err := s.publisher.ProduceRefreshTask(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to publish refresh task: %w", err)
		}
		log.Infof("[DataService] 刷新任务已发送到 Kafka, task_id=%s", task.ID)
		return &RefreshResult{Status: "queued", TaskID: task.ID}, nil
	}

	report, err := s.refresher.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("fact refresh failed: %w", err)
	}
	return &RefreshResult{Status: "updated", TaskID: task.ID, Report: &report}, nil
}

func (s *dataService) Process(ctx context.Context, task tasks.FactRefreshTask) error {
	log.Infof("[DataService] 开始处理刷新任务 task_id=%s requested_by=%s", task.ID, task.RequestedBy)
	report, err := s.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("fact refresh failed: %w", err)
	}
	log.Infow("[DataService] 刷新任务完成",
		"task_id", task.ID,
		"version", report.Version,
		"updated", report.Updated,
		"failed", len(report.Failed),
		"duration", report.Duration,
	)
	return nil
}
