package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/internal/repository"
)

const (
	BucketHour = "hour"
	BucketDay  = "day"

	maxRecentLimit = 200
)

var periods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"all": 0,
}

// FeedbackService 记录消息并提供反馈与统计。读操作不会修改任何数据。
type FeedbackService interface {
	Record(ctx context.Context, records ...*model.MessageRecord) error
	SetFeedback(ctx context.Context, msgID, value, text string) (*model.Feedback, error)
	Summary(ctx context.Context, period, bucket string) (*model.Summary, error)
	Recent(ctx context.Context, limit int) ([]model.MessageRecord, error)
}

type feedbackService struct {
	repo repository.MessageRepository
	now  func() time.Time
}

// NewFeedbackService 创建一个新的 FeedbackService。
func NewFeedbackService(repo repository.MessageRepository) FeedbackService {
	return &feedbackService{repo: repo, now: time.Now}
}

func (s *feedbackService) Record(ctx context.Context, records ...*model.MessageRecord) error {
	return s.repo.Create(ctx, records...)
}

// SetFeedback 切换一条机器人消息的反馈，返回切换后的取值（nil 表示已清除）。
func (s *feedbackService) SetFeedback(ctx context.Context, msgID, value, text string) (*model.Feedback, error) {
	fb := model.Feedback(value)
	if !fb.Valid() {
		return nil, model.NewAppError(model.KindInvalidInput, "value must be 'up' or 'down'")
	}
	if msgID == "" {
		return nil, model.NewAppError(model.KindInvalidInput, "msg_id is required")
	}
	rec, err := s.repo.FindByID(ctx, msgID)
	if errors.Is(err, model.ErrRecordNotFound) {
		return nil, model.NewAppError(model.KindNotFound, "message not found")
	}
	if err != nil {
		return nil, err
	}
	if rec.Sender != model.RoleBot {
		return nil, model.NewAppError(model.KindInvalidInput, "feedback is only accepted for bot messages")
	}
	updated, err := s.repo.ToggleFeedback(ctx, msgID, fb, text)
	if errors.Is(err, model.ErrRecordNotFound) {
		return nil, model.NewAppError(model.KindNotFound, "message not found")
	}
	if err != nil {
		return nil, err
	}
	return updated.Feedback, nil
}

// Summary 按时间段汇总消息记录。bucket 为空时 24h 按小时、其余按天分桶。
func (s *feedbackService) Summary(ctx context.Context, period, bucket string) (*model.Summary, error) {
	if period == "" {
		period = "7d"
	}
	span, ok := periods[period]
	if !ok {
		return nil, model.NewAppError(model.KindInvalidInput, "period must be one of 24h, 7d, 30d, all")
	}
	if bucket == "" {
		bucket = BucketDay
		if period == "24h" {
			bucket = BucketHour
		}
	}
	if bucket != BucketHour && bucket != BucketDay {
		return nil, model.NewAppError(model.KindInvalidInput, "bucket must be 'hour' or 'day'")
	}

	var since *time.Time
	if span > 0 {
		t := s.now().UTC().Add(-span)
		since = &t
	}
	records, err := s.repo.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}
	sum := aggregate(records, bucket)
	sum.Period = period
	sum.Since = since
	return sum, nil
}

func aggregate(records []model.MessageRecord, bucket string) *model.Summary {
	sum := &model.Summary{
		Bucket:             bucket,
		SourceDistribution: map[string]model.Share{},
		IntentDistribution: map[string]model.Share{},
		Buckets:            []model.BucketCount{},
	}
	sessions := map[string]struct{}{}
	buckets := map[time.Time]int64{}
	var latencyTotal, latencyCount int64

	for _, rec := range records {
		sum.TotalMessages++
		sessions[rec.SessionID] = struct{}{}
		buckets[truncate(rec.Timestamp, bucket)]++

		if rec.Sender != model.RoleBot {
			sum.UserMessages++
			continue
		}
		sum.BotMessages++
		if !rec.Complete {
			sum.IncompleteResponses++
		}
		tier := rec.SourceTier
		if tier == "" {
			tier = "unknown"
		}
		sh := sum.SourceDistribution[tier]
		sh.Count++
		sum.SourceDistribution[tier] = sh

		intent := rec.IntentName
		if intent == "" {
			intent = "none"
		}
		sh = sum.IntentDistribution[intent]
		sh.Count++
		sum.IntentDistribution[intent] = sh

		switch {
		case rec.Feedback == nil:
			sum.Feedback.None++
		case *rec.Feedback == model.FeedbackUp:
			sum.Feedback.Up++
		default:
			sum.Feedback.Down++
		}
		if rec.Complete && rec.ResponseMS > 0 {
			latencyTotal += rec.ResponseMS
			latencyCount++
		}
	}
	sum.UniqueSessions = int64(len(sessions))

	for _, dist := range []map[string]model.Share{sum.SourceDistribution, sum.IntentDistribution} {
		for k, sh := range dist {
			sh.Pct = pct(sh.Count, sum.BotMessages)
			dist[k] = sh
		}
	}
	for start, n := range buckets {
		sum.Buckets = append(sum.Buckets, model.BucketCount{Start: start, Count: n})
	}
	sort.Slice(sum.Buckets, func(i, j int) bool { return sum.Buckets[i].Start.Before(sum.Buckets[j].Start) })

	if latencyCount > 0 {
		avg := math.Round(float64(latencyTotal)/float64(latencyCount)*10) / 10
		sum.AvgResponseMS = &avg
	}
	return sum
}

func truncate(t time.Time, bucket string) time.Time {
	t = t.UTC()
	if bucket == BucketHour {
		return t.Truncate(time.Hour)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

// Recent 返回最近的消息记录，limit 被限制在 [1, 200]。
func (s *feedbackService) Recent(ctx context.Context, limit int) ([]model.MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.repo.Recent(ctx, limit)
}
