// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"acu-chatbot-go/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 定义了消息记录的数据操作接口。
type MessageRepository interface {
	Create(ctx context.Context, records ...*model.MessageRecord) error
	FindByID(ctx context.Context, id string) (*model.MessageRecord, error)
	ToggleFeedback(ctx context.Context, id string, value model.Feedback, text string) (*model.MessageRecord, error)
	ListSince(ctx context.Context, since *time.Time) ([]model.MessageRecord, error)
	Recent(ctx context.Context, limit int) ([]model.MessageRecord, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create 在一个事务中写入一组消息记录。
func (r *messageRepository) Create(ctx context.Context, records ...*model.MessageRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			// SQLite 以带时区偏移的文本存储时间，统一为 UTC 才能按字符串比较区间。
			rec.Timestamp = rec.Timestamp.UTC()
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("failed to create message record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*model.MessageRecord, error) {
	var rec model.MessageRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MySQL 的单表 UPDATE 按从左到右求值，feedback_text 必须先于 feedback 赋值，
// 才能与 SQLite 一样读到旧的 feedback。
const toggleFeedbackSQL = `UPDATE message_records SET
	feedback_text = CASE WHEN feedback = ? THEN '' ELSE ? END,
	feedback = CASE WHEN feedback = ? THEN NULL ELSE ? END
	WHERE id = ?`

// ToggleFeedback 以单条语句原子地切换反馈：相同取值清空，不同取值覆盖。
func (r *messageRepository) ToggleFeedback(ctx context.Context, id string, value model.Feedback, text string) (*model.MessageRecord, error) {
	var rec model.MessageRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(toggleFeedbackSQL, string(value), text, string(value), string(value), id)
		if res.Error != nil {
			return fmt.Errorf("failed to update feedback: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return model.ErrRecordNotFound
		}
		return tx.Where("id = ?", id).First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSince 返回 since 之后（含）的全部记录，since 为 nil 时返回全部。
func (r *messageRepository) ListSince(ctx context.Context, since *time.Time) ([]model.MessageRecord, error) {
	var records []model.MessageRecord
	q := r.db.WithContext(ctx).Model(&model.MessageRecord{})
	if since != nil {
		q = q.Where("timestamp >= ?", since.UTC())
	}
	err := q.Order("timestamp asc").Find(&records).Error
	return records, err
}

// Recent 按时间倒序返回最近的 limit 条记录。
func (r *messageRepository) Recent(ctx context.Context, limit int) ([]model.MessageRecord, error) {
	var records []model.MessageRecord
	err := r.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&records).Error
	return records, err
}
