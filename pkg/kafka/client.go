// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/pkg/log"
	"acu-chatbot-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete refresh implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.FactRefreshTask) error
}

// Producer 把刷新任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// ProduceRefreshTask 发送一个刷新任务到 Kafka。
func (p *Producer) ProduceRefreshTask(ctx context.Context, task tasks.FactRefreshTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理刷新任务，直到 ctx 被取消。
// 每个实例使用独立的 groupID，使每条刷新请求都能到达所有实例。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, groupID string, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6, // 1MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s', group '%s'", cfg.Topic, groupID)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.FactRefreshTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		log.Infof("收到刷新任务: id=%s, by=%s, offset=%d", task.ID, task.RequestedBy, m.Offset)
		if err := processor.Process(ctx, task); err != nil {
			// 刷新是幂等的，下一次定时刷新会补上，不做重试。
			log.Errorf("处理刷新任务失败: id=%s, error: %v", task.ID, err)
		}
		commit(ctx, r, m)
	}
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", fmt.Errorf("offset %d: %w", m.Offset, err))
	}
}
