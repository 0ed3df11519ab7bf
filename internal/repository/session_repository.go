package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"acu-chatbot-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// SessionRepository 定义了会话历史的存取接口。
type SessionRepository interface {
	// Get 返回会话，不存在时 ok 为 false。
	Get(ctx context.Context, id string) (sess *model.Session, ok bool, err error)
	Save(ctx context.Context, sess *model.Session) error
	Delete(ctx context.Context, id string) error
	// Prune 删除在 before 之前最后活跃的会话，返回删除数量。
	Prune(ctx context.Context, before time.Time) (int, error)
}

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewMemorySessionRepository 创建一个进程内的 SessionRepository。
func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{sessions: make(map[string]model.Session)}
}

func (r *memorySessionRepository) Get(_ context.Context, id string) (*model.Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, false, nil
	}
	cp := sess.Snapshot()
	return &cp, true, nil
}

func (r *memorySessionRepository) Save(_ context.Context, sess *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess.Snapshot()
	return nil
}

func (r *memorySessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepository) Prune(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, sess := range r.sessions {
		if sess.LastActiveAt.Before(before) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

type redisSessionRepository struct {
	redisClient *redis.Client
	retention   time.Duration
}

// NewRedisSessionRepository 创建一个基于 Redis 的 SessionRepository，键的过期时间等于保留期。
func NewRedisSessionRepository(redisClient *redis.Client, retention time.Duration) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient, retention: retention}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func (r *redisSessionRepository) Get(ctx context.Context, id string) (*model.Session, bool, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal(jsonData, &sess); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, true, nil
}

func (r *redisSessionRepository) Save(ctx context.Context, sess *model.Session) error {
	jsonData, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(sess.ID), jsonData, r.retention).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, id string) error {
	return r.redisClient.Del(ctx, sessionKey(id)).Err()
}

// Prune 依赖键过期完成清理，这里只回收没有设置 TTL 的遗留键。
func (r *redisSessionRepository) Prune(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	iter := r.redisClient.Scan(ctx, 0, "session:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := r.redisClient.TTL(ctx, key).Result()
		if err != nil || ttl != -1 {
			continue
		}
		jsonData, err := r.redisClient.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var sess model.Session
		if err := json.Unmarshal(jsonData, &sess); err != nil || sess.LastActiveAt.Before(before) {
			if err := r.redisClient.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan session keys: %w", err)
	}
	return removed, nil
}
