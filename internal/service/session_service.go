package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/internal/repository"
	"acu-chatbot-go/pkg/keylock"
	"acu-chatbot-go/pkg/log"

	"github.com/google/uuid"
)

// SessionService 管理会话历史。同一会话的交互从读取快照到提交期间独占该会话。
type SessionService interface {
	// Begin 锁定会话并返回一次交互。调用方必须 defer Exchange.Release()。
	Begin(ctx context.Context, id string) (*Exchange, error)
	// Prune 删除超过保留期未活跃的会话。
	Prune(ctx context.Context) (int, error)
}

// Exchange 是一次持有会话锁的交互。
type Exchange struct {
	// Session 是交互开始时的快照。
	Session model.Session
	// Created 表示会话在本次交互中新建（包括过期后重建）。
	Created bool

	svc     *sessionService
	unlock  func()
	commit  sync.Once
	release sync.Once
}

// History 返回快照中的历史。
func (e *Exchange) History() []model.Turn {
	return e.Session.Turns
}

// Seed 在会话为空时用客户端提供的历史填充快照，之后随 Commit 一起保存。
func (e *Exchange) Seed(turns []model.Turn) bool {
	if len(e.Session.Turns) > 0 || len(turns) == 0 {
		return false
	}
	if limit := e.svc.maxHistory; limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	e.Session.Turns = append([]model.Turn(nil), turns...)
	return true
}

// Commit 把本轮的消息追加到会话并持久化。只有第一次调用生效。
func (e *Exchange) Commit(ctx context.Context, turns ...model.Turn) error {
	var err error
	e.commit.Do(func() {
		sess := e.Session.Snapshot()
		sess.Append(e.svc.maxHistory, turns...)
		if err = e.svc.repo.Save(ctx, &sess); err != nil {
			err = fmt.Errorf("failed to save session %s: %w", sess.ID, err)
			return
		}
		e.Session = sess
	})
	return err
}

// Release 释放会话锁，可以多次调用。
func (e *Exchange) Release() {
	e.release.Do(e.unlock)
}

type sessionService struct {
	repo       repository.SessionRepository
	locks      *keylock.KeyLock
	maxHistory int
	retention  time.Duration
	now        func() time.Time
}

// NewSessionService 创建一个新的 SessionService。
func NewSessionService(repo repository.SessionRepository, maxHistory int, retention time.Duration) SessionService {
	return &sessionService{
		repo:       repo,
		locks:      keylock.New(),
		maxHistory: maxHistory,
		retention:  retention,
		now:        time.Now,
	}
}

// Begin 获取会话锁后读取会话。id 为空时生成新 id；不存在或已过期时惰性创建。
func (s *sessionService) Begin(ctx context.Context, id string) (*Exchange, error) {
	if id == "" {
		id = uuid.NewString()
	}
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	ex := &Exchange{svc: s, unlock: unlock}

	sess, ok, err := s.repo.Get(ctx, id)
	if err != nil {
		ex.Release()
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	now := s.now()
	if ok && sess.Expired(s.retention, now) {
		// SESSION_EXPIRED 对调用方透明：直接换成新会话
		log.Debugf("[SessionService] 会话 %s 已过期，重新创建", id)
		ok = false
	}
	if !ok {
		sess = &model.Session{ID: id, CreatedAt: now, LastActiveAt: now}
		ex.Created = true
	}
	ex.Session = sess.Snapshot()
	return ex, nil
}

func (s *sessionService) Prune(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	return s.repo.Prune(ctx, s.now().Add(-s.retention))
}
