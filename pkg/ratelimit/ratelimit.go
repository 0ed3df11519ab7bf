// Package ratelimit 实现按 key 的滑动窗口准入控制。
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// Limiter 在任意长度为 window 的区间内，对同一个 key 最多放行 limit 次请求。
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

// Option 配置 Limiter。
type Option func(*Limiter)

// WithClock 替换时间源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New 创建一个滑动窗口限流器。limit <= 0 表示不限流。
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{limit: limit, window: window, now: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string][]time.Time)}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Allow 判断 key 的本次请求是否被放行，放行时计入窗口。
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Admit(key)
	return ok
}

// Admit 与 Allow 相同，拒绝时额外返回最早可重试的等待时长。
func (l *Limiter) Admit(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := prune(s.windows[key], cutoff)
	if len(stamps) >= l.limit {
		s.windows[key] = stamps
		retry := stamps[0].Add(l.window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry
	}
	s.windows[key] = append(stamps, now)
	return true, 0
}

// 时间戳按放行顺序追加，因此是单调的，只需丢弃前缀。
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// Sweep 删除窗口内已没有记录的 key，返回删除数量。
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.window)
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, stamps := range s.windows {
			kept := prune(stamps, cutoff)
			if len(kept) == 0 {
				delete(s.windows, key)
				removed++
				continue
			}
			s.windows[key] = kept
		}
		s.mu.Unlock()
	}
	return removed
}

// Len 返回当前跟踪的 key 数量。
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}
