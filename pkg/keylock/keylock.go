// Package keylock 提供按 key 互斥的锁，不同 key 之间互不阻塞。
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyLock 是一个按 key 分配的互斥锁集合。空闲的 key 会被回收。
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New 创建一个新的 KeyLock。
func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

// Lock 获取 key 对应的锁，等待期间遵守 ctx 的取消。
// 返回的 unlock 可以安全地被多次调用。
func (k *KeyLock) Lock(ctx context.Context, key string) (unlock func(), err error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *KeyLock) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len 返回当前被持有或等待中的 key 数量。
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
