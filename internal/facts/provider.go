// Package facts 维护外部数据片段（菜单、校历、公告、天气）的只读快照及其刷新。
package facts

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"acu-chatbot-go/internal/model"
)

// Snapshot 是某一时刻全部片段的不可变视图。
type Snapshot struct {
	Version   uint64                       `json:"version"`
	UpdatedAt time.Time                    `json:"updated_at"`
	Snippets  map[string]model.FactSnippet `json:"snippets"`
}

// Provider 以原子替换的方式发布快照，读路径无锁。
type Provider struct {
	snap atomic.Pointer[Snapshot]
	// 写者之间串行，保证版本号单调。
	writeMu sync.Mutex
	now     func() time.Time
}

// Option 配置 Provider。
type Option func(*Provider)

// WithClock 替换时间源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider 创建一个空快照的 Provider。
func NewProvider(opts ...Option) *Provider {
	p := &Provider{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.snap.Store(&Snapshot{Snippets: map[string]model.FactSnippet{}})
	return p
}

// Snapshot 返回当前快照，调用方不得修改。
func (p *Provider) Snapshot() *Snapshot {
	return p.snap.Load()
}

// Lookup 返回未过期的片段。
func (p *Provider) Lookup(topic string) (model.FactSnippet, bool) {
	s, ok := p.snap.Load().Snippets[topic]
	if !ok || s.Stale(p.now()) {
		return model.FactSnippet{}, false
	}
	return s, true
}

// Fresh 返回全部未过期片段，按 topic 排序。
func (p *Provider) Fresh() []model.FactSnippet {
	now := p.now()
	snap := p.snap.Load()
	out := make([]model.FactSnippet, 0, len(snap.Snippets))
	for _, s := range snap.Snippets {
		if !s.Stale(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// Merge 在当前快照基础上覆盖给定 topic，发布新版本。未出现的 topic 保留旧值。
func (p *Provider) Merge(snippets []model.FactSnippet) *Snapshot {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	old := p.snap.Load()
	next := &Snapshot{
		Version:   old.Version + 1,
		UpdatedAt: p.now(),
		Snippets:  make(map[string]model.FactSnippet, len(old.Snippets)+len(snippets)),
	}
	for k, v := range old.Snippets {
		next.Snippets[k] = v
	}
	for _, s := range snippets {
		next.Snippets[s.Topic] = s
	}
	p.snap.Store(next)
	return next
}

// Restore 用归档的快照预热。只有当前快照为空时生效。
func (p *Provider) Restore(snap *Snapshot) bool {
	if snap == nil || len(snap.Snippets) == 0 {
		return false
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if len(p.snap.Load().Snippets) > 0 {
		return false
	}
	cp := &Snapshot{Version: snap.Version, UpdatedAt: snap.UpdatedAt, Snippets: make(map[string]model.FactSnippet, len(snap.Snippets))}
	for k, v := range snap.Snippets {
		cp.Snippets[k] = v
	}
	p.snap.Store(cp)
	return true
}
