package facts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/log"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Report 描述一次刷新的结果。
type Report struct {
	Version  uint64            `json:"version"`
	Updated  []string          `json:"updated"`
	Failed   map[string]string `json:"failed,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Refresher 并行运行全部采集器，并把成功的结果合并进 Provider。
// 失败的采集器保留旧片段。
type Refresher struct {
	provider   *Provider
	collectors []Collector
	archive    *Archive
	timeout    time.Duration
	group      singleflight.Group
}

// NewRefresher 创建刷新器。archive 可以为 nil。
func NewRefresher(provider *Provider, collectors []Collector, archive *Archive, timeout time.Duration) *Refresher {
	return &Refresher{
		provider:   provider,
		collectors: collectors,
		archive:    archive,
		timeout:    timeout,
	}
}

// Refresh 执行一次刷新。并发调用会合并为同一次执行。
func (r *Refresher) Refresh(ctx context.Context) (Report, error) {
	v, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		return r.refresh(ctx)
	})
	if shared {
		log.Debugf("[Refresher] 复用进行中的刷新结果")
	}
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (r *Refresher) refresh(ctx context.Context) (Report, error) {
	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		snippets []model.FactSnippet
		failed   = map[string]string{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range r.collectors {
		g.Go(func() error {
			got, err := c.Collect(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[c.Name()] = err.Error()
				log.Warnw("数据采集失败，保留旧片段", "collector", c.Name(), "error", err)
				return nil
			}
			snippets = append(snippets, got...)
			return nil
		})
	}
	_ = g.Wait()

	if len(snippets) == 0 && len(failed) > 0 && len(failed) == len(r.collectors) {
		return Report{Failed: failed, Duration: time.Since(start), Version: r.provider.Snapshot().Version}, errors.New("all collectors failed")
	}

	snap := r.provider.Merge(snippets)
	report := Report{Version: snap.Version, Failed: failed, Duration: time.Since(start)}
	for _, s := range snippets {
		report.Updated = append(report.Updated, s.Topic)
	}
	sort.Strings(report.Updated)
	if len(report.Failed) == 0 {
		report.Failed = nil
	}

	if r.archive != nil {
		if err := r.archive.Save(ctx, snap); err != nil {
			log.Warnf("[Refresher] 快照归档失败: %v", err)
		}
	}
	log.Infow("数据片段刷新完成", "version", report.Version, "updated", report.Updated, "failed", len(failed), "duration", report.Duration.String())
	return report, nil
}

// WarmStart 在首次刷新前尝试从归档恢复快照。
func (r *Refresher) WarmStart(ctx context.Context) bool {
	if r.archive == nil {
		return false
	}
	snap, err := r.archive.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoArchive) {
			log.Warnf("[Refresher] 读取归档快照失败: %v", err)
		}
		return false
	}
	if r.provider.Restore(snap) {
		log.Infof("[Refresher] 已从归档恢复快照, version: %d, topics: %d", snap.Version, len(snap.Snippets))
		return true
	}
	return false
}
