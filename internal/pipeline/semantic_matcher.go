package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/embedding"
	"acu-chatbot-go/pkg/log"

	"golang.org/x/sync/errgroup"
)

// ErrEmbeddingUnavailable 表示语义层被跳过：未启用、索引未就绪或后端不可达。
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// SemanticMatch 是语义层的命中结果。Score 只用于日志。
type SemanticMatch struct {
	Intent *model.Intent
	Score  float64
}

type semanticIndex struct {
	// vectors[i] 是第 i 个意图全部示例句的向量。
	vectors [][][]float32
}

// SemanticMatcher 用余弦相似度把消息映射到意图，取每个意图示例中的最大值。
type SemanticMatcher struct {
	client    embedding.Client
	intents   []model.Intent
	threshold float64
	timeout   time.Duration
	index     atomic.Pointer[semanticIndex]
}

// NewSemanticMatcher 创建语义匹配器。client 为 nil 时该层永远跳过。
func NewSemanticMatcher(client embedding.Client, intents []model.Intent, threshold float64, timeout time.Duration) *SemanticMatcher {
	return &SemanticMatcher{
		client:    client,
		intents:   intents,
		threshold: threshold,
		timeout:   timeout,
	}
}

// Enabled 表示是否配置了向量后端。
func (m *SemanticMatcher) Enabled() bool {
	return m != nil && m.client != nil
}

// Ready 表示意图向量索引已构建完成。
func (m *SemanticMatcher) Ready() bool {
	return m.Enabled() && m.index.Load() != nil
}

// BuildIndex 为所有意图的示例句计算向量并原子发布索引。
func (m *SemanticMatcher) BuildIndex(ctx context.Context) error {
	if !m.Enabled() {
		return ErrEmbeddingUnavailable
	}
	idx := &semanticIndex{vectors: make([][][]float32, len(m.intents))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range m.intents {
		examples := m.intents[i].Examples
		if len(examples) == 0 {
			continue
		}
		g.Go(func() error {
			vecs, err := m.client.CreateEmbeddings(gctx, examples)
			if err != nil {
				return fmt.Errorf("embed examples of %q: %w", m.intents[i].Name, err)
			}
			idx.vectors[i] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.index.Store(idx)
	log.Infof("[SemanticMatcher] 意图向量索引构建完成, intents: %d", len(m.intents))
	return nil
}

// Match 计算消息与各意图的相似度，最高分达到阈值时命中。
// 同分时保留表中靠前的意图。
func (m *SemanticMatcher) Match(ctx context.Context, text string) (SemanticMatch, bool, error) {
	if !m.Enabled() {
		return SemanticMatch{}, false, ErrEmbeddingUnavailable
	}
	idx := m.index.Load()
	if idx == nil {
		return SemanticMatch{}, false, fmt.Errorf("index not ready: %w", ErrEmbeddingUnavailable)
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	query, err := m.client.CreateEmbedding(ctx, text)
	if err != nil {
		return SemanticMatch{}, false, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	best := SemanticMatch{Score: math.Inf(-1)}
	for i, vecs := range idx.vectors {
		for _, v := range vecs {
			if s := cosine(query, v); s > best.Score {
				best = SemanticMatch{Intent: &m.intents[i], Score: s}
			}
		}
	}
	if best.Intent == nil || best.Score < m.threshold {
		return best, false, nil
	}
	return best, true, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
