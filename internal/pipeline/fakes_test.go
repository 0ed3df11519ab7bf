package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/llm"
)

type staticFacts struct {
	snippets map[string]model.FactSnippet
	now      time.Time
}

func (f staticFacts) Lookup(topic string) (model.FactSnippet, bool) {
	s, ok := f.snippets[topic]
	if !ok || s.Stale(f.now) {
		return model.FactSnippet{}, false
	}
	return s, true
}

func (f staticFacts) Fresh() []model.FactSnippet {
	var out []model.FactSnippet
	for _, s := range f.snippets {
		if !s.Stale(f.now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// fakeEmbedder 把文本映射到固定向量，未登记的文本返回 fallback。
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int
	mu       sync.Mutex
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = f.fallback
		}
	}
	return out, nil
}

// fakeLLM 按 chunks 逐段输出；failAfter >= 0 时在输出该数量的分段后返回 err。
type fakeLLM struct {
	chunks    []string
	err       error
	failAfter int
	block     bool
	lastMsgs  []llm.Message
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Generate(ctx context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.lastMsgs = messages
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.chunks, ""), nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, _ *llm.GenerationParams, w llm.ChunkWriter) error {
	f.lastMsgs = messages
	for i, c := range f.chunks {
		if f.err != nil && i == f.failAfter {
			return f.err
		}
		if err := w.WriteChunk(c); err != nil {
			return err
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	return nil
}

var errUpstream = errors.New("quota exceeded")

func testIntents() []model.Intent {
	return []model.Intent{
		{
			Name: "selamlasma",
			Patterns: []model.Pattern{
				{Kind: model.PatternExact, Value: "merhaba"},
				{Kind: model.PatternExact, Value: "selam"},
				{Kind: model.PatternContains, Value: "iyi günler"},
			},
			Examples:         []string{"merhaba nasılsın"},
			ResponseTemplate: "Merhaba! AÇÜ Asistan'a hoş geldin. Size nasıl yardımcı olabilirim?",
		},
		{
			Name: "yemek_menusu",
			Patterns: []model.Pattern{
				{Kind: model.PatternKeywords, Value: "yemek* menu*"},
				{Kind: model.PatternWeighted, Weights: map[string]float64{"yemek*": 5, "yemekhane": 5, "ogle": 3}},
			},
			Examples:         []string{"bugün ne yemek var"},
			ResponseTemplate: "Bugünün menüsü: {{fact:menu}}",
		},
		{
			Name: "hava_durumu",
			Patterns: []model.Pattern{
				{Kind: model.PatternRegex, Value: `\bhava (durumu|nasil)\b`},
			},
			Examples:         []string{"dışarısı soğuk mu"},
			ResponseTemplate: "Artvin'de hava: {{ fact:weather }}",
		},
		{
			Name:             "kutuphane",
			Examples:         []string{"kütüphane kaçta açılıyor"},
			ResponseTemplate: "Kütüphane hafta içi 08:00-23:00 arası açıktır.",
		},
	}
}
