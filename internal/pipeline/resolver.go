package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/log"
)

// State 是解析状态机的状态。
type State string

const (
	StateReceived      State = "RECEIVED"
	StateRuleCheck     State = "RULE_CHECK"
	StateSemanticCheck State = "SEMANTIC_CHECK"
	StateDelegate      State = "DELEGATE"
	StateResolved      State = "RESOLVED"
	StateFailed        State = "FAILED"
)

// Tier 标识产生回答的层级。
type Tier string

const (
	TierRule             Tier = "rule"
	TierSemantic         Tier = "semantic"
	TierDelegate         Tier = "delegate"
	TierDelegateFallback Tier = "delegate_fallback"
)

// Request 是一次解析的输入。History 是会话历史的只读快照。
type Request struct {
	Message string
	History []model.Turn
	// Stream 为 true 且走到委托层时，结果通过 Increments 逐段给出。
	Stream bool
}

// Resolution 是状态机的终态结果。
type Resolution struct {
	State      State
	Tier       Tier
	IntentName string
	// Score 仅在语义层命中时有意义，只用于日志。
	Score float64
	// Text 是已知的完整回答；Increments 非 nil 时为空。
	Text string
	// Increments 是委托层的流式输出。消费方读到通道关闭为止，
	// 任一增量带 Fallback 时最终层级为 delegate_fallback。
	Increments     <-chan Increment
	ErrKind        model.ErrorKind
	FactsFetchedAt *time.Time
	Trace          []State
}

// Known 表示回答文本已经完整可用。
func (r Resolution) Known() bool {
	return r.State == StateResolved && r.Increments == nil
}

// ResolverConfig 是流水线使用的固定文案。
type ResolverConfig struct {
	NoAnswerText    string
	UnavailableText string
}

// Resolver 按 规则 → 语义 → 委托 的顺序解析消息。
type Resolver struct {
	rules    *RuleMatcher
	semantic *SemanticMatcher
	delegate *Delegate
	facts    FactSource
	cfg      ResolverConfig
}

// NewResolver 组装解析流水线。semantic、delegate、facts 都可以为 nil。
func NewResolver(rules *RuleMatcher, semantic *SemanticMatcher, delegate *Delegate, facts FactSource, cfg ResolverConfig) *Resolver {
	return &Resolver{
		rules:    rules,
		semantic: semantic,
		delegate: delegate,
		facts:    facts,
		cfg:      cfg,
	}
}

// Resolve 运行状态机。非空输入总会到达 RESOLVED；空输入到达 FAILED(INVALID_INPUT)。
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	res := Resolution{State: StateReceived, Trace: []State{StateReceived}}
	to := func(s State) {
		res.State = s
		res.Trace = append(res.Trace, s)
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		to(StateFailed)
		res.ErrKind = model.KindInvalidInput
		return res
	}
	normalized := Normalize(message)

	to(StateRuleCheck)
	if r.rules != nil {
		if intent, ok := r.rules.Match(normalized); ok {
			r.renderIntent(&res, intent, TierRule)
			to(StateResolved)
			return res
		}
	}

	to(StateSemanticCheck)
	if r.semantic.Enabled() {
		match, ok, err := r.semantic.Match(ctx, message)
		switch {
		case err != nil:
			if errors.Is(err, ErrEmbeddingUnavailable) {
				log.Debugf("[Resolver] 跳过语义层: %v", err)
			} else {
				log.Warnf("[Resolver] 语义层异常: %v", err)
			}
		case ok:
			res.Score = match.Score
			r.renderIntent(&res, match.Intent, TierSemantic)
			log.Debugf("[Resolver] 语义层命中 intent=%s score=%.4f", match.Intent.Name, match.Score)
			to(StateResolved)
			return res
		default:
			log.Debugf("[Resolver] 语义层未达阈值, best=%.4f", match.Score)
		}
	}

	to(StateDelegate)
	if !r.delegate.Configured() {
		res.Tier = TierDelegateFallback
		res.Text = r.cfg.NoAnswerText
		to(StateResolved)
		return res
	}

	dreq := DelegateRequest{Message: message, History: req.History}
	if r.facts != nil {
		dreq.Facts = r.facts.Fresh()
		res.FactsFetchedAt = freshestOf(dreq.Facts)
	}
	if req.Stream {
		res.Tier = TierDelegate
		res.Increments = r.delegate.Stream(ctx, dreq)
	} else {
		text, fellBack := r.delegate.Answer(ctx, dreq)
		res.Text = text
		res.Tier = TierDelegate
		if fellBack {
			res.Tier = TierDelegateFallback
			res.ErrKind = model.KindUpstreamUnavailable
		}
	}
	to(StateResolved)
	return res
}

func (r *Resolver) renderIntent(res *Resolution, intent *model.Intent, tier Tier) {
	text, freshest := RenderTemplate(intent.ResponseTemplate, r.facts, r.cfg.UnavailableText)
	res.Tier = tier
	res.IntentName = intent.Name
	res.Text = text
	if !freshest.IsZero() {
		res.FactsFetchedAt = &freshest
	}
}

func freshestOf(snippets []model.FactSnippet) *time.Time {
	var t time.Time
	for _, s := range snippets {
		if s.FetchedAt.After(t) {
			t = s.FetchedAt
		}
	}
	if t.IsZero() {
		return nil
	}
	return &t
}
