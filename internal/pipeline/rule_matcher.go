package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"acu-chatbot-go/internal/model"
)

type keyword struct {
	text   string
	prefix bool
}

func (k keyword) matches(token string) bool {
	if k.prefix {
		return strings.HasPrefix(token, k.text)
	}
	return token == k.text
}

func parseKeyword(raw string) (keyword, bool) {
	prefix := strings.HasSuffix(raw, "*")
	text := Normalize(strings.TrimSuffix(raw, "*"))
	if text == "" || strings.Contains(text, " ") {
		return keyword{}, false
	}
	return keyword{text: text, prefix: prefix}, true
}

type weightedKeyword struct {
	keyword
	weight float64
}

type compiledPattern struct {
	kind     model.PatternKind
	phrase   string
	keywords []keyword
	weighted []weightedKeyword
	re       *regexp.Regexp
}

type compiledIntent struct {
	intent   *model.Intent
	patterns []compiledPattern
}

// RuleMatcher 按意图表顺序做确定性匹配，第一个命中的意图胜出。
type RuleMatcher struct {
	intents   []compiledIntent
	threshold float64
}

// NewRuleMatcher 预编译意图表中的全部模式。
func NewRuleMatcher(intents []model.Intent, keywordThreshold float64) (*RuleMatcher, error) {
	m := &RuleMatcher{threshold: keywordThreshold}
	for i := range intents {
		intent := &intents[i]
		ci := compiledIntent{intent: intent}
		for j, p := range intent.Patterns {
			cp, err := compilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("intent %q pattern %d: %w", intent.Name, j, err)
			}
			ci.patterns = append(ci.patterns, cp)
		}
		m.intents = append(m.intents, ci)
	}
	return m, nil
}

func compilePattern(p model.Pattern) (compiledPattern, error) {
	cp := compiledPattern{kind: p.Kind}
	switch p.Kind {
	case model.PatternExact, model.PatternContains:
		cp.phrase = Normalize(p.Value)
		if cp.phrase == "" {
			return cp, fmt.Errorf("empty %s phrase", p.Kind)
		}
	case model.PatternKeywords:
		for _, raw := range strings.Fields(p.Value) {
			kw, ok := parseKeyword(raw)
			if !ok {
				return cp, fmt.Errorf("invalid keyword %q", raw)
			}
			cp.keywords = append(cp.keywords, kw)
		}
		if len(cp.keywords) == 0 {
			return cp, fmt.Errorf("no keywords")
		}
	case model.PatternRegex:
		re, err := regexp.Compile(p.Value)
		if err != nil {
			return cp, fmt.Errorf("invalid regex: %w", err)
		}
		cp.re = re
	case model.PatternWeighted:
		for raw, w := range p.Weights {
			kw, ok := parseKeyword(raw)
			if !ok {
				return cp, fmt.Errorf("invalid weighted keyword %q", raw)
			}
			cp.weighted = append(cp.weighted, weightedKeyword{keyword: kw, weight: w})
		}
		if len(cp.weighted) == 0 {
			return cp, fmt.Errorf("no weights")
		}
		// 固定求和顺序，保证浮点结果确定。
		sort.Slice(cp.weighted, func(i, j int) bool {
			a, b := cp.weighted[i], cp.weighted[j]
			if a.text != b.text {
				return a.text < b.text
			}
			return !a.prefix && b.prefix
		})
	default:
		return cp, fmt.Errorf("unknown pattern kind %q", p.Kind)
	}
	return cp, nil
}

// Match 在规范化文本上执行匹配。纯函数，无副作用。
func (m *RuleMatcher) Match(normalized string) (*model.Intent, bool) {
	if normalized == "" {
		return nil, false
	}
	toks := tokens(normalized)
	for _, ci := range m.intents {
		for _, p := range ci.patterns {
			if m.matchPattern(p, normalized, toks) {
				return ci.intent, true
			}
		}
	}
	return nil, false
}

func (m *RuleMatcher) matchPattern(p compiledPattern, normalized string, toks []string) bool {
	switch p.kind {
	case model.PatternExact:
		return normalized == p.phrase
	case model.PatternContains:
		return strings.Contains(" "+normalized+" ", " "+p.phrase+" ")
	case model.PatternKeywords:
		for _, kw := range p.keywords {
			if !anyToken(kw, toks) {
				return false
			}
		}
		return true
	case model.PatternRegex:
		return p.re.MatchString(normalized)
	case model.PatternWeighted:
		// 每个关键词最多计一次，重复输入同一个词不会抬高分数。
		var score float64
		for _, wk := range p.weighted {
			if anyToken(wk.keyword, toks) {
				score += wk.weight
			}
		}
		return score >= m.threshold
	}
	return false
}

func anyToken(kw keyword, toks []string) bool {
	for _, t := range toks {
		if kw.matches(t) {
			return true
		}
	}
	return false
}
