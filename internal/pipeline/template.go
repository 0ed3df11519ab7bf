package pipeline

import (
	"regexp"
	"time"

	"acu-chatbot-go/internal/model"
)

// FactSource 是流水线对外部数据片段的只读视图。
type FactSource interface {
	// Lookup 返回 topic 对应的未过期片段。缺失或过期时返回 false。
	Lookup(topic string) (model.FactSnippet, bool)
	// Fresh 返回当前全部未过期片段，按 topic 排序。
	Fresh() []model.FactSnippet
}

var factRef = regexp.MustCompile(`\{\{\s*fact:([A-Za-z0-9_.-]+)\s*\}\}`)

// RenderTemplate 把模板中的 {{fact:<topic>}} 替换为片段内容，缺失时替换为 unavailable。
// 返回渲染结果以及用到的最新片段时间（未用到片段时为零值）。
func RenderTemplate(tmpl string, facts FactSource, unavailable string) (string, time.Time) {
	var freshest time.Time
	out := factRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		topic := factRef.FindStringSubmatch(ref)[1]
		if facts == nil {
			return unavailable
		}
		snippet, ok := facts.Lookup(topic)
		if !ok {
			return unavailable
		}
		if snippet.FetchedAt.After(freshest) {
			freshest = snippet.FetchedAt
		}
		return snippet.Payload
	})
	return out, freshest
}
