package model

// PatternKind 是意图匹配模式的类型。
type PatternKind string

const (
	// PatternExact 规范化后的整句相等。
	PatternExact PatternKind = "exact"
	// PatternContains 规范化后的短语按词边界出现在消息中。
	PatternContains PatternKind = "contains"
	// PatternKeywords 所有关键词都作为词出现，"foo*" 表示前缀。
	PatternKeywords PatternKind = "keywords"
	// PatternRegex 在规范化文本上执行 RE2 正则。
	PatternRegex PatternKind = "regex"
	// PatternWeighted 出现的词权重之和达到阈值。
	PatternWeighted PatternKind = "weighted"
)

// Pattern 是意图上的一条匹配规则。
type Pattern struct {
	Kind    PatternKind        `yaml:"kind" json:"kind"`
	Value   string             `yaml:"value,omitempty" json:"value,omitempty"`
	Weights map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`
}

// Intent 是一个静态定义的问题类别。启动时加载一次，运行期不可变。
type Intent struct {
	Name             string    `yaml:"name" json:"name"`
	Patterns         []Pattern `yaml:"patterns" json:"patterns"`
	Examples         []string  `yaml:"examples,omitempty" json:"examples,omitempty"`
	ResponseTemplate string    `yaml:"response" json:"response"`
}

// IntentTable 对应意图文件的顶层结构。
type IntentTable struct {
	// KeywordThreshold 非零时覆盖配置中的 weighted 阈值。
	KeywordThreshold float64  `yaml:"keyword_threshold,omitempty" json:"keyword_threshold,omitempty"`
	Intents          []Intent `yaml:"intents" json:"intents"`
}
