package pipeline

import (
	"testing"

	"acu-chatbot-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuleMatcher(t *testing.T) *RuleMatcher {
	t.Helper()
	m, err := NewRuleMatcher(testIntents(), 8.0)
	require.NoError(t, err)
	return m
}

func TestRuleMatcherKinds(t *testing.T) {
	m := newTestRuleMatcher(t)
	cases := []struct {
		in   string
		want string
	}{
		{"Merhaba!", "selamlasma"},
		{"SELAM", "selamlasma"},
		{"herkese iyi günler dilerim", "selamlasma"},
		{"yemekhane menüsü nedir", "yemek_menusu"},
		{"bugün yemek ne, öğle arası", "yemek_menusu"},
		{"hava durumu nasıl", "hava_durumu"},
	}
	for _, c := range cases {
		intent, ok := m.Match(Normalize(c.in))
		require.True(t, ok, "input %q", c.in)
		assert.Equal(t, c.want, intent.Name, "input %q", c.in)
	}
}

func TestRuleMatcherNoMatch(t *testing.T) {
	m := newTestRuleMatcher(t)
	for _, in := range []string{"merhabalar", "iyi", "yemek", "kuantum fiziği", ""} {
		_, ok := m.Match(Normalize(in))
		assert.False(t, ok, "input %q", in)
	}
}

func TestRuleMatcherIsDeterministic(t *testing.T) {
	m := newTestRuleMatcher(t)
	in := Normalize("Merhaba, yemek menüsü nedir?")
	first, ok := m.Match(in)
	require.True(t, ok)
	for i := 0; i < 100; i++ {
		got, ok := m.Match(in)
		require.True(t, ok)
		assert.Same(t, first, got)
	}
	// 表中靠前的意图优先：contains 不会命中，keywords 命中 yemek_menusu。
	assert.Equal(t, "yemek_menusu", first.Name)
}

func TestWeightedCountsEachKeywordOnce(t *testing.T) {
	m := newTestRuleMatcher(t)
	_, ok := m.Match(Normalize("yemek yemek yemek"))
	assert.False(t, ok)
	intent, ok := m.Match(Normalize("yemekhane yemekleri"))
	require.True(t, ok)
	assert.Equal(t, "yemek_menusu", intent.Name)
}

func TestNewRuleMatcherRejectsBadPatterns(t *testing.T) {
	_, err := NewRuleMatcher([]model.Intent{{
		Name:             "bad",
		Patterns:         []model.Pattern{{Kind: model.PatternRegex, Value: "("}},
		ResponseTemplate: "x",
	}}, 8)
	assert.Error(t, err)

	_, err = NewRuleMatcher([]model.Intent{{
		Name:             "bad",
		Patterns:         []model.Pattern{{Kind: "fuzzy", Value: "x"}},
		ResponseTemplate: "x",
	}}, 8)
	assert.Error(t, err)
}
