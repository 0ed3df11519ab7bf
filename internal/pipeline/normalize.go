// Package pipeline 实现消息的分级意图解析：规则 → 语义 → 生成式委托。
package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize 把文本规范化为用于匹配的形式：去除变音符号、转小写、
// 标点替换为空格并折叠空白。土耳其语的 ı 与 İ 都归一为 i。
func Normalize(text string) string {
	// transform.Chain 有内部状态，不能在 goroutine 间共享。
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r == 'ı':
			b.WriteRune('i')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokens 返回规范化文本中的词。
func tokens(normalized string) []string {
	return strings.Fields(normalized)
}
