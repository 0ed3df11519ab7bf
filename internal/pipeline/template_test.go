package pipeline

import (
	"testing"
	"time"

	"acu-chatbot-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	facts := staticFacts{now: now, snippets: map[string]model.FactSnippet{
		"menu":    {Topic: "menu", Payload: "Mercimek çorbası", FetchedAt: now.Add(-time.Hour), TTL: 24 * time.Hour},
		"weather": {Topic: "weather", Payload: "12°C", FetchedAt: now.Add(-5 * time.Hour), TTL: 3 * time.Hour},
	}}

	out, freshest := RenderTemplate("Menü: {{fact:menu}}", facts, "yok")
	assert.Equal(t, "Menü: Mercimek çorbası", out)
	assert.Equal(t, now.Add(-time.Hour), freshest)

	out, freshest = RenderTemplate("Hava: {{ fact:weather }}", facts, "yok")
	assert.Equal(t, "Hava: yok", out, "stale snippet renders as unavailable")
	assert.True(t, freshest.IsZero())

	out, _ = RenderTemplate("{{fact:calendar}} / {{fact:menu}}", facts, "yok")
	assert.Equal(t, "yok / Mercimek çorbası", out)

	out, _ = RenderTemplate("{{fact:menu}}", nil, "yok")
	assert.Equal(t, "yok", out)

	out, _ = RenderTemplate("Sabit metin", facts, "yok")
	assert.Equal(t, "Sabit metin", out)
}
