package reply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTranslationRequest(t *testing.T) {
	got := Generate("请帮我翻译这段话")
	require.Contains(t, got, "翻译")
	assert.NotEqual(t, Fallback, got)
}

func TestGeneratePriorityOrder(t *testing.T) {
	// translation precedes health
	got := Generate("我想了解健康知识的翻译")
	assert.Equal(t, rules[1].Reply, got)
	assert.Equal(t, "translation", RuleName("我想了解健康知识的翻译"))

	// image precedes everything
	assert.Equal(t, "image", RuleName("设计一个云枢社区的海报"))
}

func TestGenerateEachRule(t *testing.T) {
	for _, rule := range Rules() {
		for _, kw := range rule.Keywords {
			got, ok := Match("前缀" + kw + "后缀")
			require.True(t, ok, "keyword %s", kw)
			// an earlier rule may legitimately claim the keyword
			assert.LessOrEqual(t, indexOf(got.Name), indexOf(rule.Name), "keyword %s", kw)
		}
	}
}

func TestGenerateFallback(t *testing.T) {
	assert.Equal(t, Fallback, Generate("hello there"))
	assert.Equal(t, FallbackRule, RuleName("hello there"))
}

func TestGenerateAlwaysNonEmpty(t *testing.T) {
	inputs := []string{"a", " ", "HELLO", "健康", "云呼一下", strings.Repeat("x", 1024)}
	for _, in := range inputs {
		assert.NotEmpty(t, Generate(in), "input %q", in)
	}
}

func TestGenerateIsCaseInsensitive(t *testing.T) {
	custom := Rule{Name: "x", Keywords: []string{"AI"}}
	assert.True(t, custom.Matches(strings.ToLower("tell me about ai")))
}

func indexOf(name string) int {
	for i, r := range rules {
		if r.Name == name {
			return i
		}
	}
	return len(rules)
}
