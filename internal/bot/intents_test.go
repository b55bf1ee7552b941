package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matchIntent returns the name of the first matching rule, the way
// handleText routes.
func matchIntent(rules []intentRule, lower string) string {
	for _, rule := range rules {
		if rule.match(lower) {
			return rule.name
		}
	}
	return ""
}

func TestIntentRouting_FirstMatchWins(t *testing.T) {
	rules := defaultIntentRules(&Bot{})

	cases := []struct {
		text string
		want string
	}{
		{"thanks bhai!", "thanks"},
		{"thank you so much", "thanks"},
		{"best wishes for exams", "best_wishes"},
		{"send me notes on physics", "notes"},
		{"i have a doubt", "doubt"},
		{"what is osmosis", "ai"},
		{"", "ai"},
		// Gratitude shadows the notes keyword: rules run in order.
		{"thanks for the notes", "thanks"},
		// Notes shadows doubt.
		{"notes on this doubt", "notes"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchIntent(rules, tc.text), "text: %q", tc.text)
	}
}

func TestIntentRules_FallbackIsLast(t *testing.T) {
	rules := defaultIntentRules(&Bot{})
	require.NotEmpty(t, rules)

	last := rules[len(rules)-1]
	assert.Equal(t, "ai", last.name)
	assert.True(t, last.match("anything at all"))
}
