package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckContentQuality(t *testing.T) {
	rules := ContentRules{
		MinLength:    DefaultMinContentLength,
		MaxLength:    DefaultMaxContentLength,
		Placeholders: DefaultPlaceholders,
	}

	tests := []struct {
		name     string
		content  string
		warnings int
		contains string
	}{
		{"good content", strings.Repeat("a", 200), 0, ""},
		{"too short", "short", 1, "too short (5 chars)"},
		{"too long", strings.Repeat("a", 50_001), 1, "too long"},
		{"placeholder", strings.Repeat("a", 200) + " TODO finish", 1, `"TODO"`},
		{"lower-case placeholder", strings.Repeat("a", 200) + " fixme", 1, `"FIXME"`},
		{"bracket placeholder", strings.Repeat("a", 200) + " [insert name]", 1, `"[INSERT"`},
		{"short with placeholder", "TBD", 2, "too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := CheckContentQuality(tt.content, rules)

			require.Len(t, diags, tt.warnings)
			assert.False(t, diags.HasErrors())
			if tt.contains != "" {
				assert.Contains(t, diags[0].Message, tt.contains)
			}
		})
	}

	t.Run("length counts characters not bytes", func(t *testing.T) {
		diags := CheckContentQuality(strings.Repeat("é", 100), rules)
		assert.Empty(t, diags)
	})

	t.Run("zero bounds disable length checks", func(t *testing.T) {
		diags := CheckContentQuality("", ContentRules{})
		assert.Empty(t, diags)
	})
}
