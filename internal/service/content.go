package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
)

const (
	DefaultMinContentLength = 100
	DefaultMaxContentLength = 50_000
)

// DefaultPlaceholders are markers of unfinished content, matched case-insensitively.
var DefaultPlaceholders = []string{"TODO", "FIXME", "TBD", "[INSERT", "[PLACEHOLDER"}

// ContentRules are the advisory quality bounds for entry content.
type ContentRules struct {
	MinLength    int
	MaxLength    int
	Placeholders []string
}

// CheckContentQuality returns a warning per rule content breaks. Lengths count runes.
func CheckContentQuality(content string, rules ContentRules) domain.Diagnostics {
	var out domain.Diagnostics
	length := utf8.RuneCountInString(content)

	if rules.MinLength > 0 && length < rules.MinLength {
		out = append(out, domain.NewWarning(domain.CheckContentQuality, domain.CodeContentQuality,
			fmt.Sprintf("content too short (%d chars), minimum %d for meaningful knowledge", length, rules.MinLength)))
	}
	if rules.MaxLength > 0 && length > rules.MaxLength {
		out = append(out, domain.NewWarning(domain.CheckContentQuality, domain.CodeContentQuality,
			fmt.Sprintf("content too long (%d chars), maximum %d, consider splitting into multiple entries", length, rules.MaxLength)))
	}

	upper := strings.ToUpper(content)
	for _, p := range rules.Placeholders {
		if strings.Contains(upper, strings.ToUpper(p)) {
			out = append(out, domain.NewWarning(domain.CheckContentQuality, domain.CodeContentQuality,
				fmt.Sprintf("content contains placeholder text %q", p)))
		}
	}
	return out
}
