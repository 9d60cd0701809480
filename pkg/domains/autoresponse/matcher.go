package autoresponse

import (
	"strings"

	"github.com/wadispatch/pkg/entities"
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Match returns the first active rule matching body, or the fallback rule
// when none does. It returns nil when nothing applies.
func Match(rules []entities.AutoResponseRule, body string) *entities.AutoResponseRule {
	text := normalize(body)
	var fallback *entities.AutoResponseRule
	for i := range rules {
		rule := &rules[i]
		if !rule.Active {
			continue
		}
		if rule.IsFallback {
			if fallback == nil {
				fallback = rule
			}
			continue
		}
		if rule.NormalizedKeyword == "" {
			continue
		}
		switch rule.MatchMode {
		case entities.MatchContains:
			if strings.Contains(text, rule.NormalizedKeyword) {
				return rule
			}
		default:
			if text == rule.NormalizedKeyword {
				return rule
			}
		}
	}
	return fallback
}
