package security

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// injectionPatterns are the content spans the sanitizer neutralizes.
// Matches are replaced with a visible placeholder, never silently dropped,
// so the output remains auditable.
var injectionPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"script-tag", regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>|<script\b[^>]*/?>`)},
	{"event-handler", regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)},
	{"js-url", regexp.MustCompile(`(?i)\bjavascript\s*:`)},
	{"dynamic-eval", regexp.MustCompile(`(?i)\b(eval|new\s+function|execscript)\s*\(`)},
}

// SanitizeContent strips control characters and replaces recognized
// injection spans with a "[blocked:<kind>]" placeholder. The returned
// violations describe what was neutralized; an empty slice means the
// content passed through unchanged.
func (g *Gate) SanitizeContent(text string) (string, []Violation) {
	var violations []Violation

	cleaned := text
	for _, p := range injectionPatterns {
		count := 0
		cleaned = p.re.ReplaceAllStringFunc(cleaned, func(string) string {
			count++
			return "[blocked:" + p.kind + "]"
		})
		if count > 0 {
			violations = append(violations, Violation{
				Kind:   ViolationInjection,
				Detail: fmt.Sprintf("%s x%d", p.kind, count),
			})
		}
	}

	stripped := false
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			stripped = true
			return -1
		}
		return r
	}, cleaned)
	if stripped {
		violations = append(violations, Violation{
			Kind:   ViolationControlChars,
			Detail: "control characters stripped",
		})
	}

	if len(violations) > 0 {
		details := make([]string, 0, len(violations))
		for _, v := range violations {
			details = append(details, v.Detail)
		}
		g.audit.Record(Event{
			Time:     time.Now(),
			Kind:     EventContentSanitized,
			Severity: SeverityWarning,
			Detail:   strings.Join(details, "; "),
		})
		g.log.WithPayload(map[string]interface{}{"neutralized": details}).Warn("Content sanitized")
	}

	return cleaned, violations
}
