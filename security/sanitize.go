package security

import (
	"regexp"
	"strings"
)

var strippers = []*regexp.Regexp{
	// script, handler and embedding fragments
	regexp.MustCompile(`(?is)<script\b.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)<object[^>]*>`),
	regexp.MustCompile(`(?i)<embed[^>]*>`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)function\s*\(`),
	regexp.MustCompile(`(?i)setTimeout\s*\(`),
	regexp.MustCompile(`(?i)setInterval\s*\(`),

	// SQL fragments
	regexp.MustCompile(`(?i)union\s+select`),
	regexp.MustCompile(`(?i)drop\s+table`),
	regexp.MustCompile(`(?i)delete\s+from`),
	regexp.MustCompile(`(?i)insert\s+into`),
	regexp.MustCompile(`(?i)update\s+set`),
	regexp.MustCompile(`(?i)'\s*or\s*'1'\s*=\s*'1`),
	regexp.MustCompile(`(?i)'\s*or\s*1\s*=\s*1`),
	regexp.MustCompile(`--\s*$`),
	regexp.MustCompile(`/\*.*\*/`),
	regexp.MustCompile(`(?i);\s*drop`),
	regexp.MustCompile(`(?i);\s*delete`),
	regexp.MustCompile(`(?i);\s*insert`),
	regexp.MustCompile(`(?i);\s*update`),

	// command fragments
	regexp.MustCompile(`(?i);\s*cat\s+`),
	regexp.MustCompile(`(?i);\s*ls\s+`),
	regexp.MustCompile(`(?i);\s*pwd`),
	regexp.MustCompile(`(?i);\s*whoami`),
	regexp.MustCompile(`(?i)\|\s*nc\s+`),
	regexp.MustCompile(`(?i)&&\s*cat\s+`),
	regexp.MustCompile("`[^`]*`"),
	regexp.MustCompile(`\$\([^)]*\)`),
}

// SanitizeString removes script, event-handler, protocol-injection, SQL and
// command fragments from s, in a fixed order, and trims the result.
func SanitizeString(s string) string {
	for _, re := range strippers {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// SanitizeValue returns a copy of a decoded JSON value with SanitizeString
// applied to every string leaf. Numbers, booleans and nil pass through.
func SanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return SanitizeString(val)
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = SanitizeString(s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = SanitizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = SanitizeValue(item)
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(val))
		for k, items := range val {
			out[k] = SanitizeValue(items).([]string)
		}
		return out
	default:
		return v
	}
}
