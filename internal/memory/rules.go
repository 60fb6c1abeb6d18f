package memory

import (
	"regexp"
	"strings"

	"github.com/xaenox/assistant-bot/internal/models"
)

// Rule extracts a single fact from free text.
type Rule struct {
	Key     string
	Pattern *regexp.Regexp
}

// Match returns the trimmed first capture group of the rule, if any.
func (r Rule) Match(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	v := clean(m[1])
	if v == "" {
		return "", false
	}
	return v, true
}

var conjunctions = []string{" and ", " but ", " so ", " ו"}

func clean(v string) string {
	for _, c := range conjunctions {
		if i := strings.Index(v, c); i > 0 {
			v = v[:i]
		}
	}
	return strings.TrimSpace(v)
}

// DefaultRules is evaluated top to bottom; a later rule overwrites an earlier
// one for the same key.
var DefaultRules = []Rule{
	{models.FactLocation, regexp.MustCompile(`(?i)\bI (?:live|reside) in ([^.!?,\n]+)`)},
	{models.FactLocation, regexp.MustCompile(`(?i)\bI(?:'ve| have)? moved to ([^.!?,\n]+)`)},
	{models.FactJob, regexp.MustCompile(`(?i)\bI work (?:at|for|in) ([^.!?,\n]+)`)},
	{models.FactJob, regexp.MustCompile(`(?i)\bI work as (?:an? )?([^.!?,\n]+)`)},
	{models.FactName, regexp.MustCompile(`(?i)\bmy name is ([^.!?,\n]+)`)},
	{models.FactAge, regexp.MustCompile(`(?i)\bI(?:'m| am) (\d{1,3})(?:\s+years?\s+old)?(?:[.!?,]|$)`)},
	{models.FactPhone, regexp.MustCompile(`(?i)\bmy (?:phone(?: number)?|number) is (\+?\d[\d\s-]{5,}\d)`)},

	{models.FactLocation, regexp.MustCompile(`אני גר ב(.+?)(?:\.|$)`)},
	{models.FactJob, regexp.MustCompile(`אני עובד ב(.+?)(?:\.|$)`)},
	{models.FactName, regexp.MustCompile(`שמי הוא (.+?)(?:\.|$)`)},
	{models.FactAge, regexp.MustCompile(`אני בן (\d+)`)},
	{models.FactPhone, regexp.MustCompile(`הטלפון שלי (.+?)(?:\.|$)`)},
}

// Extract applies rules in order and returns the collected facts. It never
// fails; a rule that does not match contributes nothing.
func Extract(rules []Rule, text string) models.Facts {
	facts := models.Facts{}
	for _, r := range rules {
		if v, ok := r.Match(text); ok {
			facts[r.Key] = v
		}
	}
	return facts
}
