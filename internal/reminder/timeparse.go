package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultText is used when nothing is left of the message once the time
// expression and trigger words are removed.
const DefaultText = "Reminder"

// MaxHorizon bounds how far ahead a parsed reminder may be scheduled.
const MaxHorizon = 10 * 365 * 24 * time.Hour

// durationRule adds n*unit for the first match of pattern.
type durationRule struct {
	pattern *regexp.Regexp
	unit    time.Duration
}

// Duration rules run first and accumulate; the clock rule only applies when
// none of them matched.
var durationRules = []durationRule{
	{regexp.MustCompile(`(\d+)\s*(?:שעות|שעה|ש'?)(?:[\s.,!?]|$)`), time.Hour},
	{regexp.MustCompile(`(\d+)\s*(?:דקות|דקה|ד'?)(?:[\s.,!?]|$)`), time.Minute},
	{regexp.MustCompile(`(\d+)\s*(?:ימים|יום)`), 24 * time.Hour},
	{regexp.MustCompile(`(?i)\b(\d+)\s*(?:hours?|hrs?|h)\b`), time.Hour},
	{regexp.MustCompile(`(?i)\b(\d+)\s*(?:minutes?|mins?|m)\b`), time.Minute},
	{regexp.MustCompile(`(?i)\b(\d+)\s*(?:days?|d)\b`), 24 * time.Hour},
}

// clockRule accepts 18:30, 18:30h, 8:30am and 8:30 pm.
var clockRule = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})(?:\s*(am|pm)|h)?\b`)

// Trigger phrases stripped from the reminder text.
var triggerPhrases = regexp.MustCompile(`(?i)תזכיר לי|תזכור לי|תזכורת|\bremind(?: me|ers?)?\b`)

// Leading filler words left behind once the time expression is cut out.
var fillerWords = map[string]struct{}{
	"in": {}, "at": {}, "after": {}, "within": {}, "on": {},
	"בעוד": {}, "תוך": {}, "ב": {},
}

// ParseTime resolves a free-text time expression relative to now. It returns
// the absolute fire time, the text with the expression removed, and whether
// anything was recognized. On failure the input is returned unchanged.
// Clock times use now's location; a time of day not after now rolls over to
// the next day.
func ParseTime(text string, now time.Time) (time.Time, string, bool) {
	var total time.Duration
	rest := text

	for _, rule := range durationRules {
		m := firstMatch(rule.pattern, text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || int64(n) > int64(MaxHorizon/rule.unit) {
			return time.Time{}, text, false
		}
		d := time.Duration(n) * rule.unit
		if d > MaxHorizon-total {
			return time.Time{}, text, false
		}
		total += d
		rest = strings.Replace(rest, m[0], "", 1)
	}

	at := now.Add(total)
	if total == 0 {
		m := clockRule.FindStringSubmatch(text)
		if m == nil {
			return time.Time{}, text, false
		}
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h > 23 || min > 59 {
			return time.Time{}, text, false
		}
		if meridiem := strings.ToLower(m[3]); meridiem != "" {
			if h < 1 || h > 12 {
				return time.Time{}, text, false
			}
			h %= 12
			if meridiem == "pm" {
				h += 12
			}
		}
		at = time.Date(now.Year(), now.Month(), now.Day(), h, min, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		rest = clockRule.ReplaceAllString(rest, "")
	}

	if !at.After(now) {
		return time.Time{}, text, false
	}
	return at, cleanText(rest), true
}

// firstMatch returns the submatches of the first match of re that is not
// glued to a clock time, such as the "30h" of "18:30h".
func firstMatch(re *regexp.Regexp, text string) []string {
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > 0 && text[loc[0]-1] == ':' {
			continue
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = text[loc[2*i]:loc[2*i+1]]
			}
		}
		return m
	}
	return nil
}

func cleanText(s string) string {
	s = triggerPhrases.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	for len(words) > 0 {
		if _, ok := fillerWords[strings.ToLower(words[0])]; !ok {
			break
		}
		words = words[1:]
	}

	out := strings.Trim(strings.Join(words, " "), " ,:-")
	if out == "" {
		return DefaultText
	}
	return out
}

// HasTrigger reports whether text asks for a reminder in so many words.
func HasTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"תזכיר לי", "תזכור לי", "תזכורת ל", "remind me"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
