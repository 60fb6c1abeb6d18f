// Package ratelimit implements per-user sliding-window request limits.
// Counters live in memory only; a restart resets them.
package ratelimit

import (
	"sync"
	"time"
)

type Category string

const (
	Messages Category = "messages"
	Search   Category = "search"
	Images   Category = "images"
)

// Rule is the (limit, window) pair of a category.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules mirrors the stock quotas: 12 messages a minute, 5 searches
// and 4 images an hour.
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		Messages: {Limit: 12, Window: time.Minute},
		Search:   {Limit: 5, Window: time.Hour},
		Images:   {Limit: 4, Window: time.Hour},
	}
}

type key struct {
	userID   int64
	category Category
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter tracks accepted request timestamps per (user, category). Each key
// has its own lock so prune, check and record happen atomically without
// serializing unrelated users.
type Limiter struct {
	rules map[Category]Rule
	now   func() time.Time

	mu      sync.Mutex
	windows map[key]*window
}

func New(rules map[Category]Rule) *Limiter {
	return &Limiter{
		rules:   rules,
		now:     time.Now,
		windows: make(map[key]*window),
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Rule returns the configured rule for c.
func (l *Limiter) Rule(c Category) (Rule, bool) {
	r, ok := l.rules[c]
	return r, ok
}

func (l *Limiter) window(k key) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[k]
	if !ok {
		w = &window{}
		l.windows[k] = w
	}
	return w
}

// Allow reports whether userID may perform one more request of category c,
// recording the request when it is accepted. Unknown categories are always
// allowed.
func (l *Limiter) Allow(userID int64, c Category) bool {
	rule, ok := l.rules[c]
	if !ok {
		return true
	}

	w := l.window(key{userID: userID, category: c})
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if now.Sub(ts) < rule.Window {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= rule.Limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Reset drops every counter.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windows = make(map[key]*window)
}
