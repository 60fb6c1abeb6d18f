// Package providers adapts external generation services to the narrow
// contracts the assistant consumes. Every failure is reported as an
// *apperr.ProviderError.
package providers

import (
	"context"

	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/metrics"
	"github.com/xaenox/assistant-bot/internal/models"
)

// Message is one entry of a completion context.
type Message struct {
	Role    models.Role
	Content string
}

type Completer interface {
	Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float32) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Quality string

const (
	QualityFast Quality = "fast"
	QualityHigh Quality = "high"
)

type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, quality Quality) ([]byte, error)
}

type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// observe records the call outcome and wraps err as a provider error.
func observe(op string, err error) error {
	metrics.ProviderCalls.WithLabelValues(op, metrics.Result(err)).Inc()
	return apperr.Provider(op, err)
}
