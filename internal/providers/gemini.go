package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/xaenox/assistant-bot/internal/models"
)

// Gemini is an alternate Completer backed by Google's Generative AI API.
type Gemini struct {
	client *genai.Client
	logger *zap.Logger
}

func NewGemini(ctx context.Context, apiKey string, logger *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, logger: logger}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float32) (string, error) {
	system, history, last, err := splitForGemini(messages)
	if err != nil {
		return "", observe("complete", err)
	}

	gm := g.client.GenerativeModel(model)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	tokens := int32(maxTokens)
	gm.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &tokens,
		Temperature:     &temperature,
	}

	chat := gm.StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, genai.Text(last))
	if err != nil {
		g.logger.Debug("Gemini SendMessage failed", zap.Error(err), zap.String("model", model))
		return "", observe("complete", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", observe("complete", errors.New("empty gemini response"))
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	if out.Len() == 0 {
		return "", observe("complete", errors.New("gemini returned no text"))
	}
	return strings.TrimSpace(out.String()), observe("complete", nil)
}

// splitForGemini moves system messages into the system instruction and
// separates the final user turn from the chat history.
func splitForGemini(messages []Message) (string, []*genai.Content, string, error) {
	var system []string
	var turns []Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser {
		return "", nil, "", errors.New("last message must come from the user")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(system, "\n\n"), history, turns[len(turns)-1].Content, nil
}
