package conversation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/providers"
	"github.com/xaenox/assistant-bot/internal/ratelimit"
)

const NoResults = "No results found."

// VoiceReply carries the transcript alongside the text turn and, when
// synthesis succeeded, the spoken reply.
type VoiceReply struct {
	Transcript string
	Reply
	Audio []byte
}

// HandleVoice transcribes audio and follows the text path. The stored user
// turn is marked with VoicePrefix. A synthesis failure leaves Audio empty.
func (s *Service) HandleVoice(ctx context.Context, userID int64, audio []byte, filename string) (VoiceReply, error) {
	if err := s.admit(userID, ratelimit.Messages); err != nil {
		return VoiceReply{}, err
	}
	if s.deps.Transcriber == nil {
		return VoiceReply{}, ErrUnavailable
	}

	transcript, err := s.deps.Transcriber.Transcribe(ctx, audio, filename, s.cfg.Language)
	if err != nil {
		s.logger.Error("Transcription failed", zap.Error(err), zap.Int64("user_id", userID))
		return VoiceReply{}, apperr.Provider("transcribe", err)
	}

	reply, err := s.turn(ctx, userID, transcript, VoicePrefix+transcript, s.cfg.VoiceMaxTokens)
	if err != nil {
		return VoiceReply{Transcript: transcript}, err
	}
	out := VoiceReply{Transcript: transcript, Reply: reply}
	if reply.Text == "" || s.deps.Synthesizer == nil {
		return out, nil
	}

	out.Audio, err = s.deps.Synthesizer.Synthesize(ctx, reply.Text)
	if err != nil {
		s.logger.Warn("Speech synthesis failed, falling back to text",
			zap.Error(err),
			zap.Int64("user_id", userID))
		out.Audio = nil
	}
	return out, nil
}

// Speak synthesizes the most recent assistant turn.
func (s *Service) Speak(ctx context.Context, userID int64) ([]byte, error) {
	if err := s.deps.Guard.Check(userID); err != nil {
		return nil, err
	}
	if s.deps.Synthesizer == nil {
		return nil, ErrUnavailable
	}
	text, err := s.LastReply(ctx, userID)
	if err != nil {
		return nil, err
	}
	audio, err := s.deps.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return nil, apperr.Provider("synthesize", err)
	}
	return audio, nil
}

// Search runs a web search and has the completion model summarize the hits.
func (s *Service) Search(ctx context.Context, userID int64, query string) (string, error) {
	if err := s.admit(userID, ratelimit.Search); err != nil {
		return "", err
	}
	if s.deps.Searcher == nil {
		return "", ErrUnavailable
	}

	results, err := s.deps.Searcher.Search(ctx, query, s.cfg.SearchResults)
	if err != nil {
		s.logger.Error("Search failed", zap.Error(err), zap.Int64("user_id", userID))
		return "", apperr.Provider("search", err)
	}
	if len(results) == 0 {
		return NoResults, nil
	}

	prompt := "Summarize briefly for the user:\n\n" + formatResults(results)
	summary, err := s.deps.Completer.Complete(ctx, s.deps.Models.Active(), []providers.Message{
		{Role: models.RoleUser, Content: prompt},
	}, s.cfg.SearchTokens, s.cfg.Temperature)
	if err != nil {
		s.logger.Error("Search summary failed", zap.Error(err), zap.Int64("user_id", userID))
		return "", apperr.Provider("complete", err)
	}
	return summary, nil
}

func formatResults(results []providers.SearchResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		snippet := []rune(r.Snippet)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		lines = append(lines, fmt.Sprintf("• %s: %s", r.Title, string(snippet)))
	}
	return strings.Join(lines, "\n")
}

// Image generates a picture for prompt at the requested quality tier.
func (s *Service) Image(ctx context.Context, userID int64, prompt string, quality providers.Quality) ([]byte, error) {
	if err := s.admit(userID, ratelimit.Images); err != nil {
		return nil, err
	}
	if s.deps.Images == nil {
		return nil, ErrUnavailable
	}
	img, err := s.deps.Images.Generate(ctx, prompt, quality)
	if err != nil {
		s.logger.Error("Image generation failed",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("quality", string(quality)))
		return nil, apperr.Provider("image", err)
	}
	return img, nil
}
