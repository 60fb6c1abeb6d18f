package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig also covers OpenAI-compatible endpoints such as Groq, selected
// through BaseURL.
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	SpeechModel        string
	Voice              string
	SpeechMaxChars     int
	ImageModel         string
}

// OpenAI implements Completer, Transcriber, Synthesizer and ImageGenerator.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *zap.Logger
}

func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.SpeechMaxChars <= 0 {
		cfg.SpeechMaxChars = 500
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *OpenAI) Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Debug("Chat completion failed", zap.Error(err), zap.String("model", model))
		return "", observe("complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", observe("complete", errors.New("empty completion"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), observe("complete", nil)
}

func (c *OpenAI) Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error) {
	if len(audio) == 0 {
		return "", observe("transcribe", errors.New("empty audio"))
	}
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: language,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", observe("transcribe", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", observe("transcribe", errors.New("nothing intelligible in audio"))
	}
	return text, observe("transcribe", nil)
}

func (c *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if r := []rune(text); len(r) > c.cfg.SpeechMaxChars {
		text = string(r[:c.cfg.SpeechMaxChars])
	}
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.SpeechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(c.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
	})
	if err != nil {
		return nil, observe("synthesize", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, observe("synthesize", fmt.Errorf("reading speech: %w", err))
	}
	return audio, observe("synthesize", nil)
}

func (c *OpenAI) Generate(ctx context.Context, prompt string, quality Quality) ([]byte, error) {
	q := openai.CreateImageQualityStandard
	if quality == QualityHigh {
		q = openai.CreateImageQualityHD
	}
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.cfg.ImageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		Quality:        q,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, observe("image", err)
	}
	if len(resp.Data) == 0 {
		return nil, observe("image", errors.New("no image returned"))
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, observe("image", fmt.Errorf("decoding image: %w", err))
	}
	return img, observe("image", nil)
}
