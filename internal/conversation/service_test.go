package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/access"
	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/memory"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/providers"
	"github.com/xaenox/assistant-bot/internal/ratelimit"
	"github.com/xaenox/assistant-bot/internal/reminder"
	"github.com/xaenox/assistant-bot/internal/storage"
)

const (
	user  int64 = 1
	admin int64 = 99
)

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]providers.Message
	model string
}

func (f *fakeCompleter) Complete(ctx context.Context, model string, messages []providers.Message, maxTokens int, temperature float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	f.model = model
	return f.reply, f.err
}

func (f *fakeCompleter) last() []providers.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type staticModel string

func (m staticModel) Active() string { return string(m) }

type fakeVoice struct {
	transcript string
	sttErr     error
	audio      []byte
	ttsErr     error
	spoken     []string
}

func (f *fakeVoice) Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error) {
	return f.transcript, f.sttErr
}

func (f *fakeVoice) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.spoken = append(f.spoken, text)
	return f.audio, f.ttsErr
}

type fakeSearch struct {
	results []providers.SearchResult
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, query string, maxResults int) ([]providers.SearchResult, error) {
	return f.results, f.err
}

type fakeImages struct{ quality providers.Quality }

func (f *fakeImages) Generate(ctx context.Context, prompt string, q providers.Quality) ([]byte, error) {
	f.quality = q
	return []byte("PNG"), nil
}

type fixture struct {
	svc       *Service
	store     *storage.MemoryStorage
	guard     *access.Guard
	completer *fakeCompleter
	voice     *fakeVoice
	search    *fakeSearch
	images    *fakeImages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := func() time.Time { return start }
	store := storage.NewMemoryStorage()
	f := &fixture{
		store:     store,
		guard:     access.NewGuard([]int64{admin}, []int64{user, 2}, store),
		completer: &fakeCompleter{reply: "sure"},
		voice:     &fakeVoice{transcript: "hello there", audio: []byte("OggS")},
		search:    &fakeSearch{},
		images:    &fakeImages{},
	}
	logger := zap.NewNop()
	f.svc = NewService(DefaultConfig(), Deps{
		Store:       store,
		Guard:       f.guard,
		Limiter:     ratelimit.New(ratelimit.DefaultRules()).WithClock(now),
		Reminders:   reminder.NewService(store, nil, logger).WithClock(now),
		Memory:      memory.NewEngine(store, logger).WithClock(now),
		Completer:   f.completer,
		Models:      staticModel("llama-3.3-70b-versatile"),
		Transcriber: f.voice,
		Synthesizer: f.voice,
		Images:      f.images,
		Searcher:    f.search,
	}, logger).WithClock(now)
	return f
}

func TestRememberedLocationReachesContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleText(ctx, user, "I live in Haifa")
	require.NoError(t, err)

	reply, err := f.svc.HandleText(ctx, user, "what do you remember about me?")
	require.NoError(t, err)
	assert.Equal(t, "sure", reply.Text)

	msgs := f.completer.last()
	require.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "- location: Haifa")
	assert.Contains(t, msgs[0].Content, "10/03/2026 09:00")
	assert.Equal(t, "what do you remember about me?", msgs[len(msgs)-1].Content)
	assert.Equal(t, "llama-3.3-70b-versatile", f.completer.model)
}

func TestReminderIntentBypassesProvider(t *testing.T) {
	f := newFixture(t)

	reply, err := f.svc.HandleText(context.Background(), user, "remind me in 30m to call mom")
	require.NoError(t, err)
	require.NotNil(t, reply.Reminder)
	assert.Empty(t, reply.Text)
	assert.Equal(t, "to call mom", reply.Reminder.Text)
	assert.WithinDuration(t, start.Add(30*time.Minute), reply.Reminder.RemindAt, time.Second)
	assert.Empty(t, f.completer.calls)

	history, err := f.store.RecentHistory(context.Background(), user, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestReminderIntentWithoutTimeIsChat(t *testing.T) {
	f := newFixture(t)

	reply, err := f.svc.HandleText(context.Background(), user, "remind me what we talked about")
	require.NoError(t, err)
	assert.Nil(t, reply.Reminder)
	assert.Equal(t, "sure", reply.Text)
	assert.Len(t, f.completer.calls, 1)
}

func TestSuccessfulTurnPersistsBothEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleText(ctx, user, "first")
	require.NoError(t, err)
	_, err = f.svc.HandleText(ctx, user, "second")
	require.NoError(t, err)

	msgs := f.completer.last()
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, models.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "second", msgs[3].Content)

	history, err := f.store.RecentHistory(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, models.RoleUser, history[2].Role)
	assert.Equal(t, "second", history[2].Content)
	assert.Equal(t, "sure", history[3].Content)
}

func TestProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.completer.err = errors.New("quota exceeded")

	_, err := f.svc.HandleText(context.Background(), user, "hi")
	require.Error(t, err)
	assert.True(t, apperr.IsProvider(err))

	history, err := f.store.RecentHistory(context.Background(), user, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAdmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleText(ctx, 5, "hi")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, f.guard.Ban(ctx, 2))
	_, err = f.svc.HandleText(ctx, 2, "hi")
	assert.ErrorIs(t, err, apperr.ErrBanned)
	assert.Empty(t, f.completer.calls)
}

func TestMessageRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := f.svc.HandleText(ctx, user, "hi")
		require.NoError(t, err)
	}
	_, err := f.svc.HandleText(ctx, user, "hi")
	rl, ok := apperr.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, "messages", rl.Category)
	assert.Equal(t, 12, rl.Limit)
	assert.Equal(t, time.Minute, rl.Window)
	assert.Len(t, f.completer.calls, 12)
}

func TestVoiceTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.HandleVoice(ctx, user, []byte("ogg"), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.Transcript)
	assert.Equal(t, "sure", out.Text)
	assert.Equal(t, []byte("OggS"), out.Audio)
	assert.Equal(t, []string{"sure"}, f.voice.spoken)

	history, err := f.store.RecentHistory(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "[voice] hello there", history[0].Content)
}

func TestVoiceSynthesisFailureFallsBackToText(t *testing.T) {
	f := newFixture(t)
	f.voice.ttsErr = errors.New("tts down")

	out, err := f.svc.HandleVoice(context.Background(), user, []byte("ogg"), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "sure", out.Text)
	assert.Nil(t, out.Audio)
}

func TestVoiceTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.voice.sttErr = errors.New("unintelligible")

	_, err := f.svc.HandleVoice(context.Background(), user, []byte("ogg"), "voice.ogg")
	assert.True(t, apperr.IsProvider(err))
	assert.Empty(t, f.completer.calls)
}

func TestSearchSummarizesAndIsLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.Search(ctx, user, "golang")
	require.NoError(t, err)
	assert.Equal(t, NoResults, got)

	f.search.results = []providers.SearchResult{{Title: "Go", Snippet: "A language"}}
	got, err = f.svc.Search(ctx, user, "golang")
	require.NoError(t, err)
	assert.Equal(t, "sure", got)
	assert.Contains(t, f.completer.last()[0].Content, "• Go: A language")

	for i := 0; i < 3; i++ {
		_, err = f.svc.Search(ctx, user, "golang")
		require.NoError(t, err)
	}
	_, err = f.svc.Search(ctx, user, "golang")
	rl, ok := apperr.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, "search", rl.Category)
}

func TestImageQuality(t *testing.T) {
	f := newFixture(t)

	img, err := f.svc.Image(context.Background(), user, "a cat", providers.QualityHigh)
	require.NoError(t, err)
	assert.Equal(t, []byte("PNG"), img)
	assert.Equal(t, providers.QualityHigh, f.images.quality)
}

func TestLastReplyHelpers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveLastReply(ctx, user)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Speak(ctx, user)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.HandleText(ctx, user, "hi")
	require.NoError(t, err)

	note, err := f.svc.SaveLastReply(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "sure", note.Content)
	assert.NotZero(t, note.ID)

	audio, err := f.svc.Speak(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS"), audio)
}
