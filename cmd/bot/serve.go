package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/access"
	"github.com/xaenox/assistant-bot/internal/admin"
	"github.com/xaenox/assistant-bot/internal/bot"
	"github.com/xaenox/assistant-bot/internal/conversation"
	"github.com/xaenox/assistant-bot/internal/maintenance"
	"github.com/xaenox/assistant-bot/internal/memory"
	"github.com/xaenox/assistant-bot/internal/metrics"
	"github.com/xaenox/assistant-bot/internal/providers"
	"github.com/xaenox/assistant-bot/internal/ratelimit"
	"github.com/xaenox/assistant-bot/internal/reminder"
	"github.com/xaenox/assistant-bot/pkg/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// providerSet holds the collaborators built from config. Optional ones are
// nil when not configured.
type providerSet struct {
	completer   providers.Completer
	transcriber providers.Transcriber
	synthesizer providers.Synthesizer
	images      providers.ImageGenerator
	searcher    providers.Searcher
	close       func()
}

func buildProviders(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*providerSet, error) {
	set := &providerSet{close: func() {}}

	if cfg.Provider.APIKey != "" {
		oa := providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:             cfg.Provider.APIKey,
			BaseURL:            cfg.Provider.BaseURL,
			TranscriptionModel: cfg.Provider.TranscriptionModel,
			SpeechModel:        cfg.Provider.SpeechModel,
			Voice:              cfg.Provider.Voice,
		}, logger)
		set.completer = oa
		set.transcriber = oa
		set.synthesizer = oa
	}

	if cfg.Provider.Backend == "gemini" {
		g, err := providers.NewGemini(ctx, cfg.Provider.GeminiAPIKey, logger)
		if err != nil {
			return nil, err
		}
		set.completer = g
		set.close = func() {
			if err := g.Close(); err != nil {
				logger.Warn("Failed to close gemini client", zap.Error(err))
			}
		}
	}
	if set.completer == nil {
		return nil, fmt.Errorf("no completion provider configured")
	}

	if cfg.Images.APIKey != "" {
		set.images = providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:     cfg.Images.APIKey,
			BaseURL:    cfg.Images.BaseURL,
			ImageModel: cfg.Images.Model,
		}, logger)
	}
	set.searcher = providers.NewDuckDuckGo(cfg.Search.BaseURL, cfg.Search.Timeout)
	return set, nil
}

func runServe(ctx context.Context) error {
	cfg, logger, store, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer store.Close()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	provs, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer provs.close()

	// bans and the active model must be loaded before any update is accepted
	guard := access.NewGuard(cfg.Telegram.AdminIDs, cfg.Telegram.AllowedIDs, store)
	if err := guard.Load(ctx); err != nil {
		return err
	}
	selector := maintenance.NewSelector(provs.completer, store, cfg.Provider.Models, logger)
	if err := selector.Load(ctx); err != nil {
		return err
	}

	limiter := ratelimit.New(map[ratelimit.Category]ratelimit.Rule{
		ratelimit.Messages: {Limit: cfg.RateLimit.MessagesPerMinute, Window: time.Minute},
		ratelimit.Search:   {Limit: cfg.RateLimit.SearchPerHour, Window: time.Hour},
		ratelimit.Images:   {Limit: cfg.RateLimit.ImagesPerHour, Window: time.Hour},
	})
	reminders := reminder.NewService(store, nil, logger).
		WithClock(func() time.Time { return time.Now().In(loc) }).
		WithInterval(cfg.Schedule.ReminderInterval)
	facts := memory.NewEngine(store, logger)

	convCfg := conversation.DefaultConfig()
	convCfg.BotName = cfg.Telegram.BotName
	if cfg.Conversation.Persona != "" {
		convCfg.Persona = cfg.Conversation.Persona
	}
	convCfg.HistoryLimit = cfg.Conversation.HistoryLimit
	convCfg.MaxTokens = cfg.Conversation.MaxTokens
	convCfg.VoiceMaxTokens = cfg.Conversation.VoiceMaxTokens
	convCfg.Temperature = cfg.Conversation.Temperature
	convCfg.SearchResults = cfg.Search.MaxResults
	convCfg.Language = cfg.Provider.Language
	convCfg.Location = loc

	conv := conversation.NewService(convCfg, conversation.Deps{
		Store:       store,
		Guard:       guard,
		Limiter:     limiter,
		Reminders:   reminders,
		Memory:      facts,
		Completer:   provs.completer,
		Models:      selector,
		Transcriber: provs.transcriber,
		Synthesizer: provs.synthesizer,
		Images:      provs.images,
		Searcher:    provs.searcher,
	}, logger)

	b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.Debug, bot.Deps{
		Store:        store,
		Guard:        guard,
		Conversation: conv,
		Reminders:    reminders,
		Memory:       facts,
		Models:       selector,
		Admin:        admin.NewService(store, guard, limiter, cfg.Database.BackupDir, logger),
		BotName:      cfg.Telegram.BotName,
		Location:     loc,
	}, logger)
	if err != nil {
		return err
	}
	reminders.SetNotifier(b)
	selector.SetNotifier(b, guard.Admins())

	go reminders.Run(ctx)
	go reminder.NewDigest(reminders, guard.Authorized, cfg.Schedule.DigestHour, cfg.Schedule.DigestMinute, logger).Run(ctx)

	retention := maintenance.NewRetention(store, cfg.Schedule.RetentionDays, logger)
	runner := maintenance.NewRunner(logger,
		maintenance.Task{Name: "retention", Interval: cfg.Schedule.MaintenanceInterval, Run: retention.Run},
		maintenance.Task{Name: "model_health", Interval: cfg.Schedule.MaintenanceInterval, Immediate: true, Run: selector.Run},
		maintenance.Task{Name: "ban_sync", Interval: cfg.Schedule.BanSyncInterval, Run: guard.Load},
	)
	runner.Start(ctx)
	defer runner.Wait()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Bot started",
		zap.String("bot_name", cfg.Telegram.BotName),
		zap.String("model", selector.Active()),
		zap.String("database", cfg.Database.Driver))
	return b.Start(ctx)
}
