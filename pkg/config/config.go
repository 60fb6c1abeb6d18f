package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

var (
	groqModels   = []string{"llama-3.3-70b-versatile", "llama-3.1-70b-versatile", "llama3-70b-8192", "mixtral-8x7b-32768"}
	openAIModels = []string{"gpt-4o-mini", "gpt-4o"}
	geminiModels = []string{"gemini-1.5-flash", "gemini-1.5-pro"}
)

// DefaultModels returns the candidate list for a provider with no models
// configured. An OpenAI backend with an empty or api.openai.com base URL gets
// OpenAI models; any other base URL is assumed to be Groq.
func DefaultModels(p ProviderConfig) []string {
	var models []string
	switch {
	case p.Backend == "gemini":
		models = geminiModels
	case p.BaseURL == "" || strings.Contains(p.BaseURL, "api.openai.com"):
		models = openAIModels
	default:
		models = groqModels
	}
	return append([]string(nil), models...)
}

type Config struct {
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Images       ImagesConfig       `mapstructure:"images"`
	Search       SearchConfig       `mapstructure:"search"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type TelegramConfig struct {
	Token      string  `mapstructure:"token"`
	BotName    string  `mapstructure:"bot_name"`
	AdminIDs   []int64 `mapstructure:"admin_ids"`
	AllowedIDs []int64 `mapstructure:"allowed_ids"`
	Debug      bool    `mapstructure:"debug"`
}

type DatabaseConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	BackupDir string `mapstructure:"backup_dir"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DBName    string `mapstructure:"dbname"`
	SSLMode   string `mapstructure:"sslmode"`
}

// ProviderConfig selects the completion backend and the speech models.
// Backend is "openai" (any OpenAI-compatible endpoint, Groq by default) or
// "gemini".
type ProviderConfig struct {
	Backend            string   `mapstructure:"backend"`
	APIKey             string   `mapstructure:"api_key"`
	BaseURL            string   `mapstructure:"base_url"`
	GeminiAPIKey       string   `mapstructure:"gemini_api_key"`
	Models             []string `mapstructure:"models"`
	TranscriptionModel string   `mapstructure:"transcription_model"`
	Language           string   `mapstructure:"language"`
	SpeechModel        string   `mapstructure:"speech_model"`
	Voice              string   `mapstructure:"voice"`
}

type ImagesConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type SearchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

type ConversationConfig struct {
	Persona        string  `mapstructure:"persona"`
	HistoryLimit   int     `mapstructure:"history_limit"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	VoiceMaxTokens int     `mapstructure:"voice_max_tokens"`
	Temperature    float32 `mapstructure:"temperature"`
}

type RateLimitConfig struct {
	MessagesPerMinute int `mapstructure:"messages_per_minute"`
	SearchPerHour     int `mapstructure:"search_per_hour"`
	ImagesPerHour     int `mapstructure:"images_per_hour"`
}

type ScheduleConfig struct {
	ReminderInterval    time.Duration `mapstructure:"reminder_interval"`
	RetentionDays       int           `mapstructure:"retention_days"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	// BanSyncInterval controls how often a running bot reloads the ban list,
	// so bans made by the offline admin commands take effect.
	BanSyncInterval time.Duration `mapstructure:"ban_sync_interval"`
	DigestHour          int           `mapstructure:"digest_hour"`
	DigestMinute        int           `mapstructure:"digest_minute"`
	Timezone            string        `mapstructure:"timezone"`
}

// Location resolves Timezone, "Local" and "" meaning the host zone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	// Addr is empty to disable the endpoint.
	Addr string `mapstructure:"addr"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	}, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.bot_name", "Assistant")
	v.SetDefault("telegram.admin_ids", []int64{})
	v.SetDefault("telegram.allowed_ids", []int64{})
	v.SetDefault("telegram.debug", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "bot_data.db")
	v.SetDefault("database.backup_dir", "backups")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "assistant")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("provider.backend", "openai")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", DefaultGroqBaseURL)
	v.SetDefault("provider.gemini_api_key", "")
	v.SetDefault("provider.transcription_model", "whisper-large-v3")
	v.SetDefault("provider.language", "he")
	v.SetDefault("provider.speech_model", "playai-tts")
	v.SetDefault("provider.voice", "Cheyenne-PlayAI")

	v.SetDefault("images.api_key", "")
	v.SetDefault("images.base_url", "")
	v.SetDefault("images.model", "dall-e-3")

	v.SetDefault("search.base_url", "https://api.duckduckgo.com")
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.max_results", 6)

	v.SetDefault("conversation.persona", "")
	v.SetDefault("conversation.history_limit", 20)
	v.SetDefault("conversation.max_tokens", 900)
	v.SetDefault("conversation.voice_max_tokens", 400)
	v.SetDefault("conversation.temperature", 0.7)

	v.SetDefault("rate_limit.messages_per_minute", 12)
	v.SetDefault("rate_limit.search_per_hour", 5)
	v.SetDefault("rate_limit.images_per_hour", 4)

	v.SetDefault("schedule.reminder_interval", 30*time.Second)
	v.SetDefault("schedule.retention_days", 90)
	v.SetDefault("schedule.maintenance_interval", 24*time.Hour)
	v.SetDefault("schedule.ban_sync_interval", time.Minute)
	v.SetDefault("schedule.digest_hour", 8)
	v.SetDefault("schedule.digest_minute", 0)
	v.SetDefault("schedule.timezone", "Local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.addr", "")
}

// LoadConfig reads .env, then the optional YAML file at path, then the
// environment. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("failed to read config: %w", err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := applyEnv(v, &config); err != nil {
		return nil, err
	}
	if len(config.Provider.Models) == 0 {
		config.Provider.Models = DefaultModels(config.Provider)
	}
	return &config, nil
}

// applyEnv maps the short variable names used by deployments.
func applyEnv(v *viper.Viper, config *Config) error {
	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		dbConfig.BackupDir = config.Database.BackupDir
		dbConfig.Path = config.Database.Path
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if name := v.GetString("BOT_NAME"); name != "" {
		config.Telegram.BotName = name
	}
	for env, dst := range map[string]*[]int64{
		"ADMIN_USER_IDS":   &config.Telegram.AdminIDs,
		"ALLOWED_USER_IDS": &config.Telegram.AllowedIDs,
	} {
		if raw := v.GetString(env); raw != "" {
			ids, err := parseIDs(raw)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", env, err)
			}
			*dst = ids
		}
	}

	if apiKey := v.GetString("GROQ_API_KEY"); apiKey != "" {
		config.Provider.APIKey = apiKey
	}
	if apiKey := v.GetString("GEMINI_API_KEY"); apiKey != "" {
		config.Provider.GeminiAPIKey = apiKey
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.Images.APIKey = apiKey
		if config.Provider.APIKey == "" {
			config.Provider.APIKey = apiKey
			config.Provider.BaseURL = ""
		}
	}

	for env, dst := range map[string]*int{
		"MAX_HISTORY_DAYS":     &config.Schedule.RetentionDays,
		"RATE_MSGS_PER_MIN":    &config.RateLimit.MessagesPerMinute,
		"RATE_SEARCH_PER_HOUR": &config.RateLimit.SearchPerHour,
		"RATE_IMAGES_PER_HOUR": &config.RateLimit.ImagesPerHour,
	} {
		if raw := v.GetString(env); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", env, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate checks what the long-running bot needs.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token is required")
	}
	if len(c.Telegram.AdminIDs) == 0 {
		return errors.New("at least one admin id is required")
	}
	switch c.Provider.Backend {
	case "openai":
		if c.Provider.APIKey == "" {
			return errors.New("provider api key is required")
		}
	case "gemini":
		if c.Provider.GeminiAPIKey == "" {
			return errors.New("gemini api key is required")
		}
	default:
		return fmt.Errorf("unknown provider backend %q", c.Provider.Backend)
	}
	if len(c.Provider.Models) == 0 {
		return errors.New("at least one provider model is required")
	}
	if c.Provider.Backend == "gemini" {
		for _, m := range c.Provider.Models {
			if strings.HasPrefix(m, "llama") || strings.HasPrefix(m, "mixtral") || strings.HasPrefix(m, "gpt-") {
				return fmt.Errorf("model %q is not served by the gemini backend", m)
			}
		}
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Schedule.DigestHour < 0 || c.Schedule.DigestHour > 23 || c.Schedule.DigestMinute < 0 || c.Schedule.DigestMinute > 59 {
		return errors.New("digest time is out of range")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	return nil
}
