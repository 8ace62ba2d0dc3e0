package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ContentDigest/internal/domain"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "CONTENT_DIGEST_CONFIG"
	logLevelEnv        = "LOG_LEVEL"
	databaseDriverEnv  = "DATABASE_DRIVER"
	databaseDSNEnv     = "DATABASE_DSN"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	openAIBaseURLEnv   = "OPENAI_BASE_URL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	chatOpsChatIDEnv   = "CHATOPS_CHAT_ID"
	socialEndpointEnv  = "SOCIAL_PUBLISH_ENDPOINT"
	socialTokenEnv     = "SOCIAL_PUBLISH_TOKEN"
	socialAPITokenEnv  = "SOCIAL_API_TOKEN"
	PipelineTaskName   = "content-pipeline"
	CacheSweepTaskName = "cache-sweep"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Sources       SourcesConfig      `yaml:"sources"`
	Cache         CacheConfig        `yaml:"cache"`
	Synthesis     SynthesisConfig    `yaml:"synthesis"`
	Notifications NotificationConfig `yaml:"notifications"`
	Distribution  DistributionConfig `yaml:"distribution"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// SchedulerConfig defines when tasks run.
type SchedulerConfig struct {
	Timezone    string                  `yaml:"timezone"`
	HistorySize int                     `yaml:"historySize" validate:"gte=1"`
	StopTimeout time.Duration           `yaml:"stopTimeout"`
	Tasks       []domain.ScheduleConfig `yaml:"tasks" validate:"dive"`
	location    *time.Location          `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Task returns the schedule registered under name.
func (s SchedulerConfig) Task(name string) (domain.ScheduleConfig, bool) {
	for _, t := range s.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return domain.ScheduleConfig{}, false
}

// PipelineConfig carries the static part of the run configuration.
type PipelineConfig struct {
	Name               string        `yaml:"name" validate:"required"`
	MinQuality         float64       `yaml:"minQuality" validate:"gte=0,lte=1"`
	MaxContentAge      time.Duration `yaml:"maxContentAge" validate:"gte=0"`
	AnalysisType       string        `yaml:"analysisType" validate:"required"`
	CollectConcurrency int           `yaml:"collectConcurrency" validate:"gte=0"`
	NotifyTimeout      time.Duration `yaml:"notifyTimeout" validate:"gt=0"`
	EstimatedDuration  time.Duration `yaml:"estimatedDuration"`
	DistributeSocial   bool          `yaml:"distributeSocial"`
	DistributeChatOps  bool          `yaml:"distributeChatOps"`
}

// SourcesConfig groups the per-source-type settings.
type SourcesConfig struct {
	Social  SourceConfig `yaml:"social"`
	Channel SourceConfig `yaml:"channel"`
	Feed    SourceConfig `yaml:"feed"`
}

// ByType returns the settings of one source type.
func (s SourcesConfig) ByType(t domain.SourceType) SourceConfig {
	switch t {
	case domain.SourceSocial:
		return s.Social
	case domain.SourceChannel:
		return s.Channel
	default:
		return s.Feed
	}
}

// SourceConfig describes the monitored keys of one source type.
type SourceConfig struct {
	Enabled        bool                     `yaml:"enabled"`
	Keys           []string                 `yaml:"keys"`
	CacheTTL       time.Duration            `yaml:"cacheTtl" validate:"gte=0"`
	KeyTTL         map[string]time.Duration `yaml:"keyTtl"`
	MaxItems       int                      `yaml:"maxItems" validate:"gte=0"`
	Endpoint       string                   `yaml:"endpoint"`
	Token          string                   `yaml:"token"`
	ExtractContent bool                     `yaml:"extractContent"`
}

// CacheConfig controls the retention sweep.
type CacheConfig struct {
	Retention time.Duration `yaml:"retention" validate:"gt=0"`
}

// SynthesisConfig defines how to contact the analysis model.
type SynthesisConfig struct {
	BaseURL              string        `yaml:"baseUrl"`
	Model                string        `yaml:"model" validate:"required"`
	APIKey               string        `yaml:"apiKey"`
	SystemPrompt         string        `yaml:"systemPrompt"`
	MaxTokens            int           `yaml:"maxTokens" validate:"gte=0"`
	Temperature          float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	PromptPricePer1K     float64       `yaml:"promptPricePer1k" validate:"gte=0"`
	CompletionPricePer1K float64       `yaml:"completionPricePer1k" validate:"gte=0"`
	Timeout              time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates the operational notification sink.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Configured reports whether both token and chat are present.
func (t TelegramConfig) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// DistributionConfig lists outbound distribution channels.
type DistributionConfig struct {
	Social  SocialConfig   `yaml:"social"`
	ChatOps TelegramConfig `yaml:"chatops"`
}

// SocialConfig points at a publishing webhook.
type SocialConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// LoadFile reads the given YAML file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()
	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}
	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return nil
}

// Validate checks struct constraints and resolvable timezones.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, task := range c.Scheduler.Tasks {
		if task.Timezone == "" {
			continue
		}
		if _, err := time.LoadLocation(task.Timezone); err != nil {
			return fmt.Errorf("config: task %s: unknown timezone %s", task.Name, task.Timezone)
		}
	}
	return nil
}

// RunConfig derives the per-run pipeline configuration.
func (c Config) RunConfig() domain.PipelineRunConfig {
	sources := make(map[domain.SourceType]bool, len(domain.SourceTypes))
	for _, t := range domain.SourceTypes {
		sources[t] = c.Sources.ByType(t).Enabled
	}
	return domain.PipelineRunConfig{
		Sources:            sources,
		MinQuality:         c.Pipeline.MinQuality,
		MaxContentAge:      c.Pipeline.MaxContentAge,
		AnalysisType:       c.Pipeline.AnalysisType,
		DistributeSocial:   c.Pipeline.DistributeSocial,
		DistributeChatOps:  c.Pipeline.DistributeChatOps,
		CollectConcurrency: c.Pipeline.CollectConcurrency,
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Synthesis.APIKey = v
	}

	if v := os.Getenv(openAIModelEnv); v != "" {
		c.Synthesis.Model = v
	}

	if v := os.Getenv(openAIBaseURLEnv); v != "" {
		c.Synthesis.BaseURL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
		if c.Distribution.ChatOps.BotToken == "" {
			c.Distribution.ChatOps.BotToken = v
		}
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatOpsChatIDEnv); v != "" {
		c.Distribution.ChatOps.ChatID = v
	}

	if v := os.Getenv(socialEndpointEnv); v != "" {
		c.Distribution.Social.Endpoint = v
	}

	if v := os.Getenv(socialTokenEnv); v != "" {
		c.Distribution.Social.Token = v
	}

	if v := os.Getenv(socialAPITokenEnv); v != "" {
		c.Sources.Social.Token = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		tz = defaultTimezone
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc

	for i := range c.Scheduler.Tasks {
		if c.Scheduler.Tasks[i].Timezone == "" {
			c.Scheduler.Tasks[i].Timezone = tz
		}
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "contentdigest.db"},
		Scheduler: SchedulerConfig{
			Timezone:    defaultTimezone,
			HistorySize: 200,
			StopTimeout: 30 * time.Second,
			location:    tz,
			Tasks: []domain.ScheduleConfig{
				{
					Name:              PipelineTaskName,
					CronPattern:       "0 */6 * * *",
					Enabled:           true,
					MaxConcurrentRuns: 1,
					RetryAttempts:     2,
					RetryDelay:        5 * time.Minute,
				},
				{
					Name:              CacheSweepTaskName,
					CronPattern:       "30 3 * * *",
					Enabled:           true,
					MaxConcurrentRuns: 1,
				},
			},
		},
		Pipeline: PipelineConfig{
			Name:               "daily-digest",
			MinQuality:         0.5,
			MaxContentAge:      24 * time.Hour,
			AnalysisType:       "summary",
			CollectConcurrency: 1,
			NotifyTimeout:      10 * time.Second,
			EstimatedDuration:  5 * time.Minute,
			DistributeChatOps:  true,
		},
		Sources: SourcesConfig{
			Social:  SourceConfig{CacheTTL: 30 * time.Minute, MaxItems: 50},
			Channel: SourceConfig{CacheTTL: time.Hour, MaxItems: 50},
			Feed: SourceConfig{
				Enabled:  true,
				CacheTTL: 2 * time.Hour,
				MaxItems: 30,
				Keys:     []string{"https://go.dev/blog/feed.atom"},
			},
		},
		Cache: CacheConfig{Retention: 7 * 24 * time.Hour},
		Synthesis: SynthesisConfig{
			Model:                "gpt-4o-mini",
			SystemPrompt:         "You analyze collected posts and articles and produce a concise digest.",
			MaxTokens:            2048,
			Temperature:          0.3,
			PromptPricePer1K:     0.00015,
			CompletionPricePer1K: 0.0006,
			Timeout:              60 * time.Second,
		},
		Distribution: DistributionConfig{
			Social: SocialConfig{Timeout: 15 * time.Second},
		},
	}
}
