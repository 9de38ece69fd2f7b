package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nidhogg/weatherbot/internal/gateway"
	"gopkg.in/yaml.v3"
)

// ErrMissing is wrapped by validation errors for absent required settings.
var ErrMissing = errors.New("missing required setting")

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	Weather  WeatherConfig  `json:"weather" yaml:"weather"`
	Bot      BotConfig      `json:"bot" yaml:"bot"`
	Database DatabaseConfig `json:"database" yaml:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

type GatewayConfig struct {
	Slack    SlackGatewayConfig    `json:"slack" yaml:"slack"`
	Discord  DiscordGatewayConfig  `json:"discord" yaml:"discord"`
	Telegram TelegramGatewayConfig `json:"telegram" yaml:"telegram"`
	REST     RESTGatewayConfig     `json:"rest" yaml:"rest"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	AppToken string `json:"app_token" yaml:"app_token"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
}

type TelegramGatewayConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
}

type RESTGatewayConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type WeatherConfig struct {
	APIKey    string   `json:"api_key" yaml:"api_key"`
	Endpoint  string   `json:"endpoint" yaml:"endpoint"`
	Language  string   `json:"language" yaml:"language"`
	Units     string   `json:"units" yaml:"units"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
	RateLimit float64  `json:"rate_limit" yaml:"rate_limit"`
	Burst     int      `json:"burst" yaml:"burst"`
	CacheTTL  Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

type BotConfig struct {
	// FeedbackConversation is "platform:channel"; empty disables /feedback.
	FeedbackConversation string   `json:"feedback_conversation" yaml:"feedback_conversation"`
	PendingTimeout       Duration `json:"pending_timeout" yaml:"pending_timeout"`
	ReplyUnknownCommands bool     `json:"reply_unknown_commands" yaml:"reply_unknown_commands"`
	ProjectURL           string   `json:"project_url" yaml:"project_url"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn" yaml:"dsn"`
	MigrationsDir string `json:"migrations_dir" yaml:"migrations_dir"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// expandEnv substitutes ${VAR} and ${VAR:default} with environment values.
func expandEnv(data string) string {
	return envVarRe.ReplaceAllStringFunc(data, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})
}

// Load reads a JSON or YAML config file (chosen by extension), substitutes
// environment variable references and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	resolved := []byte(expandEnv(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(resolved, &cfg)
	default:
		err = json.Unmarshal(resolved, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Weather.Language == "" {
		c.Weather.Language = "en"
	}
	if c.Weather.Units == "" {
		c.Weather.Units = "metric"
	}
	if c.Weather.Timeout == 0 {
		c.Weather.Timeout = Duration(10 * time.Second)
	}
	if c.Weather.CacheTTL == 0 {
		c.Weather.CacheTTL = Duration(10 * time.Minute)
	}
	if c.Bot.ProjectURL == "" {
		c.Bot.ProjectURL = "https://github.com/nidhogg/weatherbot"
	}
	if c.Database.Postgres.MigrationsDir == "" {
		c.Database.Postgres.MigrationsDir = "migrations"
	}
}

// Validate reports settings without which the bot cannot start. A missing
// feedback conversation is allowed; /feedback is then disabled.
func (c *Config) Validate() error {
	if c.Weather.APIKey == "" {
		return fmt.Errorf("weather.api_key: %w", ErrMissing)
	}
	if c.Weather.Units != "metric" {
		return fmt.Errorf("weather.units: unsupported value %q, only metric is supported", c.Weather.Units)
	}
	if c.Weather.RateLimit < 0 {
		return fmt.Errorf("weather.rate_limit: must not be negative")
	}

	g := c.Gateway
	if g.Slack.Enabled && (g.Slack.BotToken == "" || g.Slack.AppToken == "") {
		return fmt.Errorf("gateway.slack: bot_token and app_token: %w", ErrMissing)
	}
	if g.Discord.Enabled && g.Discord.BotToken == "" {
		return fmt.Errorf("gateway.discord.bot_token: %w", ErrMissing)
	}
	if g.Telegram.Enabled && g.Telegram.BotToken == "" {
		return fmt.Errorf("gateway.telegram.bot_token: %w", ErrMissing)
	}
	if !g.Slack.Enabled && !g.Discord.Enabled && !g.Telegram.Enabled && !g.REST.Enabled {
		return fmt.Errorf("gateway: no transport enabled: %w", ErrMissing)
	}

	if c.Bot.FeedbackConversation != "" {
		if _, err := c.FeedbackConversation(); err != nil {
			return fmt.Errorf("bot.feedback_conversation: %w", err)
		}
	}
	return nil
}

// FeedbackConversation parses bot.feedback_conversation. An empty setting
// yields the zero Conversation.
func (c *Config) FeedbackConversation() (gateway.Conversation, error) {
	if c.Bot.FeedbackConversation == "" {
		return gateway.Conversation{}, nil
	}
	return gateway.ParseConversation(c.Bot.FeedbackConversation)
}
