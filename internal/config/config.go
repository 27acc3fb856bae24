package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Symbol string `yaml:"symbol"` // history feed symbol, e.g. EURUSD
	Live   struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxAttempts  int           `yaml:"max_attempts"`
		RetryDelay   time.Duration `yaml:"retry_delay"`
		HTTPTimeout  time.Duration `yaml:"http_timeout"`
	} `yaml:"live"`
	Session struct {
		Timezone  string `yaml:"timezone"`
		CloseTime string `yaml:"close_time"` // HH:MM
	} `yaml:"session"`
	Artifacts struct {
		Dir          string `yaml:"dir"`
		Name         string `yaml:"name"`
		KeepVersions int    `yaml:"keep_versions"`
	} `yaml:"artifacts"`
	Dataset struct {
		Path string `yaml:"path"`
	} `yaml:"dataset"`
	History struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"history"`
	Quote struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"quote"`
	Schedule struct {
		RetrainCron string `yaml:"retrain_cron"` // empty disables in-process retrain
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"` // empty disables the endpoint
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads .env into the environment, then the YAML file at path, then
// applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("ALPHA_VANTAGE"); v != "" {
		cfg.History.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CRON_RETRAIN"); v != "" {
		cfg.Schedule.RetrainCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		cfg.Live.PollInterval = d
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAX_ATTEMPTS: %w", err)
		}
		cfg.Live.MaxAttempts = n
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Symbol == "" {
		c.Symbol = "EURUSD"
	}
	if c.Live.PollInterval == 0 {
		c.Live.PollInterval = 180 * time.Second
	}
	if c.Live.MaxAttempts == 0 {
		c.Live.MaxAttempts = 3
	}
	if c.Live.RetryDelay == 0 {
		c.Live.RetryDelay = 5 * time.Second
	}
	if c.Live.HTTPTimeout == 0 {
		c.Live.HTTPTimeout = 30 * time.Second
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "Africa/Johannesburg"
	}
	if c.Session.CloseTime == "" {
		c.Session.CloseTime = "23:00"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "models"
	}
	if c.Artifacts.Name == "" {
		c.Artifacts.Name = c.Symbol + "_daily"
	}
	if c.Artifacts.KeepVersions == 0 {
		c.Artifacts.KeepVersions = 5
	}
	if c.Dataset.Path == "" {
		c.Dataset.Path = "data/raw/eur_usd_data.csv"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.History.APIKey == "" {
		return errors.New("history.api_key is required (set ALPHA_VANTAGE)")
	}
	if c.Live.PollInterval < time.Second {
		return fmt.Errorf("live.poll_interval must be at least 1s, got %s", c.Live.PollInterval)
	}
	if c.Live.MaxAttempts < 1 {
		return fmt.Errorf("live.max_attempts must be positive, got %d", c.Live.MaxAttempts)
	}
	if c.Live.RetryDelay < 0 {
		return fmt.Errorf("live.retry_delay must not be negative")
	}
	// the previous pair must outlive a CURRENT swap for readers in other processes
	if c.Artifacts.KeepVersions < 2 {
		return fmt.Errorf("artifacts.keep_versions must be at least 2, got %d", c.Artifacts.KeepVersions)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return errors.New("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether chat delivery is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
