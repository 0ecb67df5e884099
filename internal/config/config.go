package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port           int              `json:"port"`
	ExternalURL    string           `json:"external_url"`
	APIToken       string           `json:"api_token"`
	DBPath         string           `json:"db_path"`
	LogConfig      logger.LogConfig `json:"log_config"`
	FileStore      FileStoreConfig  `json:"file_store"`
	Mail           MailConfig       `json:"mail"`
	Summarizer     SummarizerConfig `json:"summarizer"`
	Caption        CaptionConfig    `json:"caption"`
	Retry          RetryConfig      `json:"retry"`
	Cache          CacheConfig      `json:"cache"`
	DigestCron     string           `json:"digest_cron"`
	Concurrency    int              `json:"concurrency"`
	ReportKeepDays int              `json:"report_keep_days"`
	CORSAllowlist  []string         `json:"cors_allowlist"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type IMAPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Folder   string `json:"folder"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type MailConfig struct {
	IMAP       IMAPConfig `json:"imap"`
	SMTP       SMTPConfig `json:"smtp"`
	DigestTo   string     `json:"digest_to"`
	FetchLimit int        `json:"fetch_limit"`
}

// SummarizerConfig carries the remote assistant session options. It is read
// once at startup and passed into components as an immutable value.
type SummarizerConfig struct {
	APIKey             string  `json:"api_key"`
	BaseURL            string  `json:"base_url"`
	Model              string  `json:"model"`
	Profile            string  `json:"profile"`
	Guidance           string  `json:"guidance"`
	ThreadTimeoutS     int     `json:"thread_timeout_s"`
	PollIntervalMS     int     `json:"poll_interval_ms"`
	CallTimeoutS       int     `json:"call_timeout_s"`
	MaxImageBytes      int     `json:"max_image_bytes"`
	MaxAttachmentBytes int     `json:"max_attachment_bytes"`
	CaptionTemperature float32 `json:"caption_temperature"`
}

type CaptionConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type RetryConfig struct {
	MaxAttempts   int     `json:"max_attempts"`
	InitialDelayS float64 `json:"initial_delay_s"`
	MaxDelayS     float64 `json:"max_delay_s"`
	Factor        float64 `json:"factor"`
	Jitter        bool    `json:"jitter"`
}

type CacheConfig struct {
	Enabled    bool `json:"enabled"`
	TTLS       int  `json:"ttl_s"`
	MaxEntries int  `json:"max_entries"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path is required")
	}
	if cfg.Summarizer.APIKey == "" {
		return nil, fmt.Errorf("summarizer.api_key is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ExternalURL == "" {
		cfg.ExternalURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.Mail.FetchLimit <= 0 {
		cfg.Mail.FetchLimit = 5
	}
	if cfg.Mail.IMAP.Folder == "" {
		cfg.Mail.IMAP.Folder = "INBOX"
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "gpt-4o"
	}
	if cfg.Summarizer.Profile == "" {
		cfg.Summarizer.Profile = "pdf_summarizer"
	}
	if cfg.Summarizer.ThreadTimeoutS <= 0 {
		cfg.Summarizer.ThreadTimeoutS = 300
	}
	if cfg.Summarizer.PollIntervalMS <= 0 {
		cfg.Summarizer.PollIntervalMS = 1000
	}
	if cfg.Summarizer.CallTimeoutS <= 0 {
		cfg.Summarizer.CallTimeoutS = 600
	}
	if cfg.Summarizer.MaxImageBytes <= 0 {
		cfg.Summarizer.MaxImageBytes = 8 << 20
	}
	if cfg.Summarizer.MaxAttachmentBytes <= 0 {
		cfg.Summarizer.MaxAttachmentBytes = 25 << 20
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelayS <= 0 {
		cfg.Retry.InitialDelayS = 1
	}
	if cfg.Retry.MaxDelayS <= 0 {
		cfg.Retry.MaxDelayS = 30
	}
	if cfg.Retry.Factor <= 1 {
		cfg.Retry.Factor = 2
	}
	if cfg.Cache.TTLS <= 0 {
		cfg.Cache.TTLS = 86400
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = 4096
	}
	if cfg.DigestCron == "" {
		cfg.DigestCron = "*/10 * * * *"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.ReportKeepDays <= 0 {
		cfg.ReportKeepDays = 30
	}
}
