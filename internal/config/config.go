// Package config loads the bot configuration from a YAML file and applies
// environment variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the trading bot.
type Config struct {
	Bot           BotConfig           `yaml:"bot"`
	Risk          RiskConfig          `yaml:"risk"`
	Advisor       AdvisorConfig       `yaml:"advisor"`
	Broker        BrokerConfig        `yaml:"broker"`
	Market        MarketConfig        `yaml:"market"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Notifications NotificationConfig  `yaml:"notifications"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Reporting     ReportingConfig     `yaml:"reporting"`
}

// BotConfig holds identity and persistence settings.
type BotConfig struct {
	Name         string  `yaml:"name"`
	StartingCash float64 `yaml:"starting_cash"`
	StateFile    string  `yaml:"state_file"`
	JournalPath  string  `yaml:"journal_path"`
}

// RiskConfig defines the fixed risk policy applied to every advisor batch.
type RiskConfig struct {
	MaxPositionPct     float64       `yaml:"max_position_pct"`      // nominal cap, fraction of equity
	BearMaxPositionPct float64       `yaml:"bear_max_position_pct"` // tighter cap in bear regime
	SidewaysCapFactor  float64       `yaml:"sideways_cap_factor"`   // scales nominal cap in sideways regime
	StopLossPct        float64       `yaml:"stop_loss_pct"`
	SectorMaxPct       float64       `yaml:"sector_max_pct"`
	MinDollarVolume    float64       `yaml:"min_dollar_volume"`
	MinPrice           float64       `yaml:"min_price"`
	MaxSpreadPct       float64       `yaml:"max_spread_pct"` // warn-only
	RegimeTTL          time.Duration `yaml:"regime_ttl"`
	BenchmarkTicker    string        `yaml:"benchmark_ticker"`
}

// AdvisorConfig configures the language-model advisor.
type AdvisorConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"-"` // from OPENAI_API_KEY
	PrimaryModel  string        `yaml:"primary_model"`
	BackupModel   string        `yaml:"backup_model"`
	ResearchModel string        `yaml:"research_model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxTokens     int           `yaml:"max_tokens"`
}

// BrokerConfig configures order execution.
type BrokerConfig struct {
	Paper     bool          `yaml:"paper"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"-"` // from ALPACA_API_KEY
	APISecret string        `yaml:"-"` // from ALPACA_SECRET_KEY
	Timeout   time.Duration `yaml:"timeout"`
}

// MarketConfig configures market data retrieval.
type MarketConfig struct {
	DataURL     string            `yaml:"data_url"`
	HistoryDays int               `yaml:"history_days"`
	Watchlist   []string          `yaml:"watchlist"` // candidate tickers shown to the advisor
	Sectors     map[string]string `yaml:"sectors"`   // ticker -> sector label
}

// CycleConfig is one named trigger in the timetable.
type CycleConfig struct {
	Name     string `yaml:"name"`
	At       string `yaml:"at"` // "HH:MM" local to Schedule.Timezone
	Research bool   `yaml:"research"`
}

// ScheduleConfig defines the cycle timetable.
type ScheduleConfig struct {
	Timezone        string        `yaml:"timezone"`
	Workers         int           `yaml:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Cycles          []CycleConfig `yaml:"cycles"`
}

// NotificationConfig configures the alert sink.
type NotificationConfig struct {
	TelegramToken  string `yaml:"-"` // from TELEGRAM_TOKEN
	TelegramChatID string `yaml:"-"` // from TELEGRAM_CHAT_ID
}

// MonitoringConfig configures the metrics/health HTTP listener.
type MonitoringConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ReportingConfig configures report output.
type ReportingConfig struct {
	ExcelDir string `yaml:"excel_dir"`
}

// Default returns the built-in configuration, matching the documented policy
// defaults. A YAML file overrides any subset of it.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Name:         "stockpilot",
			StartingCash: 100.0,
			StateFile:    "portfolio_state.json",
			JournalPath:  "journal.db",
		},
		Risk: RiskConfig{
			MaxPositionPct:     0.15,
			BearMaxPositionPct: 0.05,
			SidewaysCapFactor:  0.80,
			StopLossPct:        0.15,
			SectorMaxPct:       0.25,
			MinDollarVolume:    500_000,
			MinPrice:           1.00,
			MaxSpreadPct:       0.03,
			RegimeTTL:          6 * time.Hour,
			BenchmarkTicker:    "SPY",
		},
		Advisor: AdvisorConfig{
			BaseURL:       "https://api.openai.com/v1",
			PrimaryModel:  "gpt-4o",
			BackupModel:   "gpt-4",
			ResearchModel: "o3-deep-research",
			Timeout:       120 * time.Second,
			MaxTokens:     2000,
		},
		Broker: BrokerConfig{
			Paper:   true,
			BaseURL: "https://paper-api.alpaca.markets",
			Timeout: 30 * time.Second,
		},
		Market: MarketConfig{
			DataURL:     "https://data.alpaca.markets",
			HistoryDays: 30,
			Sectors:     map[string]string{},
		},
		Schedule: ScheduleConfig{
			Timezone:        "America/New_York",
			Workers:         3,
			ShutdownTimeout: 2 * time.Minute,
			Cycles: []CycleConfig{
				{Name: "pre-market", At: "07:45", Research: true},
				{Name: "intraday", At: "11:00"},
				{Name: "daily", At: "16:30"},
			},
		},
		Monitoring: MonitoringConfig{
			ListenAddr: ":9090",
		},
		Reporting: ReportingConfig{
			ExcelDir: "reports",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Advisor.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		c.Broker.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Notifications.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notifications.TelegramChatID = v
	}
}

// Validate checks policy and timetable sanity.
func (c *Config) Validate() error {
	if c.Bot.StartingCash <= 0 {
		return fmt.Errorf("bot.starting_cash must be positive, got %.2f", c.Bot.StartingCash)
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be in (0,1], got %.4f", c.Risk.MaxPositionPct)
	}
	if c.Risk.BearMaxPositionPct <= 0 || c.Risk.BearMaxPositionPct > c.Risk.MaxPositionPct {
		return fmt.Errorf("risk.bear_max_position_pct must be in (0, max_position_pct], got %.4f", c.Risk.BearMaxPositionPct)
	}
	if c.Risk.SidewaysCapFactor <= 0 || c.Risk.SidewaysCapFactor > 1 {
		return fmt.Errorf("risk.sideways_cap_factor must be in (0,1], got %.4f", c.Risk.SidewaysCapFactor)
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		return fmt.Errorf("risk.stop_loss_pct must be in (0,1), got %.4f", c.Risk.StopLossPct)
	}
	if c.Risk.SectorMaxPct <= 0 || c.Risk.SectorMaxPct > 1 {
		return fmt.Errorf("risk.sector_max_pct must be in (0,1], got %.4f", c.Risk.SectorMaxPct)
	}
	if c.Schedule.Workers <= 0 {
		return fmt.Errorf("schedule.workers must be positive, got %d", c.Schedule.Workers)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}

	seen := map[string]bool{}
	for _, cy := range c.Schedule.Cycles {
		if cy.Name == "" {
			return fmt.Errorf("schedule.cycles: cycle with empty name")
		}
		if seen[cy.Name] {
			return fmt.Errorf("schedule.cycles: duplicate cycle name %q", cy.Name)
		}
		seen[cy.Name] = true
		if _, err := ParseClock(cy.At); err != nil {
			return fmt.Errorf("schedule.cycles[%s].at: %w", cy.Name, err)
		}
	}
	return nil
}

// ParseClock parses an "HH:MM" time-of-day string into hour and minute.
func ParseClock(s string) (Clock, error) {
	var c Clock
	if _, err := fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute); err != nil {
		return c, fmt.Errorf("invalid time-of-day %q (want HH:MM)", s)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return c, fmt.Errorf("time-of-day %q out of range", s)
	}
	return c, nil
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}
