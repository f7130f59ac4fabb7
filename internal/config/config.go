// Package config provides YAML-based configuration loading for Scanmark.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Scanmark configuration, loaded from
// scanmark.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DB      DBConfig      `yaml:"db"`
	Marking MarkingConfig `yaml:"marking"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig holds connection settings for the MySQL-compatible server.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// MarkingConfig controls the task pool: the assessment structure, the
// per-user completion quota (0 = unlimited) and the stale-claim sweep.
type MarkingConfig struct {
	Quota               int              `yaml:"quota"`
	StaleClaimTTLMinute int              `yaml:"stale_claim_ttl_minutes"`
	SweepCron           string           `yaml:"sweep_cron"`
	Questions           []QuestionConfig `yaml:"questions"`
}

// QuestionConfig maps one question to the fixed pages that carry it.
type QuestionConfig struct {
	Index int    `yaml:"index"`
	Label string `yaml:"label"`
	Pages []int  `yaml:"pages"`
}

// NotifyConfig selects chat platforms for best-effort event posting.
type NotifyConfig struct {
	DigestCron string        `yaml:"digest_cron"`
	Slack      SlackConfig   `yaml:"slack"`
	Discord    DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack Web API credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// QuestionsForPage returns the question indexes whose fixed pages
// include the given page number.
func (c *Config) QuestionsForPage(page int) []int {
	var qs []int
	for _, q := range c.Marking.Questions {
		for _, p := range q.Pages {
			if p == page {
				qs = append(qs, q.Index)
				break
			}
		}
	}
	return qs
}

// HasQuestion reports whether the assessment defines question index q.
func (c *Config) HasQuestion(q int) bool {
	for _, qc := range c.Marking.Questions {
		if qc.Index == q {
			return true
		}
	}
	return false
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 41984
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "scanmark"
	}
	if c.DB.Database == "" {
		c.DB.Database = "scanmark"
	}
	if c.Marking.SweepCron == "" {
		c.Marking.SweepCron = "*/10 * * * *"
	}
	for i := range c.Marking.Questions {
		if c.Marking.Questions[i].Label == "" {
			c.Marking.Questions[i].Label = fmt.Sprintf("Q%d", c.Marking.Questions[i].Index)
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if len(c.Marking.Questions) == 0 {
		errs = append(errs, "at least one marking question is required")
	}
	seen := make(map[int]bool)
	for i, q := range c.Marking.Questions {
		if q.Index <= 0 {
			errs = append(errs, fmt.Sprintf("questions[%d].index must be positive", i))
		}
		if seen[q.Index] {
			errs = append(errs, fmt.Sprintf("questions[%d].index %d duplicated", i, q.Index))
		}
		seen[q.Index] = true
		if len(q.Pages) == 0 {
			errs = append(errs, fmt.Sprintf("questions[%d].pages is required", i))
		}
	}
	if c.Marking.Quota < 0 {
		errs = append(errs, "marking.quota must not be negative")
	}
	if c.Marking.StaleClaimTTLMinute < 0 {
		errs = append(errs, "marking.stale_claim_ttl_minutes must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
