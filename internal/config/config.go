// Package config holds the YAML application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rivercweiss/chime/internal/model"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// ID is the calendar id rules scope against.
	ID string `yaml:"id"`
	// Name is a human-friendly label used in CLI output.
	Name string `yaml:"name"`
	// URL is an http(s) endpoint or a local file path.
	URL string `yaml:"url"`
}

// Duration wraps time.Duration so YAML fields accept Go duration strings
// like "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RecoveryConfig tunes drift recovery. Zero values use engine defaults.
type RecoveryConfig struct {
	// MaxAttempts caps automatic repair attempts per alarm.
	MaxAttempts int `yaml:"max_attempts"`
	// Backoff is the minimum gap between repair attempts for one alarm.
	Backoff Duration `yaml:"backoff"`
	// SweepCooldown is the minimum gap between reconciliation sweeps.
	SweepCooldown Duration `yaml:"sweep_cooldown"`
}

// Config is the top-level application configuration.
type Config struct {
	// Database is the SQLite path holding alarm rows.
	Database string `yaml:"database"`

	// RulesDir holds the CUE rule files.
	RulesDir string `yaml:"rules_dir"`

	// ICS is the list of subscribed calendar sources.
	ICS []ICSConfig `yaml:"ics"`

	// HorizonDays is the scheduling lookahead window in days.
	HorizonDays int `yaml:"horizon_days"`

	// AllDayAlarmTime is the wall-clock alarm time ("HH:MM") for all-day
	// events, resolved in the event's own timezone.
	AllDayAlarmTime string `yaml:"all_day_alarm_time"`

	// DuplicateHandling selects how overlapping rule matches collapse:
	// allow_multiple, earliest_only, latest_only, shortest_lead_time,
	// longest_lead_time.
	DuplicateHandling string `yaml:"duplicate_handling"`

	// ScheduleCron and ReconcileCron drive the daemon's periodic passes.
	ScheduleCron  string `yaml:"schedule_cron"`
	ReconcileCron string `yaml:"reconcile_cron"`

	// MetricsListen, if set, serves Prometheus metrics on this address.
	MetricsListen string `yaml:"metrics_listen"`

	Recovery RecoveryConfig `yaml:"recovery"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database:          "chime.db",
		RulesDir:          "rules",
		HorizonDays:       14,
		AllDayAlarmTime:   "08:00",
		DuplicateHandling: "allow_multiple",
		ScheduleCron:      "*/15 * * * *",
		ReconcileCron:     "*/5 * * * *",
	}
}

// Load reads and validates a YAML config file. An empty path returns the
// defaults, so `chime` runs without a config file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// normalize fills zero values with defaults so partial configs behave.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.RulesDir == "" {
		c.RulesDir = d.RulesDir
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.AllDayAlarmTime == "" {
		c.AllDayAlarmTime = d.AllDayAlarmTime
	}
	if c.DuplicateHandling == "" {
		c.DuplicateHandling = d.DuplicateHandling
	}
	if c.ScheduleCron == "" {
		c.ScheduleCron = d.ScheduleCron
	}
	if c.ReconcileCron == "" {
		c.ReconcileCron = d.ReconcileCron
	}
}

// Validate checks the fields that are parsed further downstream.
func (c *Config) Validate() error {
	if _, err := model.ParseWallClock(c.AllDayAlarmTime); err != nil {
		return fmt.Errorf("all_day_alarm_time: %w", err)
	}
	if _, err := model.ParseDuplicateHandlingMode(c.DuplicateHandling); err != nil {
		return fmt.Errorf("duplicate_handling: %w", err)
	}
	seen := make(map[string]bool, len(c.ICS))
	for i, src := range c.ICS {
		if src.ID == "" {
			return fmt.Errorf("ics[%d]: id is required", i)
		}
		if src.URL == "" {
			return fmt.Errorf("ics[%d] (%s): url is required", i, src.ID)
		}
		if seen[src.ID] {
			return fmt.Errorf("ics: duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	if c.Recovery.MaxAttempts < 0 {
		return fmt.Errorf("recovery.max_attempts: must not be negative")
	}
	return nil
}

// Horizon returns the lookahead window as a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// AllDayWallClock returns the parsed all-day alarm time. Validate has
// already checked the format.
func (c *Config) AllDayWallClock() model.WallClock {
	w, _ := model.ParseWallClock(c.AllDayAlarmTime)
	return w
}

// DuplicateMode returns the parsed duplicate handling mode.
func (c *Config) DuplicateMode() model.DuplicateHandlingMode {
	m, _ := model.ParseDuplicateHandlingMode(c.DuplicateHandling)
	return m
}
