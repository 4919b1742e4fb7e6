// Package config loads the application and declared-setup YAML documents.
//
// Both documents are loaded once, defaulted, validated and then treated as
// immutable values passed to the components that need them.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"orb-lab/internal/domain"
	"orb-lab/internal/logging"
	"orb-lab/internal/session"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the application configuration.
type Config struct {
	Log        logging.Config   `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Simulation SimulationConfig `yaml:"simulation"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	Engine     EngineConfig     `yaml:"engine"`
	Promotion  PromotionConfig  `yaml:"promotion"`
}

// StorageConfig holds store DSNs. Empty DSNs select in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// CalendarConfig describes the fixed-offset trading calendar.
// ORB names are local clock times in HHMM form.
type CalendarConfig struct {
	UTCOffsetMinutes int             `yaml:"utc_offset_minutes" default:"600" validate:"gt=-1440,lt=1440"`
	TradingDayStart  string          `yaml:"trading_day_start" default:"09:00" validate:"required"`
	ORBMinutes       int             `yaml:"orb_minutes" default:"5" validate:"min=1,max=60"`
	ORBs             []string        `yaml:"orbs" validate:"dive,len=4,numeric"`
	Sessions         []SessionConfig `yaml:"sessions" validate:"dive"`
}

// SessionConfig is a named broader session.
type SessionConfig struct {
	Name     string        `yaml:"name" validate:"required,uppercase"`
	Start    string        `yaml:"start" validate:"required"`
	Duration time.Duration `yaml:"duration" validate:"gt=0"`
}

// SimulationConfig parametrises the trades stored on the feature table.
type SimulationConfig struct {
	RiskReward  float64       `yaml:"risk_reward" default:"1.0" validate:"gt=0"`
	StopMode    string        `yaml:"stop_mode" default:"FULL" validate:"oneof=HALF FULL"`
	ScanHorizon time.Duration `yaml:"scan_horizon" validate:"min=0"` // 0 scans to the trading-day end
}

// IndicatorsConfig holds indicator lookbacks.
type IndicatorsConfig struct {
	ATRPeriod int `yaml:"atr_period" default:"20" validate:"min=1"`
	RSIPeriod int `yaml:"rsi_period" default:"14" validate:"min=2"`
}

// EngineConfig parametrises the strategy engine.
type EngineConfig struct {
	WatchPeriod  time.Duration   `yaml:"watch_period" default:"4h" validate:"gt=0"`
	PollInterval time.Duration   `yaml:"poll_interval" default:"30s" validate:"gt=0"`
	Cascades     []CascadeConfig `yaml:"cascades" validate:"dive"`
}

// CascadeConfig pairs a leader ORB with a follower ORB.
type CascadeConfig struct {
	Name     string `yaml:"name" validate:"required"`
	Leader   string `yaml:"leader" validate:"required"`
	Follower string `yaml:"follower" validate:"required,nefield=Leader"`
}

// PromotionConfig holds the hard promotion gates and tier cut-offs.
type PromotionConfig struct {
	MinAvgR               float64 `yaml:"min_avg_r" default:"0.10" validate:"gt=0"`
	MinTrades             int     `yaml:"min_trades" default:"50" validate:"min=1"`
	Partitions            int     `yaml:"partitions" default:"3" validate:"eq=3"`
	MinPositivePartitions int     `yaml:"min_positive_partitions" default:"2" validate:"min=2,ltefield=Partitions"`
	TopTierAvgR           float64 `yaml:"top_tier_avg_r" default:"0.30"`
	MidTierAvgR           float64 `yaml:"mid_tier_avg_r" default:"0.15" validate:"ltefield=TopTierAvgR"`
}

var defaultORBs = []string{"0900", "1000", "1100", "1800", "2300", "0030"}

var defaultSessions = []SessionConfig{
	{Name: "ASIA", Start: "09:00", Duration: 8 * time.Hour},
	{Name: "LONDON", Start: "18:00", Duration: 5 * time.Hour},
	{Name: "NY", Start: "23:00", Duration: 3 * time.Hour},
}

// Default returns a fully defaulted configuration.
func Default() (*Config, error) {
	return Parse(nil)
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// An empty path loads the defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	return c, nil
}

// Parse decodes, defaults and validates a YAML document.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Calendar.ORBs) == 0 {
		c.Calendar.ORBs = append([]string(nil), defaultORBs...)
	}
	if len(c.Calendar.Sessions) == 0 {
		c.Calendar.Sessions = append([]SessionConfig(nil), defaultSessions...)
	}
	c.Simulation.StopMode = strings.ToUpper(c.Simulation.StopMode)

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := c.BuildCalendar(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := c.validateCascades(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// BuildCalendar constructs the session calendar.
func (c *Config) BuildCalendar() (*session.Calendar, error) {
	dayStart, err := session.ParseClock(c.Calendar.TradingDayStart)
	if err != nil {
		return nil, err
	}

	orb := time.Duration(c.Calendar.ORBMinutes) * time.Minute
	var windows []session.Window
	for _, name := range c.Calendar.ORBs {
		start, err := session.ParseClock(name[:2] + ":" + name[2:])
		if err != nil {
			return nil, fmt.Errorf("orb %q: %w", name, err)
		}
		windows = append(windows, session.Window{Name: name, Kind: session.KindORB, Start: start, Duration: orb})
	}
	for _, s := range c.Calendar.Sessions {
		start, err := session.ParseClock(s.Start)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", s.Name, err)
		}
		windows = append(windows, session.Window{Name: s.Name, Kind: session.KindSession, Start: start, Duration: s.Duration})
	}

	return session.New(session.Options{
		UTCOffset: time.Duration(c.Calendar.UTCOffsetMinutes) * time.Minute,
		DayStart:  dayStart,
		Windows:   windows,
	})
}

// SessionNames returns configured session names.
func (c *Config) SessionNames() []string {
	names := make([]string, 0, len(c.Calendar.Sessions))
	for _, s := range c.Calendar.Sessions {
		names = append(names, s.Name)
	}
	return names
}

// StopMode returns the simulation stop mode as a domain value.
func (c *Config) StopMode() domain.StopMode {
	return domain.StopMode(c.Simulation.StopMode)
}

func (c *Config) validateCascades() error {
	known := make(map[string]bool, len(c.Calendar.ORBs))
	for _, o := range c.Calendar.ORBs {
		known[o] = true
	}
	seen := make(map[string]bool)
	var errs []error
	for _, cc := range c.Engine.Cascades {
		if seen[cc.Name] {
			errs = append(errs, fmt.Errorf("cascade %q defined twice", cc.Name))
		}
		seen[cc.Name] = true
		for _, o := range []string{cc.Leader, cc.Follower} {
			if !known[o] {
				errs = append(errs, fmt.Errorf("cascade %q: unknown orb %q", cc.Name, o))
			}
		}
	}
	return errors.Join(errs...)
}

// sortedKeys returns map keys in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
