/*
Package config loads service configuration.

PURPOSE:
  One YAML file (all sections optional) on top of built-in defaults, then
  CREW_ROSTER_* environment overrides, then validation. A missing file is
  not an error: the defaults run a development server on an in-memory
  store.

ENVIRONMENT OVERRIDES:
  CREW_ROSTER_PORT             server.port
  CREW_ROSTER_DB_DRIVER        database.driver
  CREW_ROSTER_DB_DSN           database.dsn
  CREW_ROSTER_LOG_LEVEL        logging.level
  CREW_ROSTER_LOG_FORMAT       logging.format
  CREW_ROSTER_ALERTS_ENABLED   alerts.enabled
  CREW_ROSTER_WEBHOOK_URL      notify.webhook_url (switches notify.kind to webhook)
  CREW_ROSTER_WEBHOOK_TOKEN    notify.token
  CREW_ROSTER_REDIS_ADDR       ratelimit.redis_addr (switches backend to redis)

SEE ALSO:
  - cmd/server/main.go: Wires every section
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/warp/crew-roster/alerts"
	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/logging"
	"github.com/warp/crew-roster/priority"
	"github.com/warp/crew-roster/roster"
)

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Calendar  CalendarConfig   `yaml:"calendar"`
	Priority  priority.Weights `yaml:"priority"`
	Conflicts ConflictsConfig  `yaml:"conflicts"`
	Alerts    AlertsConfig     `yaml:"alerts"`
	Notify    NotifyConfig     `yaml:"notify"`
	RateLimit RateLimitConfig  `yaml:"ratelimit"`
	Logging   logging.Config   `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" validate:"dive,required"`
	// Demo resets the store and seeds the demo scenario on startup.
	Demo bool `yaml:"demo"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	DSN          string `yaml:"dsn" validate:"required_unless=Driver memory"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"min=0"`
}

type CalendarConfig struct {
	AnchorCode     string `yaml:"anchor_code" validate:"required"`
	AnchorDate     string `yaml:"anchor_date" validate:"required,datetime=2006-01-02"`
	PeriodLength   int    `yaml:"period_length" validate:"min=1"`
	DeadlineLead   int    `yaml:"deadline_lead" validate:"min=0"`
	PeriodsPerYear int    `yaml:"periods_per_year" validate:"min=1"`
}

// Build constructs the roster calendar.
func (c CalendarConfig) Build() (*roster.Calendar, error) {
	start, err := generic.ParseDate(c.AnchorDate)
	if err != nil {
		return nil, err
	}
	return roster.New(roster.Anchor{Code: c.AnchorCode, Start: start},
		roster.WithPeriodLength(c.PeriodLength),
		roster.WithDeadlineLead(c.DeadlineLead),
		roster.WithPeriodsPerYear(c.PeriodsPerYear),
	)
}

type ConflictsConfig struct {
	// Minimum available crew per rank; 0 disables the availability check.
	MinimumCaptains      int `yaml:"minimum_captains" validate:"min=0"`
	MinimumFirstOfficers int `yaml:"minimum_first_officers" validate:"min=0"`
}

// Minimums returns the per-rank map the detector takes.
func (c ConflictsConfig) Minimums() map[generic.Rank]int {
	return map[generic.Rank]int{
		generic.RankCaptain:      c.MinimumCaptains,
		generic.RankFirstOfficer: c.MinimumFirstOfficers,
	}
}

type AlertsConfig struct {
	// Enabled starts the in-process ticker. Scans triggered by cron or the
	// admin endpoint work either way.
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Recipients []string      `yaml:"recipients" validate:"dive,email"`
	Milestones []int         `yaml:"milestones" validate:"dive,min=0"`
}

type NotifyConfig struct {
	Kind       string        `yaml:"kind" validate:"oneof=log webhook"`
	WebhookURL string        `yaml:"webhook_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries" validate:"min=0,max=10"`
}

type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Requests      int           `yaml:"requests" validate:"min=1"`
	Window        time.Duration `yaml:"window"`
	Backend       string        `yaml:"backend" validate:"oneof=memory redis"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"min=0"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{Driver: "memory"},
		Calendar: CalendarConfig{
			AnchorCode:     "RP12/2025",
			AnchorDate:     "2025-10-11",
			PeriodLength:   roster.DefaultPeriodLength,
			DeadlineLead:   roster.DefaultDeadlineLead,
			PeriodsPerYear: roster.DefaultPeriodsPerYear,
		},
		Priority: priority.DefaultWeights(),
		Conflicts: ConflictsConfig{
			MinimumCaptains:      10,
			MinimumFirstOfficers: 10,
		},
		Alerts: AlertsConfig{
			Interval:   time.Hour,
			Milestones: append([]int(nil), alerts.DefaultMilestones...),
		},
		Notify: NotifyConfig{
			Kind:    "log",
			Timeout: 10 * time.Second,
			Retries: 3,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 120,
			Window:   time.Minute,
			Backend:  "memory",
		},
		Logging: logging.DefaultConfig(),
	}
}

// =============================================================================
// LOADING
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays CREW_ROSTER_* variables read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("CREW_ROSTER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CREW_ROSTER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("CREW_ROSTER_DB_DRIVER"); ok {
		cfg.Database.Driver = v
	}
	if v, ok := lookup("CREW_ROSTER_DB_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := lookup("CREW_ROSTER_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookup("CREW_ROSTER_LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := lookup("CREW_ROSTER_ALERTS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CREW_ROSTER_ALERTS_ENABLED: %w", err)
		}
		cfg.Alerts.Enabled = enabled
	}
	if v, ok := lookup("CREW_ROSTER_WEBHOOK_URL"); ok && v != "" {
		cfg.Notify.Kind = "webhook"
		cfg.Notify.WebhookURL = v
	}
	if v, ok := lookup("CREW_ROSTER_WEBHOOK_TOKEN"); ok {
		cfg.Notify.Token = v
	}
	if v, ok := lookup("CREW_ROSTER_REDIS_ADDR"); ok && v != "" {
		cfg.RateLimit.Backend = "redis"
		cfg.RateLimit.RedisAddr = v
	}
	return nil
}

// Validate runs struct validation plus the checks tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.Priority.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := cfg.Calendar.Build(); err != nil {
		return fmt.Errorf("config validation failed: calendar: %w", err)
	}
	if cfg.Notify.Kind == "webhook" {
		if err := validate.Var(cfg.Notify.WebhookURL, "required,url"); err != nil {
			return fmt.Errorf("config validation failed: notify.webhook_url: %w", err)
		}
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.write_timeout":    cfg.Server.WriteTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,
		"alerts.interval":         cfg.Alerts.Interval,
		"ratelimit.window":        cfg.RateLimit.Window,
	} {
		if d <= 0 {
			return fmt.Errorf("config validation failed: %s must be positive", name)
		}
	}
	return nil
}
