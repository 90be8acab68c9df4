package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/lazypower/rapport/internal/tier"
)

// Config holds all rapport configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Levels   LevelsConfig   `mapstructure:"levels"`
	Tiers    []tier.Tier    `mapstructure:"tiers"`
	Decay    DecayConfig    `mapstructure:"decay"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind" validate:"required"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // "" resolves via store.DefaultDBPath()
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// LevelsConfig bounds every stored score.
type LevelsConfig struct {
	Min     int `mapstructure:"min"`
	Max     int `mapstructure:"max"`
	Initial int `mapstructure:"initial"`
}

type DecayConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	IdleDaysThreshold int           `mapstructure:"idle_days_threshold" validate:"min=0"`
	PerDay            int           `mapstructure:"per_day" validate:"min=1"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" validate:"min=0"` // 0 disables the background sweep
}

type ScoringConfig struct {
	RepeatWindow      time.Duration `mapstructure:"repeat_window" validate:"gt=0"`
	WindowCapSpan     time.Duration `mapstructure:"window_cap_span" validate:"gt=0"`
	WindowPositiveCap int           `mapstructure:"window_positive_cap" validate:"min=0"`
	DailyPositiveCap  int           `mapstructure:"daily_positive_cap" validate:"min=0"`
	PerEventMin       int           `mapstructure:"per_event_min" validate:"max=0"`
	PerEventMax       int           `mapstructure:"per_event_max" validate:"min=0"`
	DayBoundary       string        `mapstructure:"day_boundary" validate:"required"` // "local", "utc", or an IANA zone name
	EvidenceMaxRunes  int           `mapstructure:"evidence_max_runes" validate:"min=0"`
}

// DefaultTiers is the five-tier table used when none is configured.
func DefaultTiers() []tier.Tier {
	return []tier.Tier{
		{Name: "hostile", Min: -100, Max: -51, Effect: "Keep replies short and guarded. No warmth, hold boundaries."},
		{Name: "cold", Min: -50, Max: -11, Effect: "Stay factual and brief. Do not extend the conversation."},
		{Name: "neutral", Min: -10, Max: 9, Effect: "Be natural, objective and polite."},
		{Name: "friendly", Min: 10, Max: 39, Effect: "Be warm and positive. Follow-up questions are welcome."},
		{Name: "close", Min: 40, Max: 100, Effect: "Be warm and proactive while keeping appropriate distance."},
	}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Levels: LevelsConfig{
			Min:     -100,
			Max:     100,
			Initial: 0,
		},
		Tiers: DefaultTiers(),
		Decay: DecayConfig{
			Enabled:           false,
			IdleDaysThreshold: 14,
			PerDay:            1,
			SweepInterval:     time.Hour,
		},
		Scoring: ScoringConfig{
			RepeatWindow:      120 * time.Second,
			WindowCapSpan:     10 * time.Minute,
			WindowPositiveCap: 20,
			DailyPositiveCap:  50,
			PerEventMin:       -12,
			PerEventMax:       12,
			DayBoundary:       "local",
			EvidenceMaxRunes:  120,
		},
	}
}

// Load reads configuration from path (any format viper understands) on top
// of Default(), then applies RAPPORT_* environment overrides, e.g.
// RAPPORT_DATABASE_PATH or RAPPORT_DECAY_ENABLED. An empty path skips the
// file. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix("rapport")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// A configured tier list replaces the defaults rather than merging
	// into them index by index.
	if v.IsSet("tiers") {
		cfg.Tiers = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override keys
// that the config file does not mention.
func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("server.bind", c.Server.Bind)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("database.path", c.Database.Path)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("levels.min", c.Levels.Min)
	v.SetDefault("levels.max", c.Levels.Max)
	v.SetDefault("levels.initial", c.Levels.Initial)
	v.SetDefault("decay.enabled", c.Decay.Enabled)
	v.SetDefault("decay.idle_days_threshold", c.Decay.IdleDaysThreshold)
	v.SetDefault("decay.per_day", c.Decay.PerDay)
	v.SetDefault("decay.sweep_interval", c.Decay.SweepInterval)
	v.SetDefault("scoring.repeat_window", c.Scoring.RepeatWindow)
	v.SetDefault("scoring.window_cap_span", c.Scoring.WindowCapSpan)
	v.SetDefault("scoring.window_positive_cap", c.Scoring.WindowPositiveCap)
	v.SetDefault("scoring.daily_positive_cap", c.Scoring.DailyPositiveCap)
	v.SetDefault("scoring.per_event_min", c.Scoring.PerEventMin)
	v.SetDefault("scoring.per_event_max", c.Scoring.PerEventMax)
	v.SetDefault("scoring.day_boundary", c.Scoring.DayBoundary)
	v.SetDefault("scoring.evidence_max_runes", c.Scoring.EvidenceMaxRunes)
}

var validate = validator.New()

// Validate checks field rules, the tier table and cross-field rules. Bounds
// and tier problems are reported as *tier.ConfigError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := c.TierTable(); err != nil {
		return err
	}
	if c.Levels.Initial < c.Levels.Min || c.Levels.Initial > c.Levels.Max {
		return &tier.ConfigError{Reason: fmt.Sprintf("initial level %d outside [%d, %d]",
			c.Levels.Initial, c.Levels.Min, c.Levels.Max)}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// TierTable builds the validated tier table for the configured bounds.
func (c *Config) TierTable() (*tier.Table, error) {
	return tier.Load(c.Tiers, c.Levels.Min, c.Levels.Max)
}

// Location returns the zone whose midnight resets the daily counters.
func (c *Config) Location() (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(c.Scoring.DayBoundary)) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Scoring.DayBoundary)
	if err != nil {
		return nil, fmt.Errorf("scoring.day_boundary: %w", err)
	}
	return loc, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
