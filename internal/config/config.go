package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/sm2"
)

// EnvPrefix is the prefix for environment overrides, e.g. KNOLSTUDY_HTTP_ADDR.
const EnvPrefix = "KNOLSTUDY_"

// Config is the runtime configuration.
type Config struct {
	DB             string     `koanf:"db" validate:"required"`
	ReposDir       string     `koanf:"repos_dir" validate:"required"`
	ValidateOnLoad bool       `koanf:"validate_on_load"`
	Log            Log        `koanf:"log"`
	HTTP           HTTP       `koanf:"http"`
	Scheduler      Scheduler  `koanf:"scheduler"`
	Thresholds     Thresholds `koanf:"thresholds"`
	Streak         Window     `koanf:"streak"`
	Progress       Window     `koanf:"progress"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type HTTP struct {
	Addr string `koanf:"addr" validate:"required"`
}

// Scheduler bounds are checked by sm2.Params.Validate.
type Scheduler struct {
	DefaultEasiness float64 `koanf:"default_easiness"`
	MinEasiness     float64 `koanf:"min_easiness"`
	MaxEasiness     float64 `koanf:"max_easiness"`
}

// Thresholds are checked by classify.Thresholds.Validate.
type Thresholds struct {
	NewMax      int `koanf:"new_max"`
	LearningMax int `koanf:"learning_max"`
	YoungMax    int `koanf:"young_max"`
}

type Window struct {
	WindowDays int `koanf:"window_days" validate:"gte=1,lte=366"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	p := sm2.DefaultParams()
	th := classify.DefaultThresholds()
	return Config{
		DB:             "knolstudy.db",
		ReposDir:       "repos",
		ValidateOnLoad: true,
		Log:            Log{Level: "info", Format: "text"},
		HTTP:           HTTP{Addr: ":8080"},
		Scheduler: Scheduler{
			DefaultEasiness: p.DefaultEasiness,
			MinEasiness:     p.MinEasiness,
			MaxEasiness:     p.MaxEasiness,
		},
		Thresholds: Thresholds{NewMax: th.NewMax, LearningMax: th.LearningMax, YoungMax: th.YoungMax},
		Streak:     Window{WindowDays: 30},
		Progress:   Window{WindowDays: 7},
	}
}

// RegisterFlags defines the command-line overrides on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("config", "knolstudy.yaml", "Path to the YAML config file")
	flags.String("db", d.DB, "Path to the SQLite database file")
	flags.String("repos_dir", d.ReposDir, "Directory for cloned deck repositories")
	flags.String("log.level", d.Log.Level, "Log level: debug, info, warn, error")
	flags.String("log.format", d.Log.Format, "Log format: text or json")
	flags.String("http.addr", d.HTTP.Addr, "Address for the HTTP server")
	flags.Bool("validate_on_load", d.ValidateOnLoad, "Refuse to use data with integrity errors")
}

var sections = []string{"log", "http", "scheduler", "thresholds", "streak", "progress"}

// envKey maps KNOLSTUDY_SCHEDULER_MIN_EASINESS to scheduler.min_easiness.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// Load layers defaults, the YAML file named by --config, KNOLSTUDY_ environment
// variables and explicitly set flags, in that order. A missing config file is not an error.
func Load(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path, err := flags.GetString("config")
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config flag: %w", err)
	}
	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	// Only flags set on the command line override file and environment.
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		if !f.Changed || f.Name == "config" {
			return "", nil
		}
		return f.Name, posflag.FlagVal(flags, f)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.SchedulerParams().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.ClassifyThresholds().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SchedulerParams converts the scheduler section.
func (c Config) SchedulerParams() *sm2.Params {
	return &sm2.Params{
		DefaultEasiness: c.Scheduler.DefaultEasiness,
		MinEasiness:     c.Scheduler.MinEasiness,
		MaxEasiness:     c.Scheduler.MaxEasiness,
	}
}

// ClassifyThresholds converts the thresholds section.
func (c Config) ClassifyThresholds() classify.Thresholds {
	return classify.Thresholds{
		NewMax:      c.Thresholds.NewMax,
		LearningMax: c.Thresholds.LearningMax,
		YoungMax:    c.Thresholds.YoungMax,
	}
}

// Logger builds the slog logger described by the log section.
func (c Config) Logger(w *os.File) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Log.Level))
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
