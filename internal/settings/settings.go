// Package settings loads unrat configuration from an optional YAML file,
// UNRAT_* environment variables and command-line flags.
package settings

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"unrat/internal/decrypt"
	"unrat/internal/extract"
	"unrat/internal/mdfmt"
	"unrat/internal/output"
	"unrat/internal/sigscan"
)

const (
	// EnvPrefix prefixes environment overrides: log.level is UNRAT_LOG_LEVEL.
	EnvPrefix = "UNRAT"
	// ConfigName is the file looked up in the working directory and
	// $HOME/.config/unrat when no --config is given.
	ConfigName = "unrat"
)

// Log configures logging output.
type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // empty logs to stderr
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Settings is the resolved configuration.
type Settings struct {
	Rules        string   `mapstructure:"rules"` // YAML ruleset path; empty uses the embedded rules
	Remap        bool     `mapstructure:"remap"`
	PreserveKeys bool     `mapstructure:"preserve_keys"`
	Decryptors   []string `mapstructure:"decryptors"`
	Workers      int      `mapstructure:"workers"`
	Format       string   `mapstructure:"format"`
	Strict       bool     `mapstructure:"strict"`
	MaxSteps     int      `mapstructure:"max_steps"`
	Log          Log      `mapstructure:"log"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rules", "")
	v.SetDefault("remap", false)
	v.SetDefault("preserve_keys", false)
	v.SetDefault("decryptors", decrypt.Names(decrypt.Default()))
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("format", string(output.FormatJSON))
	v.SetDefault("strict", false)
	v.SetDefault("max_steps", 0)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}

// BindFlags binds flags whose names match config keys. Flag names use
// dashes ("preserve-keys", "log-level"); keys use underscores and dots.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := flagKey(f.Name)
		if key == "" {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("settings: bind %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

var flagKeys = map[string]string{
	"rules":          "rules",
	"remap":          "remap",
	"preserve-keys":  "preserve_keys",
	"decryptors":     "decryptors",
	"workers":        "workers",
	"format":         "format",
	"strict":         "strict",
	"max-steps":      "max_steps",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-file":       "log.file",
	"log-max-size":   "log.max_size",
	"log-compress":   "log.compress",
	"log-max-age":    "log.max_age",
	"log-max-backup": "log.max_backups",
}

func flagKey(name string) string { return flagKeys[name] }

// Load reads the config file (path, or unrat.yaml on the search path when
// path is empty) and decodes the merged result. A missing default file is
// not an error; a missing explicit file is.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/unrat")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("settings: read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("settings: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks value ranges and enumerations.
func (s *Settings) Validate() error {
	if s.Workers < 1 {
		return fmt.Errorf("settings: workers must be >= 1, got %d", s.Workers)
	}
	if _, err := output.ParseFormat(s.Format); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if _, err := logrus.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("settings: log.level: %w", err)
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("settings: log.format must be text or json, got %q", s.Log.Format)
	}
	if _, err := decrypt.Select(s.Decryptors); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}

// OutputFormat returns the validated report format.
func (s *Settings) OutputFormat() output.Format {
	f, _ := output.ParseFormat(s.Format)
	return f
}

// ExtractOptions builds parse options: the ruleset is loaded from disk when
// configured, otherwise the embedded rules are used.
func (s *Settings) ExtractOptions(logger logrus.FieldLogger) (extract.Options, error) {
	rules := sigscan.DefaultRules()
	if s.Rules != "" {
		rs, err := sigscan.LoadRules(s.Rules)
		if err != nil {
			return extract.Options{}, err
		}
		rules = rs
	}
	decs, err := decrypt.Select(s.Decryptors)
	if err != nil {
		return extract.Options{}, err
	}
	md := mdfmt.Options{Mode: mdfmt.ModeBestEffort, MaxSteps: s.MaxSteps}
	if s.Strict {
		md.Mode = mdfmt.ModeStrict
	}
	return extract.Options{
		Rules:                  rules,
		Remap:                  s.Remap,
		PreserveObfuscatedKeys: s.PreserveKeys,
		Decryptors:             decs,
		Metadata:               md,
		Logger:                 logger,
	}, nil
}
