// Package config loads q2galaxy settings: built-in defaults overridden by
// Q2GALAXY_* environment variables. Command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "Q2GALAXY_"

// Config holds settings shared by all commands.
type Config struct {
	// PluginPath lists directories searched for plugin definition files.
	// From the environment it is a list separated like PATH.
	PluginPath []string `koanf:"plugin_path"`
	LogLevel   string   `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat  string   `koanf:"log_format" validate:"oneof=text json"`
	// IndexPath is the SQLite invocation index. Empty disables it.
	IndexPath string `koanf:"index_path"`
	Addr      string `koanf:"addr" validate:"required"`
	// WorkDir is where results are saved. Empty means the current
	// directory.
	WorkDir string `koanf:"work_dir"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		LogLevel:  "warn",
		LogFormat: "text",
		Addr:      ":8080",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return load(os.Environ)
}

func load(environ func() []string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// transformEnv maps Q2GALAXY_LOG_LEVEL to log_level.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	switch key {
	case "plugin_path":
		return key, filepath.SplitList(value)
	case "log_level", "log_format":
		return key, strings.ToLower(value)
	}
	return key, value
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("invalid %s %q", verrs[0].Field(), fmt.Sprint(verrs[0].Value()))
	}
	return err
}
