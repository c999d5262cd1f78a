package config

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
)

// ResolvePath returns the configuration file to load: the explicit path when
// given, otherwise the first default file name present in the working directory.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range DefaultConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return DefaultConfigFiles[0]
}

// Load reads a YAML project configuration and merges it over the defaults.
// Environment references (${VAR}) are expanded before decoding.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.ConfigLoadError("failed to read config file").
			WithContext("path", configPath).
			WithCause(err).
			Build()
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.ConfigLoadError("failed to parse config file").
			WithContext("path", configPath).
			WithCause(err).
			Build()
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault loads the project configuration, falling back to the defaults
// when the file is absent, malformed or fails validation. It never fails: the
// pipeline must stay constructible whatever the project file contains.
func LoadOrDefault(configPath string, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Info("No project configuration found, using defaults", logfields.Path(configPath))
		return Defaults()
	}
	cfg, err := Load(configPath)
	if err == nil {
		if verr := cfg.Validate(); verr != nil {
			err = errors.ConfigLoadError("invalid project configuration").
				WithContext("path", configPath).
				WithCause(verr).
				Build()
		}
	}
	if err != nil {
		logger.Warn("Ignoring project configuration, using defaults", logfields.Path(configPath), logfields.Error(err))
		return Defaults()
	}
	logger.Debug("Loaded project configuration", logfields.Path(configPath))
	return cfg
}
