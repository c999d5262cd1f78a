package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
)

// Validate rejects configurations that would make clean destroy sources or
// make two pipeline stages write into the same root.
func (c *Config) Validate() error {
	roots := map[string]Root{
		"build.src":    c.Build.Src,
		"build.dist":   c.Build.Dist,
		"build.temp":   c.Build.Temp,
		"build.public": c.Build.Public,
	}
	seen := map[string]string{}
	for _, key := range []string{"build.src", "build.dist", "build.temp", "build.public"} {
		root := roots[key]
		if root == "" {
			return errors.ConfigError("root must not be empty").WithContext("key", key).Build()
		}
		clean := filepath.Clean(root.String())
		if other, dup := seen[clean]; dup {
			return errors.ConfigError(fmt.Sprintf("%s and %s point to the same directory", other, key)).
				WithContext("path", clean).
				Build()
		}
		seen[clean] = key
	}
	for _, key := range []string{"build.dist", "build.temp"} {
		out := filepath.Clean(roots[key].String())
		switch out {
		case ".", "/", "..":
			return errors.ConfigError("output root would remove the project on clean").
				WithContext("key", key).
				Build()
		}
		for _, input := range []string{"build.src", "build.public"} {
			if within(filepath.Clean(roots[input].String()), out) {
				return errors.ConfigError(fmt.Sprintf("%s lies inside %s and would be removed on clean", input, key)).
					WithContext("path", roots[input].String()).
					Build()
			}
		}
	}
	if c.Server.Port > 65535 {
		return errors.ConfigError("server.port out of range").WithContext("port", c.Server.Port).Build()
	}
	return nil
}

// within reports whether path is parent or lies below it.
func within(path, parent string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Init writes the default configuration to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.NewError(errors.CategoryConfig, "configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return errors.InternalError("failed to marshal default config").WithCause(err).Build()
	}
	header := []byte("# pagebuild project configuration\n# Unset keys fall back to the built-in defaults.\n")
	if err := os.WriteFile(configPath, append(header, data...), 0o644); err != nil {
		return errors.FileSystemError("failed to write config file").
			WithContext("path", configPath).
			WithCause(err).
			Build()
	}
	return nil
}
