package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the active project configuration. It is computed once per process
// (see LoadOrDefault) and passed explicitly to every component.
type Config struct {
	Build  BuildConfig    `yaml:"build"`
	Data   map[string]any `yaml:"data,omitempty"`
	Server ServerConfig   `yaml:"server"`
}

// BuildConfig holds the source, output and public roots plus the per-class globs.
type BuildConfig struct {
	Src    Root `yaml:"src"`
	Dist   Root `yaml:"dist"`
	Temp   Root `yaml:"temp"`
	Public Root `yaml:"public"`
	// PublicSubpath is the directory under Dist receiving the public root verbatim.
	PublicSubpath string      `yaml:"public_subpath,omitempty"`
	Paths         PathsConfig `yaml:"paths"`
}

// PathsConfig maps each asset class to a glob relative to the source root.
// Keys are merged one by one over the defaults.
type PathsConfig struct {
	Styles   string `yaml:"styles,omitempty"`
	Scripts  string `yaml:"scripts,omitempty"`
	Pages    string `yaml:"pages,omitempty"`
	Images   string `yaml:"images,omitempty"`
	Fonts    string `yaml:"fonts,omitempty"`
	Partials string `yaml:"partials,omitempty"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Port int `yaml:"port,omitempty"`
	// Routes maps URL prefixes to directories relative to the working directory.
	Routes  map[string]string `yaml:"routes,omitempty"`
	Metrics *bool             `yaml:"metrics,omitempty"`
}

// MetricsEnabled reports whether the dev server exposes Prometheus metrics.
func (s ServerConfig) MetricsEnabled() bool {
	return s.Metrics == nil || *s.Metrics
}

// Root is a directory given either as a single path or as an ordered list of
// path segments, e.g. `src: [web, src]`.
type Root string

// UnmarshalYAML accepts a scalar path or a sequence of segments.
func (r *Root) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = Root(node.Value)
		return nil
	case yaml.SequenceNode:
		var segments []string
		if err := node.Decode(&segments); err != nil {
			return err
		}
		*r = Root(filepath.Join(segments...))
		return nil
	default:
		return fmt.Errorf("line %d: root must be a path or a list of path segments", node.Line)
	}
}

// String returns the root as a filesystem path.
func (r Root) String() string { return string(r) }
