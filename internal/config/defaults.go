package config

// DefaultConfigFiles are the file names searched in the working directory.
var DefaultConfigFiles = []string{"pages.config.yaml", "pages.config.yml"}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config)
	Domain() string
}

var defaultAppliers = []DefaultApplier{
	&BuildDefaultApplier{},
	&PathsDefaultApplier{},
	&ServerDefaultApplier{},
}

func applyDefaults(cfg *Config) {
	for _, a := range defaultAppliers {
		a.ApplyDefaults(cfg)
	}
	if cfg.Data == nil {
		cfg.Data = map[string]any{}
	}
}

// BuildDefaultApplier handles root defaults.
type BuildDefaultApplier struct{}

func (b *BuildDefaultApplier) Domain() string { return "build" }

func (b *BuildDefaultApplier) ApplyDefaults(cfg *Config) {
	if cfg.Build.Src == "" {
		cfg.Build.Src = "src"
	}
	if cfg.Build.Dist == "" {
		cfg.Build.Dist = "dist"
	}
	if cfg.Build.Temp == "" {
		cfg.Build.Temp = "temp"
	}
	if cfg.Build.Public == "" {
		cfg.Build.Public = "public"
	}
	if cfg.Build.PublicSubpath == "" {
		cfg.Build.PublicSubpath = "public"
	}
}

// PathsDefaultApplier fills every glob the user did not override.
type PathsDefaultApplier struct{}

func (p *PathsDefaultApplier) Domain() string { return "paths" }

func (p *PathsDefaultApplier) ApplyDefaults(cfg *Config) {
	paths := &cfg.Build.Paths
	if paths.Styles == "" {
		paths.Styles = "assets/styles/*.scss"
	}
	if paths.Scripts == "" {
		paths.Scripts = "assets/scripts/*.js"
	}
	if paths.Pages == "" {
		paths.Pages = "**/*.html"
	}
	if paths.Images == "" {
		paths.Images = "assets/images/**"
	}
	if paths.Fonts == "" {
		paths.Fonts = "assets/fonts/**"
	}
	if paths.Partials == "" {
		paths.Partials = "{layouts,partials}/**/*.html"
	}
}

// ServerDefaultApplier handles dev server defaults. User routes are merged
// over the default /node_modules route.
type ServerDefaultApplier struct{}

func (s *ServerDefaultApplier) Domain() string { return "server" }

func (s *ServerDefaultApplier) ApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 80
	}
	if cfg.Server.Routes == nil {
		cfg.Server.Routes = map[string]string{}
	}
	if _, ok := cfg.Server.Routes["/node_modules"]; !ok {
		cfg.Server.Routes["/node_modules"] = "node_modules"
	}
}
