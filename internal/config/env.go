package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; earlier files win because godotenv never
// overrides variables that are already set.
var envFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads .env files from the working directory so that ${VAR}
// references in the project configuration can be expanded. Missing files are ignored.
func LoadEnvFiles() {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", "file", name, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "file", name)
	}
}
