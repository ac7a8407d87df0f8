package env

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	PathKey  = "ENV_PATH"
)

// LoadDotEnv loads variables from the file named by ENV_PATH, or from
// defaultPath. Variables already set in the process win. A missing file is an
// error only in local mode (env empty or "local").
func LoadDotEnv(env string, defaultPath string) error {
	envPath := os.Getenv(PathKey)
	if envPath == "" {
		slog.Debug("ENV_PATH is not set, using default path", "defaultPath", defaultPath)
		envPath = defaultPath
	}

	if err := godotenv.Load(envPath); err != nil {
		if env == EnvLocal || env == "" {
			return fmt.Errorf("failed to load %s: %w", envPath, err)
		}
		slog.Debug("Skipping .env ...", "env", env, "path", envPath)
	}

	return nil
}
