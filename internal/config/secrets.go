package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	GeminiAPIKeyEnv   = "GEMINI_API_KEY"
	DeepgramAPIKeyEnv = "DEEPGRAM_API_KEY"
)

// Secrets holds API credentials. They never come from the config file.
type Secrets struct {
	GeminiAPIKey   string
	DeepgramAPIKey string
}

// LoadSecrets reads credentials from the environment after loading
// $XDG_CONFIG_HOME/clonely/.env and ./.env when present. Variables that are
// already set win over file values.
func LoadSecrets() (Secrets, error) {
	paths := []string{".env"}
	if dir, err := configDir(); err == nil {
		paths = append([]string{filepath.Join(dir, ".env")}, paths...)
	}
	return loadSecretsFrom(paths...)
}

func loadSecretsFrom(paths ...string) (Secrets, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Secrets{}, fmt.Errorf("stat env file %q: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return Secrets{}, fmt.Errorf("load env file %q: %w", path, err)
		}
	}

	return Secrets{
		GeminiAPIKey:   strings.TrimSpace(os.Getenv(GeminiAPIKeyEnv)),
		DeepgramAPIKey: strings.TrimSpace(os.Getenv(DeepgramAPIKeyEnv)),
	}, nil
}
