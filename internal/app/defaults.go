package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the resolved base paths the application starts from.
// Environment variables override the XDG-style home layout:
//   - GRS_CONFIG_PATH: config file location (default: ~/.config/grs.toml)
//   - GRS_HOME: base directory for grs data (default: ~/.local/share/grs)
type Defaults struct {
	ConfigPath string
	BaseDir    string
}

// GetDefaults resolves the default paths from the environment.
func GetDefaults() (Defaults, error) {
	configPath := os.Getenv("GRS_CONFIG_PATH")
	if configPath == "" {
		p, err := homePath(".config", "grs.toml")
		if err != nil {
			return Defaults{}, err
		}
		configPath = p
	}

	baseDir := os.Getenv("GRS_HOME")
	if baseDir == "" {
		p, err := homePath(".local", "share", "grs")
		if err != nil {
			return Defaults{}, err
		}
		baseDir = p
	}

	return Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
}

func homePath(parts ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{home}, parts...)...), nil
}
