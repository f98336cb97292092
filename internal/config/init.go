package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfigFile is looked up in the working directory when neither a flag
// nor a user config names one.
const LocalConfigFile = "blockhawk.yaml"

// GetUserConfigPath returns the path to the user's config file
// following XDG Base Directory specification
func GetUserConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "blockhawk", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return LocalConfigFile
	}

	return filepath.Join(homeDir, ".config", "blockhawk", "config.yaml")
}

// InitializeUserConfig writes the default configuration to the user config
// path unless a file is already there. It returns the path either way.
func InitializeUserConfig() (string, error) {
	return writeDefault(GetUserConfigPath())
}

func writeDefault(configPath string) (string, error) {
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to marshal default config: %w", err)
	}

	header := `# BlockHawk configuration
# Auto-generated default configuration.
#
# Precedence:
#   1. Command-line flags (highest priority)
#   2. This config file
#   3. Built-in defaults (lowest priority)
#
# timeout, ping.timeout and ip_check.timeout are in seconds.

`

	if err := os.WriteFile(configPath, []byte(header+string(data)), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, nil
}

// GetConfigPath determines the config file path to use.
// Priority: 1. CLI flag, 2. user config, 3. LocalConfigFile. The boolean is
// true when no config file exists yet and one could be initialized.
func GetConfigPath(cliPath string) (string, bool) {
	if cliPath != "" {
		return cliPath, false
	}

	userConfig := GetUserConfigPath()
	if _, err := os.Stat(userConfig); err == nil {
		return userConfig, false
	}

	_, err := os.Stat(LocalConfigFile)
	return LocalConfigFile, os.IsNotExist(err)
}
