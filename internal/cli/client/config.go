package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	envServerURL = "KB_SERVER_URL"
	envAPIToken  = "KB_API_TOKEN"

	defaultServerURL = "http://localhost:8080"
)

// GlobalConfig is the kbgated connection saved by "kbctl remote login".
type GlobalConfig struct {
	ServerURL string `json:"server_url"`
	APIToken  string `json:"api_token,omitempty"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "kbctl"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

func GetConfigDir() (string, error) {
	return getConfigDirFunc()
}

func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig reads the saved connection. A missing file yields a nil config and no error.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveGlobalConfig writes the config with 0600 permissions, since it holds the API token.
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func DeleteGlobalConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.Remove(configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}

	return nil
}

// CredentialSource tells where the server URL came from.
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceDefault      CredentialSource = "default"
)

// Connection is a resolved server URL and token.
type Connection struct {
	Source    CredentialSource
	ServerURL string
	APIToken  string
}

// ResolveConnection applies the cascade flag, then environment, then global config,
// then the default URL. The token follows the same order independently.
func ResolveConnection(flagURL, flagToken string) (Connection, error) {
	conn := Connection{Source: SourceDefault, ServerURL: flagURL, APIToken: flagToken}
	if flagURL != "" {
		conn.Source = SourceFlag
	}

	if conn.ServerURL == "" {
		if v := os.Getenv(envServerURL); v != "" {
			conn.ServerURL = v
			conn.Source = SourceEnv
		}
	}
	if conn.APIToken == "" {
		conn.APIToken = os.Getenv(envAPIToken)
	}

	if conn.ServerURL == "" || conn.APIToken == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return Connection{}, err
		}
		if global != nil {
			if conn.ServerURL == "" && global.ServerURL != "" {
				conn.ServerURL = global.ServerURL
				conn.Source = SourceGlobalConfig
			}
			if conn.APIToken == "" {
				conn.APIToken = global.APIToken
			}
		}
	}

	if conn.ServerURL == "" {
		conn.ServerURL = defaultServerURL
	}
	return conn, nil
}
