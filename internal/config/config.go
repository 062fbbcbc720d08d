// Package config handles solvedesk configuration loading.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

// ErrConfigurationMissing indicates that no Firestore credentials were
// found in either the inline config block or a local credential file.
// The history store stays disabled for the process; solution generation
// is unaffected.
var ErrConfigurationMissing = errors.New("firestore credentials not configured")

// DefaultCredentialsFile is the local service-account file checked when
// no inline credentials are configured.
const DefaultCredentialsFile = "firebase_config.json"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/solvedesk/config.yaml, /etc/solvedesk/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "solvedesk", "config.yaml"))
	}

	paths = append(paths, "/etc/solvedesk/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all solvedesk configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Firestore FirestoreConfig `yaml:"firestore"`
	History   HistoryConfig   `yaml:"history"`
	Session   SessionConfig   `yaml:"session"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8080
}

// GeminiConfig defines the generation service settings. An empty APIKey
// leaves the generator unconfigured: the app still serves pages and the
// sidebar reports the generator as unavailable.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: gemini-1.5-flash
	// TimeoutSec bounds a single generation request (default 120).
	TimeoutSec int `yaml:"timeout_sec"`
}

// FirestoreConfig defines the history store's credentials and target
// collection. Credentials come from one of two sources: an inline
// service-account JSON block in this config (deployment secrets), or a
// local credential file (local development). The inline block wins when
// both are present.
type FirestoreConfig struct {
	ProjectID string `yaml:"project_id"` // Optional; extracted from credentials when empty
	// CredentialsJSON is a full service-account key pasted into the
	// config file (typically via an environment variable expansion).
	CredentialsJSON string `yaml:"credentials_json"`
	// CredentialsFile is a path to a service-account key file.
	// Defaults to firebase_config.json in the working directory.
	CredentialsFile string `yaml:"credentials_file"`
	Collection      string `yaml:"collection"` // Default: q_and_a
}

// HistoryConfig defines history read behavior.
type HistoryConfig struct {
	// CacheTTLSec is how long a fetched history list stays fresh before
	// the next read goes back to Firestore (default 300).
	CacheTTLSec int `yaml:"cache_ttl_sec"`
}

// SessionConfig defines browser-session lifecycle settings.
type SessionConfig struct {
	// IdleTimeoutSec is how long an inactive session's state is kept
	// before it is discarded (default 1800).
	IdleTimeoutSec int `yaml:"idle_timeout_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Gemini: GeminiConfig{
			Model:      "gemini-1.5-flash",
			TimeoutSec: 120,
		},
		Firestore: FirestoreConfig{
			CredentialsFile: DefaultCredentialsFile,
			Collection:      "q_and_a",
		},
		History: HistoryConfig{CacheTTLSec: 300},
		Session: SessionConfig{IdleTimeoutSec: 1800},
	}
}

// ResolveCredentials resolves Firestore credentials from the first
// present source: the inline credentials_json block, then the local
// credential file. Returns the client option to dial with and the
// project ID (from config, or extracted from the service-account key).
// Returns ErrConfigurationMissing when neither source exists.
func (f FirestoreConfig) ResolveCredentials() (option.ClientOption, string, error) {
	if f.CredentialsJSON != "" {
		projectID, err := projectIDFor(f, []byte(f.CredentialsJSON))
		if err != nil {
			return nil, "", err
		}
		return option.WithCredentialsJSON([]byte(f.CredentialsJSON)), projectID, nil
	}

	file := f.CredentialsFile
	if file == "" {
		file = DefaultCredentialsFile
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrConfigurationMissing
		}
		return nil, "", fmt.Errorf("read credentials file %s: %w", file, err)
	}

	projectID, err := projectIDFor(f, data)
	if err != nil {
		return nil, "", err
	}
	return option.WithCredentialsFile(file), projectID, nil
}

// projectIDFor returns the configured project ID, falling back to the
// project_id field of the service-account key.
func projectIDFor(f FirestoreConfig, creds []byte) (string, error) {
	if f.ProjectID != "" {
		return f.ProjectID, nil
	}

	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(creds, &key); err != nil {
		return "", fmt.Errorf("parse service-account key: %w", err)
	}
	if key.ProjectID == "" {
		return "", fmt.Errorf("service-account key has no project_id; set firestore.project_id")
	}
	return key.ProjectID, nil
}
