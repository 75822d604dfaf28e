package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the server runtime configuration. Flags override file values.
type Config struct {
	Listen             string   `yaml:"listen"`
	Database           string   `yaml:"database"`
	KeystorePassword   string   `yaml:"keystorePassword"`
	TruststorePassword string   `yaml:"truststorePassword"`
	UploadTTL          Duration `yaml:"uploadTTL"`
	UploadMaxEntries   int      `yaml:"uploadMaxEntries"`
}

// DefaultConfig returns the built-in defaults: in-memory database and the
// conventional "changeit" store password.
func DefaultConfig() *Config {
	return &Config{
		Listen:             ":8547",
		Database:           "",
		KeystorePassword:   "changeit",
		TruststorePassword: "changeit",
		UploadTTL:          Duration(30 * time.Minute),
		UploadMaxEntries:   128,
	}
}

// LoadConfig loads configuration from the given YAML file over the
// defaults. An empty path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
