package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default overrides file name.
const DefaultConfigFile = ".fedigraph"

// ErrConfigNotFound is returned when the overrides file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .fedigraph overrides file.
// Everything in it is optional; flags win over file values.
type File struct {
	// Seeds overrides the discovery-service host list per software.
	// Mostly useful for partial re-crawls and for testing against a
	// handful of known instances.
	Seeds map[string][]string `yaml:"seeds,omitempty"`

	// Directory overrides the node discovery service endpoint.
	Directory string `yaml:"directory,omitempty"`

	// UserAgent overrides the crawler's User-Agent header. Operators
	// vetting the crawler via robots.txt match on this string.
	UserAgent string `yaml:"userAgent,omitempty"`
}

// LoadConfigFile loads overrides from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound; callers decide
// whether that matters based on whether the path was explicit.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	if cf.Seeds == nil {
		cf.Seeds = make(map[string][]string)
	}
	return &cf, nil
}

// FindConfigFile searches for the overrides file:
// an explicit path wins, then .fedigraph in the current directory, then
// .fedigraph in the user's home directory. Returns "" when nothing exists.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidate := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
