package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultConcurrency caps simultaneous network operations across the
	// whole run. Fediverse instances are numerous but individually small;
	// a few hundred in-flight requests keeps the run fast without any
	// single host seeing more than a couple of them.
	DefaultConcurrency = 100

	// DefaultTimeout is the per-request timeout. Small single-operator
	// instances routinely take tens of seconds to answer API calls.
	DefaultTimeout = 180 * time.Second

	// DefaultTopUsers is how many of a host's most-followed users a
	// user-interaction crawl explores.
	DefaultTopUsers = 10

	// DefaultActivityScope is the community activity window used by
	// community crawls.
	DefaultActivityScope = "TopMonth"

	// DefaultMinActiveUsers is the minimum number of active users a
	// community must have in the activity window to be crawled.
	DefaultMinActiveUsers = 5

	// AppName is the application name used for XDG directory paths.
	AppName = "fedigraph"

	// DefaultDirectoryEndpoint is the node discovery service queried for
	// the initial host list.
	DefaultDirectoryEndpoint = "https://api.fediverse.observer"
)

// ActivityScopes are the accepted community activity windows.
func ActivityScopes() []string {
	return []string{"TopDay", "TopWeek", "TopMonth"}
}

// Config holds all options of one crawl invocation.
//
// Design decision: One flat struct populated from CLI flags and passed down
// by dependency injection, following the same layout the rest of the
// codebase uses for options. Nesting per concern would add indirection
// without making any call site simpler.
type Config struct {
	// Softwares are the federated software names to crawl.
	Softwares []string

	// Concurrency is the process-wide cap on in-flight network operations.
	Concurrency int64

	// Timeout is the per-request timeout for API and robots.txt fetches.
	Timeout time.Duration

	// OutputDir is the directory under which each run creates its
	// <software>_<subject>_<timestamp> result directory.
	OutputDir string

	// DirectoryEndpoint is the discovery service for seed host lists.
	DirectoryEndpoint string

	// Verbose enables Debug output on stderr. The run log file always
	// receives Debug output regardless.
	Verbose bool

	// TopUsers bounds the number of users explored per host during
	// user-interaction crawls.
	TopUsers int

	// ActivityScope is the community activity window (TopDay, TopWeek,
	// TopMonth) for community crawls.
	ActivityScope string

	// MinActiveUsers is the minimum active user count for a community to
	// be crawled, evaluated against the ActivityScope window.
	MinActiveUsers int

	// NoArchive disables the sqlite run archive.
	NoArchive bool

	// ArchiveDir is where the sqlite archive lives. Empty means the XDG
	// data directory.
	ArchiveDir string

	// ConfigFilePath is an explicit overrides file path. Empty means
	// search the standard locations.
	ConfigFilePath string

	// Overrides holds values loaded from the overrides file.
	Overrides *File
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Concurrency:       DefaultConcurrency,
		Timeout:           DefaultTimeout,
		OutputDir:         ".",
		DirectoryEndpoint: DefaultDirectoryEndpoint,
		TopUsers:          DefaultTopUsers,
		ActivityScope:     DefaultActivityScope,
		MinActiveUsers:    DefaultMinActiveUsers,
		Overrides:         &File{},
	}
}

// XDGDataDir returns the XDG data directory for fedigraph.
// On Linux: ~/.local/share/fedigraph
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// EffectiveArchiveDir returns the archive directory, falling back to the
// XDG data directory when unset.
func (c *Config) EffectiveArchiveDir() string {
	if c.ArchiveDir != "" {
		return c.ArchiveDir
	}
	return XDGDataDir()
}

// Seeds returns the overriding seed list for a software, or nil when the
// discovery service should be queried.
func (c *Config) Seeds(software string) []string {
	if c.Overrides == nil {
		return nil
	}
	return c.Overrides.Seeds[software]
}

// Validate checks the configuration and returns the first problem found.
// It is called once after CLI parsing, before any run starts.
func (c *Config) Validate() error {
	if len(c.Softwares) == 0 {
		return ErrNoSoftware
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.TopUsers <= 0 {
		return ErrInvalidTopUsers
	}
	if c.MinActiveUsers < 0 {
		return ErrInvalidMinActiveUsers
	}

	validScope := false
	for _, scope := range ActivityScopes() {
		if c.ActivityScope == scope {
			validScope = true
			break
		}
	}
	if !validScope {
		return ErrInvalidActivityScope
	}
	return nil
}
