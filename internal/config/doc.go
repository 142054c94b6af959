// Package config holds all configuration for a crawl run: defaults,
// CLI-populated options, validation, the optional YAML overrides file, and
// XDG directory resolution for the run archive.
//
// Configuration flows through the application by dependency injection; no
// package reads global state.
package config
