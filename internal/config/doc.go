// Package config loads node configuration from YAML, applies CACHETIER_*
// environment overrides, and validates the result.
package config
