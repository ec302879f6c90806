// Package config loads and validates pknx configuration from YAML with
// environment variable overrides (PKNX_SECTION_KEY).
package config
