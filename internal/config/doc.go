// Package config loads castbot's configuration from a JSON or YAML file,
// overlays environment variables (CASTBOT_*, optionally from .env), validates
// it and hot-reloads it when the file changes.
//
// Unknown keys are rejected so typos surface at load time instead of being
// silently ignored.
package config
