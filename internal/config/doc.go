// Package config loads, normalizes, and validates camsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CAMSYNC_REFERENCE_CAMERA. The Config type replaces the hardcoded dataset
// directories and thresholds of ad hoc sync scripts with one explicit value
// that is passed into each stage at construction.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
