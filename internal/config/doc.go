// Package config loads, normalizes, and validates storypack configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours the STORYPACK_CATALOG_URL environment fallback.
// Always obtain settings through this package so downstream code receives
// absolute paths and clear validation errors.
package config
