// Package config loads, normalizes, and validates vrdl configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VRDL_BASE_URI and VRDL_PASSWORD. The Config type centralizes every knob the
// daemon and CLI need so download directories, tool paths, and endpoint
// credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
