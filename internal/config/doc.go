// Package config loads, normalizes, and validates fluxcheck configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the FLUXCHECK_CAPS_HELPER
// environment override for the helper binary. The Config type centralizes the
// knobs the CLI needs: where history and logs live, how the helper is invoked,
// and the tolerances used when assembling and verifying tracks.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
