// Package services defines shared utilities consumed by the track loader and
// the adapters around external tools.
//
// Key responsibilities:
//   - Context helpers that stamp image paths, cylinder/head pairs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (external tool vs validation vs configuration) with errors.Is.
//
// Use these helpers when adding new adapters so error handling and
// observability stay uniform.
package services
