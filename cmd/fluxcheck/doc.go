// Package main hosts the fluxcheck CLI entrypoint and command graph.
//
// The Cobra-based command tree reads tracks out of IPF images through the
// decoding helper, verifies flux captures against them, synthesizes reference
// captures, and browses the verification history. It centralizes
// configuration resolution and structured logging setup so subcommands can
// focus on output instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
