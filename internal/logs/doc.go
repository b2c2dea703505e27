// Package logs reads the fluxcheck log file for `fluxcheck logs`: the last N
// lines, anything appended after a byte offset, and a polling follow mode that
// stops when its context ends.
package logs
