// Package testenv provides helpers shared by impactboard tests: a capturing slog handler
// with deterministic output, and credential minting.
package testenv
