// Package integration provides cross-package integration tests for rise.
// These tests drive the full hierarchical graph with scripted models and
// real teams, tools, learning managers and stores.
//
// Build tag: integration
// Run with: go test -tags integration ./internal/integration/...
package integration
