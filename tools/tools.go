//go:build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run` or installed via `go install` and are not imported by the module.
package tools

// Development tools:
//
// mockgen - generates internal/mocks from internal/ports
//   Run: go generate ./internal/mocks/...
//   Version: go.uber.org/mock v0.6.0 (matches go.mod)
//
// Air - Live reload for Go apps
//   Install: go install github.com/air-verse/air@v1.63.0
//   Docs: https://github.com/air-verse/air
