// Package logging provides structured logging for the relay core.
//
// It wraps log/slog with configuration-driven format and level selection
// and stamps every record with the service name and version. Packages that
// need logging accept a small Logger interface locally so they can be
// tested with a no-op implementation; this package provides the production
// implementation.
package logging
