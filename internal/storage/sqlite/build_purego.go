//go:build !sqlite_cgo

package sqlite

// Default build: pure Go SQLite, no C toolchain required.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"

	// connPragmas is appended to the DSN; the driver runs it on every new connection.
	connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)
