//go:build sqlite_cgo

package sqlite

// CGO build backed by the reference SQLite C library.
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by mattn/go-sqlite3.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"

	// connPragmas is appended to the DSN; the driver runs it on every new connection.
	connPragmas = "_foreign_keys=on&_busy_timeout=5000"
)
