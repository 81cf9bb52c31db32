//go:build sqlite_vec && !purego

package storage

// This file is compiled when building with CGO and the sqlite_vec tag.
// Vector scans run inside SQLite through vec_distance_cosine.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// mattn/go-sqlite3 needs the fts5 tag for the chunks_fts keyword index.
// The sqlite-vec extension must be loadable by the driver at runtime.
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
