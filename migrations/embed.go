package migrations

import (
	"embed"
	"io/fs"
)

// Files exposes embedded SQL migration files, one directory per dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS

// Dialect returns the migrations of one dialect ("postgres" or "sqlite").
func Dialect(name string) (fs.FS, error) {
	return fs.Sub(Files, name)
}
