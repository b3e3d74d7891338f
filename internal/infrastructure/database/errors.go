package database

import "errors"

// Sentinel errors for the database package.
var (
	// ErrNoPath is returned when Open is called without a database path.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationNotFound is returned when an applied migration has no file.
	ErrMigrationNotFound = errors.New("database: migration not found in source")

	// ErrNoDownSQL is returned when rolling back a migration without a .down.sql file.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
