// Package migrations embeds the bridge's SQL schema into the binary so
// cold start needs no files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

// Source returns the embedded migrations as a database.Source.
func Source() database.Source {
	return database.Source{FS: files, Dir: "."}
}
