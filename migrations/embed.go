// Package migrations embeds the SQL schema migrations into the binary so the
// store can be created without any files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/mqttdesk/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// Source returns the embedded migrations.
func Source() database.MigrationSource {
	return database.MigrationSource{FS: migrationsFS, Dir: "."}
}
