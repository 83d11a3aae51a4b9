// Package migrations embeds SQL migration files into the binary, so
// deployments run schema migrations without loose files on disk.
package migrations

import (
	"embed"

	"github.com/nordvolt/wallbox-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
