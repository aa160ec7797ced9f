package webhooks

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the webhook schema. Postgres files live at the root of
// data/sql/migrations and sqlite alternatives under its sqlite directory.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}
