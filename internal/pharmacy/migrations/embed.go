// Package migrations holds the pharmacy schema, applied in file name order
// by database.DB.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
