// Package migrations embeds the roster schema. The server applies it at
// startup when DATABASE_MIGRATE is set; integration tests apply it to their
// throwaway Postgres.
package migrations

import "embed"

// FS holds the golang-migrate NNNN_name.{up,down}.sql files.
//
//go:embed *.sql
var FS embed.FS
