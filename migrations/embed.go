// Package migrations embeds the review database schema.
package migrations

import "embed"

// FS holds the SQL migration files, applied in name order at startup.
//
//go:embed *.sql
var FS embed.FS
