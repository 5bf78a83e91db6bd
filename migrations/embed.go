// Package migrations embeds the SQL schema applied by `congopay migrate`.
package migrations

import "embed"

// FS holds the numbered up/down migration files.
//
//go:embed *.sql
var FS embed.FS
