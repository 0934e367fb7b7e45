// Package migrations embeds the SQL schema files so the migration
// runner works regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem, all .sql files in this
// directory in lexical order.
//
//go:embed *.sql
var FS embed.FS
