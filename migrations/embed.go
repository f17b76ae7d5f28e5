// Package migrations embeds the console schema.
package migrations

import "embed"

// FS holds the ordered SQL migrations.
//
//go:embed *.sql
var FS embed.FS
