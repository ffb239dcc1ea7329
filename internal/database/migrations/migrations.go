// Package migrations embeds the order sink schema.
package migrations

import "embed"

//go:embed *.sql
var MigrationsFS embed.FS
