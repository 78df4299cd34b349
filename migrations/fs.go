// Package migrations embeds the SQL schema for durable session storage.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
