// Package migrations embeds the billing schema for goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
