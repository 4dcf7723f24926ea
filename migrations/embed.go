// Package migrations embeds the qp-server SQL schema for goose.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
