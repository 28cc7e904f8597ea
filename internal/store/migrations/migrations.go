// Package migrations embeds the schema for teamchat.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
