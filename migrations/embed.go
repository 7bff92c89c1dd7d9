// Package migrations embeds the goose SQL migrations for the follow-up engine.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
