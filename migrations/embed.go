package migrations

import "embed"

// Files exposes the client storage schema migrations embedded into the binary.
//
//go:embed *.sql
var Files embed.FS
