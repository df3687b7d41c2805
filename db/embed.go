// Package db embeds the storefront schema so binaries migrate without
// shipping loose SQL files.
package db

import _ "embed"

// Schema contains the DDL for every storefront table. Statements are
// idempotent (IF NOT EXISTS) so applying it repeatedly is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
