package db

import "embed"

// MigrationFS embeds the schema for users, organizations, memberships, role
// assignments, policies and audit logs.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
