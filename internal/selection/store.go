// Package selection persists the current-organization selection between sessions.
//
// Exactly one value is stored per scope: the id of the organization the user last
// selected, under the fixed key Key. Stores only hold the value; whether it is still
// valid is decided by the organization context against the live membership list.
package selection

import (
	"context"
	"fmt"
)

// Key is the fixed key the current organization id is stored under.
const Key = "currentOrganizationId"

// Store reads and writes the persisted current organization id.
type Store interface {
	// Load returns the stored organization id, or "" when none is stored.
	Load(ctx context.Context, userID string) (string, error)
	// Save overwrites the stored organization id.
	Save(ctx context.Context, userID, orgID string) error
}

// Kind names a Store implementation in configuration.
type Kind string

const (
	KindFile   Kind = "file"
	KindRedis  Kind = "redis"
	KindMemory Kind = "memory"
)

// ParseKind returns the store kind for s; empty means KindFile.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindFile:
		return KindFile, nil
	case KindRedis:
		return KindRedis, nil
	case KindMemory:
		return KindMemory, nil
	default:
		return "", fmt.Errorf("selection store must be file, redis or memory, got %q", s)
	}
}
