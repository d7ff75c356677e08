// Package store loads client and route profiles from the configured
// backend: a directory of JSON files, a MySQL database or a Postgres
// database.
package store

import (
	"context"
	"fmt"

	"github.com/impbridge/impbridge/internal/profile"
)

// Store is a read-only source of profiles. Implementations return fresh
// slices on every call; callers may mutate the results freely.
type Store interface {
	// Clients returns every client profile, enabled or not.
	Clients(ctx context.Context) ([]profile.Client, error)
	// Routes returns every route profile for the given direction.
	Routes(ctx context.Context, dir profile.Direction) ([]profile.Route, error)
	// Close releases backend resources.
	Close() error
}

// Kind selects the backend implementation.
type Kind string

const (
	KindNone     Kind = "none"
	KindFile     Kind = "file"
	KindMySQL    Kind = "mysql"
	KindPostgres Kind = "postgres"
)

// Open builds the Store for the given backend kind. connection is a
// directory path for the file backend and a DSN otherwise; the "none"
// kind ignores it and serves empty snapshots.
func Open(kind Kind, connection string) (Store, error) {
	switch kind {
	case KindNone:
		return nopStore{}, nil
	case KindFile:
		return newFileStore(connection)
	case KindMySQL, KindPostgres:
		return openSQL(kind, connection)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// nopStore backs the "none" kind: the bridge runs with no provisioned
// profiles until another backend is configured.
type nopStore struct{}

func (nopStore) Clients(ctx context.Context) ([]profile.Client, error) { return nil, nil }

func (nopStore) Routes(ctx context.Context, dir profile.Direction) ([]profile.Route, error) {
	return nil, nil
}

func (nopStore) Close() error { return nil }
