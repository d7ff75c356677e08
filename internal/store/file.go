package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/impbridge/impbridge/internal/profile"
)

// Profile file names inside the backend directory.
const (
	ClientFile = "ClientProfile.json"
	RouteFile  = "RouteProfile.json"
)

// fileStore reads profiles from two JSON files in a directory. Files are
// re-read on every call, so an edited file takes effect at the next
// refresh without restarting.
type fileStore struct {
	dir string
}

func newFileStore(dir string) (*fileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("profile directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profile path %s is not a directory", dir)
	}
	return &fileStore{dir: dir}, nil
}

// Dir returns the backing directory, for change watching.
func (s *fileStore) Dir() string { return s.dir }

func (s *fileStore) Clients(ctx context.Context) ([]profile.Client, error) {
	var clients []profile.Client
	if err := s.read(ClientFile, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *fileStore) Routes(ctx context.Context, dir profile.Direction) ([]profile.Route, error) {
	var all []profile.Route
	if err := s.read(RouteFile, &all); err != nil {
		return nil, err
	}
	routes := make([]profile.Route, 0, len(all))
	for _, r := range all {
		if r.Direction() == dir {
			routes = append(routes, r)
		}
	}
	return routes, nil
}

func (s *fileStore) Close() error { return nil }

// read decodes one profile file. A missing file means an empty profile
// set, not an error.
func (s *fileStore) read(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}
