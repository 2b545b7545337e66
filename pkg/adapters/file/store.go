package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/routeflow/pkg/domain"
)

// Store implements ports.RouteStore on the local filesystem, one JSON file per route.
type Store struct {
	BasePath string
}

// New creates a Store rooted at basePath, ".routeflow/routes" when empty.
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".routeflow", "routes")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(routeID string) (string, error) {
	if routeID == "" {
		return "", fmt.Errorf("routeID cannot be empty")
	}
	if strings.ContainsAny(routeID, `/\`) || routeID == "." || routeID == ".." {
		return "", fmt.Errorf("invalid routeID %q", routeID)
	}
	return filepath.Join(s.BasePath, routeID+".json"), nil
}

// Save writes the route atomically: temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, routeID string, route *domain.Route) error {
	destPath, err := s.path(routeID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure route directory: %w", err)
	}

	data, err := json.MarshalIndent(route, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal route: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+routeID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to route file: %w", err)
	}
	return nil
}

// Load reads a route file.
func (s *Store) Load(ctx context.Context, routeID string) (*domain.Route, error) {
	filePath, err := s.path(routeID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrRouteNotFound
		}
		return nil, fmt.Errorf("failed to read route file: %w", err)
	}

	var route domain.Route
	if err := json.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("failed to unmarshal route: %w", err)
	}
	return &route, nil
}

// Delete removes the route file. Deleting a missing route is not an error.
func (s *Store) Delete(ctx context.Context, routeID string) error {
	filePath, err := s.path(routeID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete route file: %w", err)
	}
	return nil
}

// List returns the IDs of all stored routes.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	routes := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		routes = append(routes, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(routes)
	return routes, nil
}
