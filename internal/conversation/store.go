package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchd/internal/resource"
)

// Store loads and persists conversation contexts as JSON files under
// a base directory, one file per project. It implements
// resource.Factory for the context cache.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

// NewStore creates a context store rooted at baseDir.
func NewStore(baseDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{baseDir: baseDir, logger: logger}
}

// Create deserializes the project's prior conversation state.
//
// A project with no saved context gets a fresh empty one; that is not
// an error. A corrupt file maps to resource.ErrLoadFailure. The
// handle's release persists the context before dropping it, so evicted
// histories are not lost.
func (s *Store) Create(ctx context.Context, projectID string) (*resource.Handle[*Context], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.load(projectID)
	if err != nil {
		return nil, err
	}

	release := func() error {
		return s.Persist(context.Background(), c)
	}
	return resource.NewHandle(projectID, c, c.sizeEstimate(), release), nil
}

// Persist saves the context atomically (write temp, rename). Callers
// treat failures as best-effort: log, never block a switch.
func (s *Store) Persist(ctx context.Context, c *Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return fmt.Errorf("creating context directory: %w", err)
	}

	data, err := json.MarshalIndent(c.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling context: %w", err)
	}

	path := s.path(c.ProjectID())
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("writing context: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming context: %w", err)
	}

	s.logger.Debug("context persisted",
		zap.String("project_id", c.ProjectID()),
		zap.Int("messages", c.Len()))
	return nil
}

// Delete removes a project's saved context. No-op if absent.
func (s *Store) Delete(projectID string) error {
	err := os.Remove(s.path(projectID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting context: %w", err)
	}
	return nil
}

// load reads the saved context, or returns an empty one.
func (s *Store) load(projectID string) (*Context, error) {
	data, err := os.ReadFile(s.path(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return NewContext(projectID), nil
		}
		return nil, fmt.Errorf("%w: reading context: %v", resource.ErrLoadFailure, err)
	}

	var pc persistedContext
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("%w: corrupt context file: %v", resource.ErrLoadFailure, err)
	}

	c := NewContext(projectID)
	c.messages = pc.Messages
	c.updatedAt = pc.UpdatedAt
	return c, nil
}

// path returns the context file for a project.
func (s *Store) path(projectID string) string {
	return filepath.Join(s.baseDir, projectID+".json")
}
