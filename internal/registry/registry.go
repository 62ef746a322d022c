// Package registry manages project registration with UUID tracking.
//
// A project is a registered codebase with its own adapter artifact,
// vector index, and conversation history. The registry maps
// human-readable names to stable UUID project IDs (the cache key used
// across all three resource caches) and resolves the per-project
// on-disk layout:
//
//	<base>/
//	├── registry.json
//	├── adapters/{project-id}/
//	├── vectorstore/{project-id}/
//	└── contexts/{project-id}.json
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors for registry operations.
var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrInvalidName       = errors.New("invalid name: must be alphanumeric with hyphens/underscores")
	ErrPathTraversal     = errors.New("path traversal detected")
	ErrRegistryCorrupted = errors.New("registry file corrupted")
)

// namePattern validates project names.
// Allows alphanumeric, hyphens, underscores, and dots.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Project is a registered codebase.
type Project struct {
	// ID is the stable opaque identifier used as the cache key.
	ID string `json:"id"`

	// Name is the human-readable project name, unique in the registry.
	Name string `json:"name"`

	// WorkspacePath is the codebase location on disk.
	WorkspacePath string `json:"workspace_path"`

	CreatedAt time.Time `json:"created_at"`
}

// registryData is the persisted registry structure.
type registryData struct {
	Version  int                 `json:"version"`
	Projects map[string]*Project `json:"projects"` // key: project name
}

// Registry manages project registration and resource path resolution.
type Registry struct {
	mu       sync.RWMutex
	basePath string
	filePath string
	data     *registryData
	byID     map[string]*Project
}

// New creates a registry at the specified base path. An empty base
// path defaults to ~/.config/switchd.
func New(basePath string) (*Registry, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		basePath = filepath.Join(home, ".config", "switchd")
	}

	r := &Registry{
		basePath: basePath,
		filePath: filepath.Join(basePath, "registry.json"),
		data: &registryData{
			Version:  1,
			Projects: make(map[string]*Project),
		},
		byID: make(map[string]*Project),
	}

	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	if err := r.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	return r, nil
}

// ValidateName checks if a name is safe for filesystem paths.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name too long (max 255)", ErrInvalidName)
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}

	if name == "." || name == ".." {
		return ErrPathTraversal
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == '\x00' {
			return ErrPathTraversal
		}
	}
	if filepath.Clean(name) != name {
		return ErrPathTraversal
	}

	return nil
}

// Register registers a new project or returns the existing entry for
// the name. Idempotent by name.
func (r *Registry) Register(name, workspacePath string) (*Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.data.Projects[name]; ok {
		return p, nil
	}

	p := &Project{
		ID:            uuid.New().String(),
		Name:          name,
		WorkspacePath: workspacePath,
		CreatedAt:     time.Now().UTC(),
	}
	r.data.Projects[name] = p
	r.byID[p.ID] = p

	if err := r.save(); err != nil {
		delete(r.data.Projects, name)
		delete(r.byID, p.ID)
		return nil, err
	}

	return p, nil
}

// Get returns a project by ID.
func (r *Registry) Get(id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, nil
}

// GetByName returns a project by its registered name.
func (r *Registry) GetByName(name string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data.Projects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return p, nil
}

// List returns all registered projects.
func (r *Registry) List() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]*Project, 0, len(r.data.Projects))
	for _, p := range r.data.Projects {
		projects = append(projects, p)
	}
	return projects
}

// Delete removes a project by ID. The caller is responsible for
// invalidating the project's cached resources afterwards.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	delete(r.data.Projects, p.Name)
	delete(r.byID, id)

	return r.save()
}

// AdapterDir returns the adapter artifact directory for a project.
func (r *Registry) AdapterDir(projectID string) string {
	return filepath.Join(r.basePath, "adapters", projectID)
}

// AdaptersBase returns the base directory for adapter artifacts.
func (r *Registry) AdaptersBase() string {
	return filepath.Join(r.basePath, "adapters")
}

// VectorStoreBase returns the base directory for vector indexes.
func (r *Registry) VectorStoreBase() string {
	return filepath.Join(r.basePath, "vectorstore")
}

// ContextsBase returns the base directory for conversation contexts.
func (r *Registry) ContextsBase() string {
	return filepath.Join(r.basePath, "contexts")
}

// BasePath returns the registry base path.
func (r *Registry) BasePath() string {
	return r.basePath
}

// load reads the registry from disk.
func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	var rd registryData
	if err := json.Unmarshal(data, &rd); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryCorrupted, err)
	}
	if rd.Projects == nil {
		rd.Projects = make(map[string]*Project)
	}

	r.data = &rd
	r.byID = make(map[string]*Project, len(rd.Projects))
	for _, p := range rd.Projects {
		r.byID[p.ID] = p
	}
	return nil
}

// save writes the registry to disk atomically.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmpPath := r.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmpPath, r.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename registry: %w", err)
	}

	return nil
}
