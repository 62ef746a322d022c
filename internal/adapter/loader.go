package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchd/internal/resource"
)

// Runtime is the inference-side collaborator that maps adapter weights
// into model memory. Implementations live outside this module.
type Runtime interface {
	// Load maps the weights file into inference memory and returns an
	// opaque runtime reference plus the resident size.
	Load(ctx context.Context, weightsPath string) (ref any, sizeBytes int64, err error)

	// Unload frees inference-side memory. Must be idempotent.
	Unload(ref any) error
}

// Loader materializes adapter handles from on-disk artifacts. It
// implements resource.Factory for the adapter cache.
type Loader struct {
	baseDir   string // per-project artifact directories live here
	baseModel string
	runtime   Runtime // optional; nil means artifacts are validated only
	logger    *zap.Logger
}

// NewLoader creates an adapter loader rooted at baseDir.
// runtime may be nil when no inference runtime is attached (the loader
// then only validates artifacts and tracks their size).
func NewLoader(baseDir, baseModel string, runtime Runtime, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		baseDir:   baseDir,
		baseModel: baseModel,
		runtime:   runtime,
		logger:    logger,
	}
}

// Create loads the adapter artifact for projectID.
//
// A missing artifact is not an error: the project gets a zero-cost
// base-model handle, per the degraded-functionality contract. Corrupt
// or incompatible artifacts map to resource.ErrLoadFailure.
func (l *Loader) Create(ctx context.Context, projectID string) (*resource.Handle[*Adapter], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(l.baseDir, projectID)
	manifest, err := l.readManifest(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug("no adapter artifact, using base model",
				zap.String("project_id", projectID))
			a := &Adapter{
				ProjectID: projectID,
				Name:      "base",
				BaseModel: l.baseModel,
				Base:      true,
				LoadedAt:  time.Now(),
			}
			return resource.NewHandle(projectID, a, 0, nil), nil
		}
		return nil, fmt.Errorf("%w: %v", resource.ErrLoadFailure, err)
	}

	if manifest.FormatVersion != supportedFormatVersion {
		return nil, fmt.Errorf("%w: unsupported adapter format version %d",
			resource.ErrLoadFailure, manifest.FormatVersion)
	}

	weightsPath := filepath.Join(dir, manifest.WeightsFile)
	info, err := os.Stat(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: weights file: %v", resource.ErrLoadFailure, err)
	}
	if manifest.SizeBytes > 0 && info.Size() != manifest.SizeBytes {
		return nil, fmt.Errorf("%w: weights size mismatch: manifest %d, disk %d",
			resource.ErrLoadFailure, manifest.SizeBytes, info.Size())
	}

	sizeBytes := info.Size()
	var runtimeRef any
	if l.runtime != nil {
		runtimeRef, sizeBytes, err = l.runtime.Load(ctx, weightsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: runtime load: %v", resource.ErrLoadFailure, err)
		}
	}

	a := &Adapter{
		ProjectID: projectID,
		Name:      manifest.Name,
		BaseModel: manifest.BaseModel,
		Path:      dir,
		LoadedAt:  time.Now(),
	}

	release := func() error {
		if l.runtime == nil || runtimeRef == nil {
			return nil
		}
		return l.runtime.Unload(runtimeRef)
	}

	l.logger.Debug("adapter loaded",
		zap.String("project_id", projectID),
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", sizeBytes))

	return resource.NewHandle(projectID, a, sizeBytes, release), nil
}

// readManifest reads and parses the artifact manifest.
func (l *Loader) readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.WeightsFile == "" {
		return nil, fmt.Errorf("manifest missing weights_file")
	}
	if m.WeightsFile != filepath.Base(m.WeightsFile) {
		return nil, fmt.Errorf("manifest weights_file must be a bare file name")
	}
	return &m, nil
}
