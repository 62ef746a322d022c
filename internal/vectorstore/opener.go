package vectorstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchd/internal/resource"
)

// Opener materializes vector store handles. It implements
// resource.Factory for the vector store cache.
type Opener struct {
	baseDir  string // per-project index directories live here
	compress bool
	logger   *zap.Logger
}

// NewOpener creates a vector store opener rooted at baseDir.
func NewOpener(baseDir string, compress bool, logger *zap.Logger) *Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{
		baseDir:  baseDir,
		compress: compress,
		logger:   logger,
	}
}

// Create opens the project's isolated index, creating an empty one on
// first use. The handle's memory cost is estimated from the on-disk
// footprint, which chromem keeps fully resident.
func (o *Opener) Create(ctx context.Context, projectID string) (*resource.Handle[*Store], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(o.baseDir, projectID)
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating index directory: %v", resource.ErrLoadFailure, err)
	}

	db, err := chromem.NewPersistentDB(path, o.compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening index: %v", resource.ErrLoadFailure, err)
	}

	collection, err := db.GetOrCreateCollection(chunksCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening collection: %v", resource.ErrLoadFailure, err)
	}

	store := &Store{
		projectID:  projectID,
		path:       path,
		db:         db,
		collection: collection,
		logger:     o.logger,
	}

	sizeBytes := dirSize(path)
	o.logger.Debug("vector store opened",
		zap.String("project_id", projectID),
		zap.String("path", path),
		zap.Int("documents", collection.Count()),
		zap.Int64("size_bytes", sizeBytes))

	return resource.NewHandle(projectID, store, sizeBytes, store.Close), nil
}

// dirSize sums file sizes under root. Best-effort; unreadable entries
// are skipped.
func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
