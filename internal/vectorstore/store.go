// Package vectorstore provides per-project embedded vector indexes.
//
// Each project owns an isolated chromem-go persistent database under
// its own directory. Embedding generation is an external collaborator;
// documents arrive with precomputed vectors and queries are made by
// embedding.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Common errors.
var (
	ErrStoreClosed = errors.New("vector store closed")
)

// chunksCollection is the single collection holding a project's
// embedded code chunks.
const chunksCollection = "chunks"

// Document is an embedded code chunk to index.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result is a single similarity-search hit.
type Result struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Similarity float32           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store is an open handle to one project's vector index.
type Store struct {
	projectID  string
	path       string
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Add indexes documents with precomputed embeddings.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		}
	}

	// Concurrency of 1: embeddings are precomputed, nothing to parallelize.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Query runs a similarity search with a precomputed query embedding.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	// chromem requires nResults <= doc count.
	count := s.collection.Count()
	if count == 0 {
		return []Result{}, nil
	}
	if k > count {
		k = count
	}

	hits, err := s.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			ID:         hit.ID,
			Content:    hit.Content,
			Similarity: hit.Similarity,
			Metadata:   hit.Metadata,
		}
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.collection.Count()
}

// ProjectID returns the owning project.
func (s *Store) ProjectID() string { return s.projectID }

// Path returns the on-disk location of the index.
func (s *Store) Path() string { return s.path }

// Close detaches the store. Idempotent. chromem persists writes as
// they happen, so close only marks the handle unusable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.db = nil
	s.collection = nil
	s.logger.Debug("vector store closed", zap.String("project_id", s.projectID))
	return nil
}
