// Package repository is the persistence gateway: every operation loads the
// whole document, mutates it in memory and writes it back through a Store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"meetmap-backend/internal/metrics"
	"meetmap-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Store persists the document as a single unit.
type Store interface {
	// Load returns the stored document, or an empty one when nothing has
	// been written yet.
	Load(ctx context.Context) (*models.Document, error)
	// Save replaces the stored document atomically.
	Save(ctx context.Context, doc *models.Document) error
	Close() error
}

// ErrSkipSave may be returned by an Update callback that decided nothing
// needs to be written. Update then returns nil without saving.
var ErrSkipSave = errors.New("skip save")

// Gateway serializes every read-modify-write cycle on the document. All
// mutations go through Update, so two writers never interleave and no
// update is lost.
type Gateway struct {
	mu    sync.Mutex
	store Store
}

// NewGateway wraps a store.
func NewGateway(store Store) *Gateway {
	return &Gateway{store: store}
}

// Read loads the document with every collection present.
func (g *Gateway) Read(ctx context.Context) (*models.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readLocked(ctx)
}

// Write replaces the stored document.
func (g *Gateway) Write(ctx context.Context, doc *models.Document) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeLocked(ctx, doc)
}

// Update loads the document, applies fn and saves the result. Nothing is
// saved when fn returns an error, and that error is returned unchanged.
func (g *Gateway) Update(ctx context.Context, fn func(doc *models.Document) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, err := g.readLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		if errors.Is(err, ErrSkipSave) {
			return nil
		}
		return err
	}
	return g.writeLocked(ctx, doc)
}

// View loads the document and hands it to fn without saving.
func (g *Gateway) View(ctx context.Context, fn func(doc *models.Document) error) error {
	doc, err := g.Read(ctx)
	if err != nil {
		return err
	}
	return fn(doc)
}

// Close closes the underlying store.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Close()
}

func (g *Gateway) readLocked(ctx context.Context) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	doc, err := g.store.Load(ctx)
	metrics.DocumentOps.WithLabelValues("load").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load document")
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	doc.EnsureCollections()
	return doc, nil
}

func (g *Gateway) writeLocked(ctx context.Context, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.EnsureCollections()
	start := time.Now()
	err := g.store.Save(ctx, doc)
	metrics.DocumentOps.WithLabelValues("save").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Msg("Failed to save document")
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// decodeDocument parses a serialized document; empty input is an empty
// document.
func decodeDocument(data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return models.NewDocument(), nil
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	doc.EnsureCollections()
	return &doc, nil
}

func encodeDocument(doc *models.Document, indent bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}
