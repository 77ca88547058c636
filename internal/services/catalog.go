package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"retail-dashboard/internal/loader"
	"retail-dashboard/internal/models"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/pipeline"
)

var ErrNoDataset = errors.New("dataset unavailable")

// Source produces the derived dataset for one data source. Identify must
// be cheap; Load does the actual read.
type Source interface {
	Identify() (models.SourceID, error)
	Load(ctx context.Context) (*models.Dataset, error)
}

// FileSource reads an .xlsx or .csv file from disk.
type FileSource struct {
	Path  string
	Sheet string
}

func (s *FileSource) Identify() (models.SourceID, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return models.SourceID{}, fmt.Errorf("stat source: %w", err)
	}
	return models.SourceID{Path: s.Path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *FileSource) Load(ctx context.Context) (*models.Dataset, error) {
	id, err := s.Identify()
	if err != nil {
		return nil, err
	}
	table, err := loader.Load(ctx, s.Path, loader.Options{Sheet: s.Sheet})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.Path, err)
	}
	return pipeline.Derive(ctx, id, table)
}

// Catalog memoizes the derived dataset per source identity. Concurrent
// callers share a single load. A changed source replaces the cache only
// once it has loaded; Invalidate drops it outright.
type Catalog struct {
	source Source
	logger *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	current *models.Dataset

	loads     atomic.Int64
	hits      atomic.Int64
	lastError atomic.Value // string
}

func NewCatalog(source Source, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{source: source, logger: logger}
}

// SetDataset installs ds as the cached dataset, bypassing the source.
func (c *Catalog) SetDataset(ds *models.Dataset) {
	c.mu.Lock()
	c.current = ds
	c.mu.Unlock()
}

func (c *Catalog) cached() *models.Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Dataset returns the cached dataset, loading it on first use or after an
// invalidation.
func (c *Catalog) Dataset(ctx context.Context) (*models.Dataset, error) {
	if ds := c.cached(); ds != nil {
		c.hits.Add(1)
		observability.RecordCacheHit()
		return ds, nil
	}
	if c.source == nil {
		return nil, ErrNoDataset
	}

	id, err := c.source.Identify()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDataset, err)
	}

	// The load outlives the first caller's cancellation since other
	// callers may be waiting on it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(id.String(), func() (any, error) {
		if ds := c.cached(); ds != nil && ds.Source().Equal(id) {
			return ds, nil
		}
		ds, err := c.load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.current = ds
		c.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDataset, err)
	}
	if shared {
		c.logger.Debug("dataset load shared", "source", id.String())
	}
	return v.(*models.Dataset), nil
}

func (c *Catalog) load(ctx context.Context) (*models.Dataset, error) {
	_, span := observability.StartStage(ctx, "load")
	start := time.Now()
	ds, err := c.source.Load(ctx)
	duration := time.Since(start)
	span.Finish()

	if err != nil {
		span.SetError(err)
		observability.RecordDatasetLoad(err, 0)
		c.lastError.Store(err.Error())
		c.logger.Error("dataset load failed", "error", err)
		return nil, err
	}

	observability.RecordDatasetLoad(nil, ds.Len())
	c.loads.Add(1)
	c.lastError.Store("")

	if missing := pipeline.MissingCount(ds, models.FieldPrice); missing > 0 {
		c.logger.Warn("rows with unparseable price kept as missing",
			"rows", missing,
			"source", ds.Source().Path,
		)
	}
	c.logger.Info("dataset loaded",
		"source", ds.Source().Path,
		"records", ds.Len(),
		"duration", duration,
	)
	return ds, nil
}

// Invalidate drops the cached dataset; the next Dataset call reloads.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	observability.RecordInvalidation()
	c.logger.Info("dataset cache invalidated")
}

// Reload loads the source now and swaps it in only on success, so a
// failed reload keeps serving the previous dataset.
func (c *Catalog) Reload(ctx context.Context) (*models.Dataset, error) {
	if c.source == nil {
		return nil, ErrNoDataset
	}
	ds, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.SetDataset(ds)
	return ds, nil
}

// Refresh reloads the source when its identity differs from the cached
// dataset and swaps the result in only on success. A source that is
// missing or fails to load leaves the previous dataset in place. It
// reports whether a new dataset was installed.
func (c *Catalog) Refresh(ctx context.Context) bool {
	ds := c.cached()
	if ds == nil || c.source == nil {
		return false
	}

	id, err := c.source.Identify()
	if err != nil {
		c.logger.Warn("source no longer readable, keeping previous dataset", "error", err)
		return false
	}
	if ds.Source().Equal(id) {
		return false
	}
	c.logger.Info("source changed", "previous", ds.Source().String(), "current", id.String())

	next, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("keeping previous dataset", "source", ds.Source().String())
		return false
	}
	c.SetDataset(next)
	observability.RecordInvalidation()
	return true
}

func (c *Catalog) Stats() map[string]any {
	stats := map[string]any{
		"loads":      c.loads.Load(),
		"cache_hits": c.hits.Load(),
		"cached":     false,
	}
	if msg, _ := c.lastError.Load().(string); msg != "" {
		stats["last_error"] = msg
	}
	if ds := c.cached(); ds != nil {
		stats["cached"] = true
		stats["record_count"] = ds.Len()
		stats["source"] = ds.Source()
		stats["last_processed"] = ds.LoadedAt()
	}
	return stats
}
