package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-dashboard/internal/loader"
	"retail-dashboard/internal/models"
)

const productsCSV = `name,section,Product Position,Promotion,Seasonal,price,Sales Volume
BASIC PUFFER JACKET,MAN,Aisle,Yes,No,19.99,2823
TUXEDO JACKET,MAN,End-cap,No,Yes,89.95,654
FLORAL DRESS,WOMAN,Aisle,Yes,Yes,39.95,1500
WOOL COAT,WOMAN,End-cap,No,No,129,410
BROKEN PRICE,WOMAN,Front of Store,No,No,n/a,300
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCSV(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "products.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// countingSource wraps a FileSource and counts loads.
type countingSource struct {
	FileSource
	loads atomic.Int32
	delay time.Duration
	fail  atomic.Bool
}

func (s *countingSource) Load(ctx context.Context) (*models.Dataset, error) {
	s.loads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail.Load() {
		return nil, errors.New("boom")
	}
	return s.FileSource.Load(ctx)
}

func TestFileSource_Load(t *testing.T) {
	path := writeCSV(t, t.TempDir(), productsCSV)
	src := &FileSource{Path: path}

	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, path, ds.Source().Path)

	id, err := src.Identify()
	require.NoError(t, err)
	assert.True(t, ds.Source().Equal(id))
}

func TestFileSource_MissingColumnIsFatal(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "name,section,price\nA,MAN,1\n")

	_, err := (&FileSource{Path: path}).Load(context.Background())
	require.ErrorIs(t, err, loader.ErrMissingColumns)
}

func TestCatalog_LoadsOncePerVersion(t *testing.T) {
	path := writeCSV(t, t.TempDir(), productsCSV)
	src := &countingSource{FileSource: FileSource{Path: path}, delay: 20 * time.Millisecond}
	catalog := NewCatalog(src, quietLogger())

	var wg sync.WaitGroup
	results := make([]*models.Dataset, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ds, err := catalog.Dataset(context.Background())
			assert.NoError(t, err)
			results[i] = ds
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.loads.Load())
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}

	_, err := catalog.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.loads.Load(), "repeated calls hit the cache")
	assert.EqualValues(t, 1, catalog.Stats()["loads"])
}

func TestCatalog_RefreshReloadsOnSourceChange(t *testing.T) {
	path := writeCSV(t, t.TempDir(), productsCSV)
	src := &countingSource{FileSource: FileSource{Path: path}}
	catalog := NewCatalog(src, quietLogger())

	first, err := catalog.Dataset(context.Background())
	require.NoError(t, err)

	assert.False(t, catalog.Refresh(context.Background()), "unchanged source keeps the cache")

	require.NoError(t, os.WriteFile(path, []byte(productsCSV+"NEW ROW,MAN,Aisle,No,No,5,5\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.True(t, catalog.Refresh(context.Background()))
	assert.Equal(t, int32(2), src.loads.Load())

	second, err := catalog.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, second.Len())
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), src.loads.Load(), "refresh already loaded the new version")
}

func TestCatalog_RefreshKeepsDatasetWhenReplacementIsBroken(t *testing.T) {
	path := writeCSV(t, t.TempDir(), productsCSV)
	catalog := NewCatalog(&FileSource{Path: path}, quietLogger())

	first, err := catalog.Dataset(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name,section,price\nA,MAN,1\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.False(t, catalog.Refresh(context.Background()))

	current, err := catalog.Dataset(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, current)
	assert.Contains(t, catalog.Stats()["last_error"], "missing required columns")

	require.NoError(t, os.Remove(path))
	assert.False(t, catalog.Refresh(context.Background()))
	current, err = catalog.Dataset(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, current, "a removed source keeps serving the last dataset")
}

func TestCatalog_FailedReloadKeepsPreviousDataset(t *testing.T) {
	path := writeCSV(t, t.TempDir(), productsCSV)
	src := &countingSource{FileSource: FileSource{Path: path}}
	catalog := NewCatalog(src, quietLogger())

	first, err := catalog.Dataset(context.Background())
	require.NoError(t, err)

	src.fail.Store(true)
	_, err = catalog.Reload(context.Background())
	require.Error(t, err)

	current, err := catalog.Dataset(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, current)
	assert.Equal(t, "boom", catalog.Stats()["last_error"])
}

func TestCatalog_LoadErrorIsSignalled(t *testing.T) {
	catalog := NewCatalog(&FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")}, quietLogger())

	_, err := catalog.Dataset(context.Background())
	require.ErrorIs(t, err, ErrNoDataset)

	_, err = NewCatalog(nil, quietLogger()).Dataset(context.Background())
	require.ErrorIs(t, err, ErrNoDataset)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, productsCSV)
	catalog := NewCatalog(&FileSource{Path: path}, quietLogger())

	_, err := catalog.Dataset(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(catalog, path, quietLogger())
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, catalog.Stats()["loads"])

	require.NoError(t, os.WriteFile(path, []byte(productsCSV+"NEW ROW,MAN,Aisle,No,No,5,5\n"), 0o644))

	require.Eventually(t, func() bool {
		return catalog.Stats()["record_count"] == 6
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, true, catalog.Stats()["cached"], "the cache is never left empty")
}
