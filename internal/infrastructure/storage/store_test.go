package storage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cremosos/core/internal/infrastructure/storage"
)

var fixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T, backend storage.Backend, names ...string) *storage.Store {
	t.Helper()
	if len(names) == 0 {
		names = storage.DefaultCollections
	}
	s, err := storage.New(backend, names, storage.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func backends(t *testing.T) map[string]func() storage.Backend {
	return map[string]func() storage.Backend{
		"json":   func() storage.Backend { return storage.NewFileBackend(t.TempDir()) },
		"memory": func() storage.Backend { return storage.NewMemoryBackend() },
	}
}

func TestStoreScenario(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, mk(), "products", "orders")

			// Fresh collections are empty, not errors.
			for _, c := range []string{"products", "orders"} {
				records, err := s.ReadAll(ctx, c)
				require.NoError(t, err)
				assert.Empty(t, records)
				assert.NotNil(t, records)
			}

			rec := storage.Record{"id": "p1", "name": "Rice Pudding", "price": float64(9000), "stock": float64(10)}
			got, err := s.Insert(ctx, "products", rec)
			require.NoError(t, err)
			assert.Equal(t, rec, got)

			all, err := s.ReadAll(ctx, "products")
			require.NoError(t, err)
			assert.Equal(t, []storage.Record{rec}, all)

			found, ok, err := s.FindByID(ctx, "products", "p1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, rec, found)

			updated, err := s.Update(ctx, "products", "p1", map[string]any{"stock": float64(8)})
			require.NoError(t, err)
			assert.Equal(t, storage.Record{
				"id":        "p1",
				"name":      "Rice Pudding",
				"price":     float64(9000),
				"stock":     float64(8),
				"updatedAt": "2024-01-15T10:00:00.000Z",
			}, updated)

			_, err = s.Update(ctx, "products", "missing", map[string]any{"stock": float64(1)})
			require.ErrorIs(t, err, storage.ErrNotFound)
			all, err = s.ReadAll(ctx, "products")
			require.NoError(t, err)
			assert.Equal(t, []storage.Record{updated}, all)

			require.NoError(t, s.Delete(ctx, "products", "p1"))
			all, err = s.ReadAll(ctx, "products")
			require.NoError(t, err)
			assert.Empty(t, all)

			err = s.Delete(ctx, "products", "p1")
			require.ErrorIs(t, err, storage.ErrNotFound)
			assert.True(t, storage.IsNotFound(err))
		})
	}
}

func TestStoreConcurrentInserts(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, mk())

			_, err := s.Insert(ctx, "sales", storage.Record{"id": "existing", "total": float64(1)})
			require.NoError(t, err)

			const k = 50
			var g errgroup.Group
			for i := 0; i < k; i++ {
				g.Go(func() error {
					_, err := s.Insert(ctx, "sales", storage.Record{"id": fmt.Sprintf("sale-%d", i), "total": float64(1)})
					return err
				})
			}
			require.NoError(t, g.Wait())

			n, err := s.Count(ctx, "sales", nil)
			require.NoError(t, err)
			assert.Equal(t, k+1, n)

			for i := 0; i < k; i++ {
				_, ok, err := s.FindByID(ctx, "sales", fmt.Sprintf("sale-%d", i))
				require.NoError(t, err)
				assert.True(t, ok, "sale-%d lost", i)
			}
		})
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewFileBackend(t.TempDir()))

	const k = 20
	for i := 0; i < k; i++ {
		_, err := s.Insert(ctx, "products", storage.Record{"id": fmt.Sprintf("p%d", i), "stock": float64(0)})
		require.NoError(t, err)
	}

	var g errgroup.Group
	for i := 0; i < k; i++ {
		g.Go(func() error {
			_, err := s.Update(ctx, "products", fmt.Sprintf("p%d", i), map[string]any{"stock": float64(i)})
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < k; i++ {
		rec, ok, err := s.FindByID(ctx, "products", fmt.Sprintf("p%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(i), rec["stock"])
	}
}

func TestStoreCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewFileBackend(t.TempDir()))

	// Hold the products lock inside Modify until orders has been written.
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Modify(ctx, "products", func(records []storage.Record) ([]storage.Record, error) {
			close(entered)
			<-release
			return append(records, storage.Record{"id": "p1"}), nil
		})
		done <- err
	}()
	<-entered

	tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.Insert(tctx, "orders", storage.Record{"id": "o1"})
	require.NoError(t, err, "orders must not wait for products")

	close(release)
	require.NoError(t, <-done)

	products, err := s.ReadAll(ctx, "products")
	require.NoError(t, err)
	orders, err := s.ReadAll(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Len(t, orders, 1)
}

func TestStoreWriterBlocksSameCollection(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryBackend())

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Modify(ctx, "products", func(records []storage.Record) ([]storage.Record, error) {
			close(entered)
			<-release
			return records, nil
		})
		done <- err
	}()
	<-entered

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := s.Insert(tctx, "products", storage.Record{"id": "p1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.ReadAll(tctx, "products")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	// The lock is free again once Modify returns.
	_, err = s.Insert(ctx, "products", storage.Record{"id": "p1"})
	require.NoError(t, err)
}

func TestStoreReleasesLockOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryBackend())

	boom := errors.New("boom")
	_, err := s.Modify(ctx, "products", func([]storage.Record) ([]storage.Record, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = s.Insert(tctx, "products", storage.Record{"id": "p1"})
	require.NoError(t, err)

	records, err := s.ReadAll(ctx, "products")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// countingBackend records every backend call.
type countingBackend struct {
	storage.Backend
	calls atomic.Int64
}

func (b *countingBackend) Load(ctx context.Context, c string) ([]byte, error) {
	b.calls.Add(1)
	return b.Backend.Load(ctx, c)
}

func (b *countingBackend) Save(ctx context.Context, c string, data []byte) error {
	b.calls.Add(1)
	return b.Backend.Save(ctx, c, data)
}

func TestStoreUnknownCollection(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: storage.NewMemoryBackend()}
	s := newStore(t, backend, "products")
	before := backend.calls.Load()

	_, err := s.ReadAll(ctx, "widgets")
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	err = s.WriteAll(ctx, "widgets", nil)
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	_, err = s.Insert(ctx, "widgets", storage.Record{"id": "w1"})
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	_, err = s.Update(ctx, "widgets", "w1", nil)
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	err = s.Delete(ctx, "widgets", "w1")
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	_, _, err = s.FindByID(ctx, "widgets", "w1")
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	_, err = s.Find(ctx, "widgets", nil)
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
	_, err = s.Count(ctx, "Products", nil)
	assert.ErrorIs(t, err, storage.ErrUnknownCollection, "names are case-sensitive")

	assert.Equal(t, before, backend.calls.Load(), "unknown collections must not touch storage")

	var se *storage.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Products", se.Collection)
}

func TestStoreCorruptCollection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newStore(t, storage.NewFileBackend(dir), "products", "orders")

	path := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	records, err := s.ReadAll(ctx, "products")
	require.ErrorIs(t, err, storage.ErrCorrupt)
	assert.ErrorIs(t, err, storage.ErrStorage)
	assert.True(t, storage.IsUnavailable(err))
	assert.NotNil(t, records)
	assert.Empty(t, records)

	_, err = s.Insert(ctx, "products", storage.Record{"id": "p1"})
	require.ErrorIs(t, err, storage.ErrCorrupt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(data), "corrupt data must not be overwritten")

	failures := s.Check(ctx)
	assert.Len(t, failures, 1)
	assert.Contains(t, failures, "products")

	// Other collections are unaffected.
	_, err = s.Insert(ctx, "orders", storage.Record{"id": "o1"})
	require.NoError(t, err)

	// A full replace recovers the collection.
	require.NoError(t, s.WriteAll(ctx, "products", []storage.Record{{"id": "p1", "name": "Arroz con Leche"}}))
	records, err = s.ReadAll(ctx, "products")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].ID())
	assert.Empty(t, s.Check(ctx))

	_, err = s.Insert(ctx, "products", storage.Record{"id": "p2"})
	require.NoError(t, err)
}

func TestStoreCorruptElements(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	s := newStore(t, backend, "products")

	for _, doc := range []string{`[1, 2]`, `[null]`, `{"id":"p1"}`} {
		require.NoError(t, backend.Save(ctx, "products", []byte(doc)))
		_, err := s.ReadAll(ctx, "products")
		assert.ErrorIs(t, err, storage.ErrCorrupt, doc)
	}

	require.NoError(t, backend.Save(ctx, "products", []byte("  \n")))
	records, err := s.ReadAll(ctx, "products")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStoreInitializeKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newStore(t, storage.NewFileBackend(dir), "products")

	_, err := s.Insert(ctx, "products", storage.Record{"id": "p1"})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))

	n, err := s.Count(ctx, "products", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreInitializeFailsOnUnusableRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	s, err := storage.New(storage.NewFileBackend(filepath.Join(file, "data")), []string{"products"})
	require.NoError(t, err)
	err = s.Initialize(context.Background())
	require.ErrorIs(t, err, storage.ErrStorage)
}

func TestStoreWriteAllAndFind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newStore(t, storage.NewFileBackend(dir), "products")

	records := []storage.Record{
		{"id": "p1", "category": "arroz_con_leche", "price": float64(8000)},
		{"id": "p2", "category": "fresas_con_crema", "price": float64(12000)},
		{"id": float64(3), "category": "arroz_con_leche", "price": float64(9000)},
	}
	require.NoError(t, s.WriteAll(ctx, "products", records))

	all, err := s.ReadAll(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, records, all, "stored order must round-trip")

	rice, err := s.Find(ctx, "products", func(r storage.Record) bool {
		return r["category"] == "arroz_con_leche"
	})
	require.NoError(t, err)
	assert.Len(t, rice, 2)

	n, err := s.Count(ctx, "products", func(r storage.Record) bool {
		price, _ := r["price"].(float64)
		return price > 8500
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Numeric ids match their string form.
	rec, ok, err := s.FindByID(ctx, "products", "3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(9000), rec["price"])

	_, ok, err = s.FindByID(ctx, "products", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files may remain")
	assert.Equal(t, "products.json", entries[0].Name())
}

func TestStoreRejectsRecordsWithoutID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryBackend(), "products")

	_, err := s.Insert(ctx, "products", storage.Record{"name": "no id"})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
	_, err = s.Insert(ctx, "products", nil)
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
	err = s.WriteAll(ctx, "products", []storage.Record{{"id": "p1"}, {"name": "x"}})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)

	n, err := s.Count(ctx, "products", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreUpdateKeepsID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryBackend(), "products")

	_, err := s.Insert(ctx, "products", storage.Record{"id": "p1", "tags": []any{"a"}})
	require.NoError(t, err)

	rec, err := s.Update(ctx, "products", "p1", map[string]any{"id": "p2", "tags": []any{"b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, "p1", rec["id"])
	assert.Equal(t, []any{"b", "c"}, rec["tags"])

	_, ok, err := s.FindByID(ctx, "products", "p2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreModify(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryBackend(), "products")
	require.NoError(t, s.WriteAll(ctx, "products", []storage.Record{
		{"id": "p1", "stock": float64(5)},
		{"id": "p2", "stock": float64(1)},
	}))

	out, err := s.Modify(ctx, "products", func(records []storage.Record) ([]storage.Record, error) {
		for _, r := range records {
			r["stock"] = r["stock"].(float64) - 1
		}
		return records, nil
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	rec, _, err := s.FindByID(ctx, "products", "p2")
	require.NoError(t, err)
	assert.Equal(t, float64(0), rec["stock"])
}

func TestStoreCanceledContext(t *testing.T) {
	s := newStore(t, storage.NewMemoryBackend(), "products")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Insert(ctx, "products", storage.Record{"id": "p1"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewValidatesCollections(t *testing.T) {
	b := storage.NewMemoryBackend()

	_, err := storage.New(b, nil)
	assert.Error(t, err)
	_, err = storage.New(b, []string{"products", "products"})
	assert.Error(t, err)
	_, err = storage.New(b, []string{"../etc"})
	assert.Error(t, err)
	_, err = storage.New(nil, []string{"products"})
	assert.Error(t, err)

	s, err := storage.New(b, []string{"users", "products"})
	require.NoError(t, err)
	assert.Equal(t, []string{"products", "users"}, s.Collections())
}

func TestStoreMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := storage.NewMetrics(reg)

	s, err := storage.New(storage.NewMemoryBackend(), []string{"products"}, storage.WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))

	_, err = s.Insert(ctx, "products", storage.Record{"id": "p1"})
	require.NoError(t, err)
	err = s.Delete(ctx, "products", "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	count, err := testutil.GatherAndCount(reg, "storage_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
