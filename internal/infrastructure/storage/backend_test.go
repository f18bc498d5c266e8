package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cremosos/core/internal/infrastructure/config"
	"github.com/cremosos/core/internal/infrastructure/database"
	"github.com/cremosos/core/internal/infrastructure/storage"
)

// runBackendTests runs a common suite against any Backend implementation.
func runBackendTests(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, b.Prepare(ctx))
	require.NoError(t, b.Prepare(ctx), "Prepare must be idempotent")

	t.Run("Load absent", func(t *testing.T) {
		data, err := b.Load(ctx, "never")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("Init creates once", func(t *testing.T) {
		created, err := b.Init(ctx, "products")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = b.Init(ctx, "products")
		require.NoError(t, err)
		assert.False(t, created)

		data, err := b.Load(ctx, "products")
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})

	t.Run("Save and Load", func(t *testing.T) {
		doc := `[{"id":"p1","name":"Rice Pudding"}]`
		require.NoError(t, b.Save(ctx, "products", []byte(doc)))

		data, err := b.Load(ctx, "products")
		require.NoError(t, err)
		assert.JSONEq(t, doc, string(data))
	})

	t.Run("Init keeps existing data", func(t *testing.T) {
		created, err := b.Init(ctx, "products")
		require.NoError(t, err)
		assert.False(t, created)

		data, err := b.Load(ctx, "products")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":"p1","name":"Rice Pudding"}]`, string(data))
	})

	t.Run("Save overwrites", func(t *testing.T) {
		require.NoError(t, b.Save(ctx, "orders", []byte(`[{"id":"o1"}]`)))
		require.NoError(t, b.Save(ctx, "orders", []byte(`[]`)))

		data, err := b.Load(ctx, "orders")
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})

	t.Run("Collections are separate", func(t *testing.T) {
		require.NoError(t, b.Save(ctx, "a", []byte(`[{"id":"1","x":1}]`)))
		require.NoError(t, b.Save(ctx, "b", []byte(`[{"id":"1","x":2}]`)))

		a, err := b.Load(ctx, "a")
		require.NoError(t, err)
		bb, err := b.Load(ctx, "b")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":"1","x":1}]`, string(a))
		assert.JSONEq(t, `[{"id":"1","x":2}]`, string(bb))
	})
}

func TestMemoryBackend(t *testing.T) {
	b := storage.NewMemoryBackend()
	defer b.Close()
	runBackendTests(t, b)
}

func TestFileBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	b := storage.NewFileBackend(dir)
	defer b.Close()
	runBackendTests(t, b)

	// One file per collection and no temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"products.json", "orders.json", "a.json", "b.json"}, names)
}

func TestFileBackendSaveFailsWithoutRoot(t *testing.T) {
	b := storage.NewFileBackend(filepath.Join(t.TempDir(), "missing"))
	err := b.Save(context.Background(), "products", []byte(`[]`))
	require.Error(t, err)
}

func TestSQLBackend(t *testing.T) {
	cfg := config.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "store.db")}
	require.NoError(t, database.Migrate("sqlite3", cfg, "up"))

	db, err := database.New("sqlite3", cfg)
	require.NoError(t, err)
	defer db.Close()

	b := storage.NewSQLBackend(db.DB)
	defer b.Close()
	runBackendTests(t, b)
}

func TestSQLBackendRequiresMigrations(t *testing.T) {
	cfg := config.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "empty.db")}
	db, err := database.New("sqlite3", cfg)
	require.NoError(t, err)
	defer db.Close()

	err = storage.NewSQLBackend(db.DB).Prepare(context.Background())
	require.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		want    any
	}{
		{"json", &storage.FileBackend{}},
		{"", &storage.FileBackend{}},
		{"memory", &storage.MemoryBackend{}},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Backend: tc.backend, DataDir: dir}, nil)
			require.NoError(t, err)
			assert.IsType(t, tc.want, b)
		})
	}

	t.Run("sqlite without db", func(t *testing.T) {
		_, err := storage.NewBackend(config.StorageConfig{Backend: "sqlite"}, nil)
		require.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := storage.NewBackend(config.StorageConfig{Backend: "redis"}, nil)
		require.Error(t, err)
	})
}
