// Package backup snapshots every store collection to S3-compatible object
// storage as gzipped JSON documents and restores collections from them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/infrastructure/storage"
)

// maxParallel bounds concurrent collection uploads.
const maxParallel = 4

// timestampLayout names snapshot folders; it sorts chronologically.
const timestampLayout = "20060102T150405Z"

// ErrObjectNotFound is returned by a Downloader for a missing key.
var ErrObjectNotFound = errors.New("snapshot object not found")

// Uploader stores one object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// Downloader fetches the object stored under key.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Object describes one uploaded collection.
type Object struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Records    int    `json:"records"`
	Size       int64  `json:"size"`
}

// Manifest lists the objects of one snapshot.
type Manifest struct {
	Taken   time.Time `json:"taken"`
	Prefix  string    `json:"prefix"`
	Objects []Object  `json:"objects"`
}

// Service takes collection snapshots.
type Service struct {
	store    *storage.Store
	uploader Uploader
	prefix   string
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a snapshot service writing below prefix.
func NewService(store *storage.Store, uploader Uploader, prefix string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:    store,
		uploader: uploader,
		prefix:   prefix,
		logger:   log.WithComponent("backup"),
		now:      time.Now,
	}
}

// Snapshot uploads every collection as <prefix>/<timestamp>/<name>.json.gz.
// A collection that cannot be read fails the whole snapshot, so a degraded
// read is never archived as an empty collection.
func (s *Service) Snapshot(ctx context.Context) (*Manifest, error) {
	taken := s.now().UTC()
	folder := path.Join(s.prefix, taken.Format(timestampLayout))

	var mu sync.Mutex
	manifest := &Manifest{Taken: taken, Prefix: folder}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, name := range s.store.Collections() {
		g.Go(func() error {
			records, err := s.store.ReadAll(ctx, name)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", name, err)
			}

			data, err := compress(records)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", name, err)
			}

			key := path.Join(folder, name+".json.gz")
			if err := s.uploader.Upload(ctx, key, data, "application/gzip"); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}

			mu.Lock()
			manifest.Objects = append(manifest.Objects, Object{
				Collection: name,
				Key:        key,
				Records:    len(records),
				Size:       int64(len(data)),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Errorw("Snapshot failed", "prefix", folder)
		return nil, err
	}

	sort.Slice(manifest.Objects, func(i, j int) bool {
		return manifest.Objects[i].Collection < manifest.Objects[j].Collection
	})
	s.logger.Infow("Snapshot complete", "prefix", folder, "collections", len(manifest.Objects))
	return manifest, nil
}

// Restore replaces collections with the contents of the snapshot stored
// under folder, the Prefix of its Manifest. With no names every collection
// is restored. All objects are fetched and decoded before the first
// collection is written.
func (s *Service) Restore(ctx context.Context, from Downloader, folder string, names ...string) ([]Object, error) {
	known := s.store.Collections()
	if len(names) == 0 {
		names = known
	}
	for _, name := range names {
		if !slices.Contains(known, name) {
			return nil, fmt.Errorf("restore %s: %w", name, storage.ErrUnknownCollection)
		}
	}

	objects := make([]Object, len(names))
	contents := make([][]storage.Record, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, name := range names {
		g.Go(func() error {
			key := path.Join(folder, name+".json.gz")
			data, err := from.Download(gctx, key)
			if err != nil {
				return fmt.Errorf("download %s: %w", key, err)
			}
			records, err := Decompress(data)
			if err != nil {
				return fmt.Errorf("restore %s: %w", key, err)
			}
			if records == nil {
				records = []storage.Record{}
			}
			objects[i] = Object{Collection: name, Key: key, Records: len(records), Size: int64(len(data))}
			contents[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Errorw("Restore aborted before writing", "prefix", folder)
		return nil, err
	}

	for i, name := range names {
		if err := s.store.WriteAll(ctx, name, contents[i]); err != nil {
			s.logger.WithError(err).Errorw("Restore failed", "prefix", folder, "collection", name, "restored", i)
			return objects[:i], fmt.Errorf("restore %s: %w", name, err)
		}
	}
	s.logger.Infow("Restore complete", "prefix", folder, "collections", len(objects))
	return objects, nil
}

func compress(records []storage.Record) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(records); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses the snapshot encoding of one object.
func Decompress(data []byte) ([]storage.Record, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	defer zr.Close()

	var records []storage.Record
	if err := json.NewDecoder(zr).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return records, nil
}
