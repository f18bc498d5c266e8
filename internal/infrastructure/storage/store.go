// Package storage implements the collection store: a fixed set of named
// collections, each persisted as one JSON array of records.
//
// Every operation reloads the collection from its Backend; nothing is cached
// between calls. Mutations run their whole read-modify-write cycle under the
// collection's exclusive lock, so concurrent inserts never lose each other.
// Different collections are locked independently.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cremosos/core/internal/infrastructure/logger"
)

// DefaultCollections is the collection set used by the API server.
var DefaultCollections = []string{
	"products",
	"users",
	"orders",
	"sales",
	"cart",
	"roles",
	"suppliers",
	"purchases",
}

// UpdatedAtField is stamped by Update.
const UpdatedAtField = "updatedAt"

// timestampLayout matches the ISO-8601 strings written by JavaScript's
// Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var collectionName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Store is safe for concurrent use.
type Store struct {
	backend Backend
	names   []string
	locks   map[string]*collectionLock
	logger  *logger.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded reads and initialization.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.WithComponent("storage")
		}
	}
}

// WithMetrics records per-operation counters and latencies.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the clock used for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a store over backend for exactly the given collections.
func New(backend Backend, collections []string, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("storage: nil backend")
	}
	if len(collections) == 0 {
		return nil, errors.New("storage: no collections configured")
	}

	s := &Store{
		backend: backend,
		locks:   make(map[string]*collectionLock, len(collections)),
		logger:  logger.NewNop(),
		now:     time.Now,
	}
	for _, name := range collections {
		if !collectionName.MatchString(name) {
			return nil, fmt.Errorf("storage: invalid collection name %q", name)
		}
		if _, dup := s.locks[name]; dup {
			return nil, fmt.Errorf("storage: duplicate collection %q", name)
		}
		s.locks[name] = newCollectionLock()
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Collections returns the configured collection names, sorted.
func (s *Store) Collections() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Initialize prepares the backend and creates every missing collection as an
// empty array. It never overwrites existing data and is safe to call again
// after a partial failure.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.backend.Prepare(ctx); err != nil {
		return opError("initialize", "", "", storageError(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.names {
		g.Go(func() error {
			unlock, err := s.locks[name].lock(ctx)
			if err != nil {
				return opError("initialize", name, "", err)
			}
			defer unlock()

			created, err := s.backend.Init(ctx, name)
			if err != nil {
				return opError("initialize", name, "", storageError(err))
			}
			if created {
				s.logger.Infow("Collection created", "collection", name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Debugw("Storage initialized", "collections", s.names)
	return nil
}

// ReadAll returns every record in the collection. When the stored data cannot
// be read or parsed it returns an empty slice together with an error that
// satisfies errors.Is(err, ErrStorage), so callers may degrade gracefully
// without mistaking the condition for an empty collection.
func (s *Store) ReadAll(ctx context.Context, collection string) ([]Record, error) {
	return s.read(ctx, "read_all", collection)
}

// WriteAll replaces the collection with records. The current contents are
// not read, so it also overwrites a collection that is corrupt.
func (s *Store) WriteAll(ctx context.Context, collection string, records []Record) error {
	return s.exclusive(ctx, "write_all", collection, "", func() error {
		return s.replace(ctx, collection, records)
	})
}

// Insert appends rec and returns it unchanged. The record must have an id;
// uniqueness is the caller's responsibility.
func (s *Store) Insert(ctx context.Context, collection string, rec Record) (Record, error) {
	err := s.mutate(ctx, "insert", collection, rec.ID(), func(records []Record) ([]Record, error) {
		return append(records, rec), nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update shallow-merges fields into the record with the given id, stamps
// updatedAt and returns the merged record.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) (Record, error) {
	var merged Record
	err := s.mutate(ctx, "update", collection, id, func(records []Record) ([]Record, error) {
		for i, rec := range records {
			if rec.ID() != id {
				continue
			}
			merged = rec.Merge(fields)
			merged[UpdatedAtField] = s.timestamp()
			records[i] = merged
			return records, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.mutate(ctx, "delete", collection, id, func(records []Record) ([]Record, error) {
		kept := records[:0]
		for _, rec := range records {
			if rec.ID() != id {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(records) {
			return nil, ErrNotFound
		}
		return kept, nil
	})
}

// Modify runs fn on the current records under the collection's exclusive lock
// and persists what it returns. An error from fn aborts without writing.
func (s *Store) Modify(ctx context.Context, collection string, fn func([]Record) ([]Record, error)) ([]Record, error) {
	var result []Record
	err := s.mutate(ctx, "modify", collection, "", func(records []Record) ([]Record, error) {
		next, err := fn(records)
		if err != nil {
			return nil, err
		}
		result = next
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindByID returns the first record with the given id. Absence is reported
// through the boolean, never as an error.
func (s *Store) FindByID(ctx context.Context, collection, id string) (Record, bool, error) {
	records, err := s.read(ctx, "find_by_id", collection)
	if err != nil {
		return nil, false, err
	}
	for _, rec := range records {
		if rec.ID() == id {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

// Find returns the records matching pred, in stored order.
func (s *Store) Find(ctx context.Context, collection string, pred Predicate) ([]Record, error) {
	records, err := s.read(ctx, "find", collection)
	if err != nil || pred == nil {
		return records, err
	}
	matched := make([]Record, 0, len(records))
	for _, rec := range records {
		if pred(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Count returns the number of records matching pred.
func (s *Store) Count(ctx context.Context, collection string, pred Predicate) (int, error) {
	records, err := s.Find(ctx, collection, pred)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Check reads every collection and returns the failures keyed by name.
func (s *Store) Check(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, name := range s.names {
		if _, err := s.read(ctx, "check", name); err != nil {
			failures[name] = err
		}
	}
	return failures
}

func (s *Store) read(ctx context.Context, op, collection string) (records []Record, err error) {
	lock, ok := s.locks[collection]
	if !ok {
		return nil, &Error{Op: op, Collection: collection, Err: ErrUnknownCollection}
	}
	defer s.metrics.observe(collection, op, time.Now(), &err)

	unlock, err := lock.rlock(ctx)
	if err != nil {
		return []Record{}, opError(op, collection, "", err)
	}
	defer unlock()

	records, err = s.load(ctx, collection)
	if err != nil {
		err = opError(op, collection, "", err)
		if errors.Is(err, ErrStorage) {
			s.logger.WithError(err).Warnw("Collection unreadable, returning empty result", "collection", collection)
		}
		return []Record{}, err
	}
	return records, nil
}

func (s *Store) mutate(ctx context.Context, op, collection, id string, fn func([]Record) ([]Record, error)) error {
	return s.exclusive(ctx, op, collection, id, func() error {
		records, err := s.load(ctx, collection)
		if err != nil {
			return err
		}
		next, err := fn(records)
		if err != nil {
			return err
		}
		return s.replace(ctx, collection, next)
	})
}

// exclusive runs fn under the collection's write lock.
func (s *Store) exclusive(ctx context.Context, op, collection, id string, fn func() error) (err error) {
	lock, ok := s.locks[collection]
	if !ok {
		return &Error{Op: op, Collection: collection, ID: id, Err: ErrUnknownCollection}
	}
	start := time.Now()
	defer s.metrics.observe(collection, op, start, &err)
	defer func() { s.logger.LogStorageOperation(op, collection, id, time.Since(start), err) }()

	unlock, err := lock.lock(ctx)
	if err != nil {
		return opError(op, collection, id, err)
	}
	defer unlock()

	return opError(op, collection, id, fn())
}

func (s *Store) replace(ctx context.Context, collection string, records []Record) error {
	if err := validate(records); err != nil {
		return err
	}
	return s.save(ctx, collection, records)
}

func (s *Store) load(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.backend.Load(ctx, collection)
	if err != nil {
		return nil, storageError(err)
	}
	if data == nil {
		return []Record{}, nil
	}
	return decodeRecords(data)
}

func (s *Store) save(ctx context.Context, collection string, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, collection, data); err != nil {
		return storageError(err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func validate(records []Record) error {
	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: record %d is nil", ErrInvalidRecord, i)
		}
		if rec.ID() == "" {
			return fmt.Errorf("%w: record %d has no id", ErrInvalidRecord, i)
		}
	}
	return nil
}
