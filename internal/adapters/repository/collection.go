package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cremosos/core/internal/infrastructure/storage"
	"github.com/cremosos/core/internal/ports"
)

// Collection implements ports.Repository[T] over one store collection.
// Entities are converted to and from records through their JSON form, so
// the json tags of T define the stored document.
type Collection[T any] struct {
	store    *storage.Store
	name     string
	notFound error
	idOf     func(*T) string
	known    map[string]bool
}

// NewCollection creates a repository for collection name. notFound is the
// domain error returned, alongside storage.ErrNotFound, for missing ids.
func NewCollection[T any](store *storage.Store, name string, notFound error, idOf func(*T) string) *Collection[T] {
	return &Collection[T]{
		store:    store,
		name:     name,
		notFound: notFound,
		idOf:     idOf,
		known:    jsonKeys(reflect.TypeFor[T]()),
	}
}

var _ ports.Repository[struct{}] = (*Collection[struct{}])(nil)

// Create inserts entity. It must already carry its id.
func (c *Collection[T]) Create(ctx context.Context, entity *T) error {
	rec, err := toRecord(entity)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.name, err)
	}
	if _, err := c.store.Insert(ctx, c.name, rec); err != nil {
		return fmt.Errorf("create %s: %w", c.name, err)
	}
	return nil
}

func (c *Collection[T]) GetByID(ctx context.Context, id string) (*T, error) {
	rec, ok, err := c.store.FindByID(ctx, c.name, id)
	if err != nil {
		return nil, fmt.Errorf("get %s by id: %w", c.name, err)
	}
	if !ok {
		return nil, c.missing(storage.ErrNotFound)
	}
	return fromRecord[T](rec)
}

// Update shallow-merges fields into the stored record. Field names are the
// JSON names of T.
func (c *Collection[T]) Update(ctx context.Context, id string, fields map[string]any) (*T, error) {
	rec, err := c.store.Update(ctx, c.name, id, fields)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, c.missing(err)
		}
		return nil, fmt.Errorf("update %s: %w", c.name, err)
	}
	return fromRecord[T](rec)
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, c.name, id); err != nil {
		if storage.IsNotFound(err) {
			return c.missing(err)
		}
		return fmt.Errorf("delete %s: %w", c.name, err)
	}
	return nil
}

// List returns the entities accepted by filter in stored order. Records that
// do not decode into T are skipped.
func (c *Collection[T]) List(ctx context.Context, filter func(*T) bool) ([]*T, error) {
	records, err := c.store.ReadAll(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	out := make([]*T, 0, len(records))
	for _, rec := range records {
		entity, err := fromRecord[T](rec)
		if err != nil {
			continue
		}
		if filter == nil || filter(entity) {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (c *Collection[T]) Count(ctx context.Context, filter func(*T) bool) (int, error) {
	items, err := c.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Modify decodes the collection, hands it to fn and stores the result, all
// under the collection's write lock. Keys of a stored record that T does not
// declare are carried over to the entity with the same id.
func (c *Collection[T]) Modify(ctx context.Context, fn func([]*T) ([]*T, error)) ([]*T, error) {
	var result []*T
	_, err := c.store.Modify(ctx, c.name, func(records []storage.Record) ([]storage.Record, error) {
		entities := make([]*T, 0, len(records))
		originals := make(map[string]storage.Record, len(records))
		for _, rec := range records {
			entity, err := fromRecord[T](rec)
			if err != nil {
				return nil, err
			}
			entities = append(entities, entity)
			if _, seen := originals[rec.ID()]; !seen {
				originals[rec.ID()] = rec
			}
		}

		next, err := fn(entities)
		if err != nil {
			return nil, err
		}

		out := make([]storage.Record, 0, len(next))
		for _, entity := range next {
			rec, err := toRecord(entity)
			if err != nil {
				return nil, err
			}
			if orig, ok := originals[c.idOf(entity)]; ok {
				c.carryUnknown(rec, orig)
			}
			out = append(out, rec)
		}
		result = next
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("modify %s: %w", c.name, err)
	}
	return result, nil
}

// Put inserts entity or replaces the record with the same id.
func (c *Collection[T]) Put(ctx context.Context, entity *T) error {
	id := c.idOf(entity)
	_, err := c.Modify(ctx, func(items []*T) ([]*T, error) {
		for i, item := range items {
			if c.idOf(item) == id {
				items[i] = entity
				return items, nil
			}
		}
		return append(items, entity), nil
	})
	return err
}

func (c *Collection[T]) carryUnknown(dst, src storage.Record) {
	for k, v := range src {
		if c.known[k] {
			continue
		}
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func (c *Collection[T]) missing(cause error) error {
	if c.notFound == nil {
		return cause
	}
	return fmt.Errorf("%w: %w", c.notFound, cause)
}

// jsonKeys returns the top-level JSON names encoding/json uses for t.
func jsonKeys(t reflect.Type) map[string]bool {
	keys := map[string]bool{}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return keys
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			for k := range jsonKeys(f.Type) {
				keys[k] = true
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[name] = true
	}
	return keys
}

func toRecord[T any](entity *T) (storage.Record, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil entity", storage.ErrInvalidRecord)
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}
	return rec, nil
}

func fromRecord[T any](rec storage.Record) (*T, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	return &entity, nil
}

// FieldsOf converts v, usually a request with pointer fields, into an update
// map keyed by JSON name. Nil values are dropped.
func FieldsOf(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return Compact(fields), nil
}

// Compact removes nil values from fields.
func Compact(fields map[string]any) map[string]any {
	for k, v := range fields {
		if v == nil {
			delete(fields, k)
		}
	}
	return fields
}

// IsNotFound reports whether err came from a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
