package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one stored JSON object. Values are whatever encoding/json produces
// for an untyped document: nil, bool, float64, string, []any and map[string]any.
type Record map[string]any

// Predicate selects records for Find and Count. A nil Predicate matches all.
type Predicate func(Record) bool

// ID returns the string form of the record's id field, or "" if it has none.
func (r Record) ID() string {
	return idString(r["id"])
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with the top-level keys of fields written over it.
// The id key of fields is ignored.
func (r Record) Merge(fields map[string]any) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

func decodeRecords(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrCorrupt, i, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: element %d is null", ErrCorrupt, i)
		}
		records = append(records, rec)
	}
	return records, nil
}

func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return append(data, '\n'), nil
}
