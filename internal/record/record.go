// Package record defines Record, the ordered column → value mapping that
// moves between the mapper, the command builder and the executor.
package record

import (
	"encoding/json"
	"strings"
)

// Record is an ordered name → value mapping. The zero value is ready to use.
// Keys keep the order of their first Set.
type Record struct {
	keys   []string
	values map[string]any
}

// New returns an empty Record with room for n fields.
func New(n int) Record {
	return Record{keys: make([]string, 0, n), values: make(map[string]any, n)}
}

// FromColumns builds a Record from parallel column/value slices, as produced
// by scanning a result row.
func FromColumns(columns []string, values []any) Record {
	r := New(len(columns))
	for i, c := range columns {
		r.Set(c, values[i])
	}
	return r
}

// Set stores v under name, appending name to the key order if it is new.
func (r *Record) Set(name string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = v
}

// Get returns the value stored under name and whether it exists.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Value returns the value stored under name, or nil.
func (r Record) Value(name string) any {
	return r.values[name]
}

// Has reports whether name is present.
func (r Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Keys returns the field names in order. The slice must not be modified.
func (r Record) Keys() []string {
	return r.keys
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// Range calls fn for every field in order until fn returns false.
func (r Record) Range(fn func(name string, v any) bool) {
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// Map returns a copy of the fields as a plain map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.values[k]
	}
	return m
}

// Children returns the nested records stored under name, if any.
func (r Record) Children(name string) []Record {
	switch v := r.values[name].(type) {
	case []Record:
		return v
	case Record:
		return []Record{v}
	}
	return nil
}

// MarshalJSON encodes the record as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		sb.Write(kb)
		sb.WriteByte(':')
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}
