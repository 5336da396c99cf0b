// Package store holds the in-memory result and skipped-file stores and their
// JSON Lines persistence. Stores are owned by a single processing path and
// are not safe for concurrent mutation.
package store

import "github.com/Agfare/comet-watcher/internal/record"

// Results is the result store, keyed by record.Key.
type Results struct {
	m *OrderedMap[record.Result]
}

// NewResults returns an empty result store.
func NewResults() *Results {
	return &Results{m: NewOrderedMap[record.Result]()}
}

// Upsert stores rec under key, replacing any previous record for that key.
func (r *Results) Upsert(key string, rec record.Result) {
	r.m.Set(key, rec)
}

// Get returns the record stored under key.
func (r *Results) Get(key string) (record.Result, bool) {
	return r.m.Get(key)
}

// Delete removes the record stored under key.
func (r *Results) Delete(key string) bool {
	return r.m.Delete(key)
}

// Len returns the number of distinct keys.
func (r *Results) Len() int {
	return r.m.Len()
}

// Keys returns all keys in insertion order.
func (r *Results) Keys() []string {
	return r.m.Keys()
}

// Snapshot returns the current records in insertion order.
func (r *Results) Snapshot() []record.Result {
	return r.m.Values()
}

// Warnings returns the records flagged as warnings, in insertion order.
func (r *Results) Warnings() []record.Result {
	var out []record.Result
	for _, rec := range r.m.Values() {
		if rec.Warning {
			out = append(out, rec)
		}
	}
	return out
}

// Skipped is the skipped-file store, keyed by file name.
type Skipped struct {
	m *OrderedMap[record.Skipped]
}

// NewSkipped returns an empty skipped-file store.
func NewSkipped() *Skipped {
	return &Skipped{m: NewOrderedMap[record.Skipped]()}
}

// Upsert stores rec under file.
func (s *Skipped) Upsert(file string, rec record.Skipped) {
	s.m.Set(file, rec)
}

// Remove drops the entry for file and reports whether one existed.
func (s *Skipped) Remove(file string) bool {
	return s.m.Delete(file)
}

// Get returns the entry for file.
func (s *Skipped) Get(file string) (record.Skipped, bool) {
	return s.m.Get(file)
}

// Len returns the number of skipped files.
func (s *Skipped) Len() int {
	return s.m.Len()
}

// Snapshot returns the current entries in insertion order.
func (s *Skipped) Snapshot() []record.Skipped {
	return s.m.Values()
}
