// Package valuestore persists small per-check key/value state between runs.
package valuestore

import "sort"

// Map holds the values of one namespace and remembers which keys changed.
type Map struct {
	values map[string]string
	dirty  map[string]struct{}
}

func NewMap() *Map {
	return &Map{
		values: map[string]string{},
		dirty:  map[string]struct{}{},
	}
}

func (m *Map) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Set(key, value string) {
	m.values[key] = value
	m.dirty[key] = struct{}{}
}

// Dirty returns the changed keys in sorted order.
func (m *Map) Dirty() []string {
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) load(key, value string) {
	m.values[key] = value
}

func (m *Map) clean() {
	m.dirty = map[string]struct{}{}
}
