package hashmap

import (
	"github.com/zhangjyr/hashmap"
)

// tombstone marks an entry claimed by LoadAndDelete before it is removed, so that concurrent loads treat it as
// absent.
type tombstone struct{}

var deleted = &tombstone{}

// CornelkMap is a lock-free map with string keys, backed by github.com/zhangjyr/hashmap.
//
// It suits small, short-lived sets of keys that are claimed and released from many goroutines, such as names
// reserved for the duration of a handshake.
type CornelkMap[V any] struct {
	hashmap *hashmap.HashMap
}

// NewCornelkMap creates a new CornelkMap with room for size entries before it grows.
func NewCornelkMap[V any](size int) *CornelkMap[V] {
	return &CornelkMap[V]{
		hashmap: hashmap.New(uintptr(size)),
	}
}

func (m *CornelkMap[V]) Delete(key string) {
	m.hashmap.Del(key)
}

func (m *CornelkMap[V]) Load(key string) (ret V, ok bool) {
	v, ok := m.hashmap.GetStringKey(key)
	if !ok || v == deleted {
		return ret, false
	}

	return v.(V), true
}

func (m *CornelkMap[V]) LoadAndDelete(key string) (ret V, ok bool) {
	for {
		v, exists := m.hashmap.GetStringKey(key)
		if !exists || v == deleted {
			return ret, false
		}

		if m.hashmap.Cas(key, v, deleted) {
			m.hashmap.Del(key)
			return v.(V), true
		}
	}
}

// LoadOrStore returns the existing value for key if there is one. Otherwise, it stores value and returns it.
// loaded is true if the value was already present.
func (m *CornelkMap[V]) LoadOrStore(key string, value V) (ret V, loaded bool) {
	actual, loaded := m.hashmap.GetOrInsert(key, value)
	if actual == deleted {
		// The previous entry is being removed. Its key is free.
		m.hashmap.Set(key, value)
		return value, false
	}

	return actual.(V), loaded
}

// Range iterates over the map. If the callback returns false, iteration stops.
func (m *CornelkMap[V]) Range(cb func(string, V) bool) {
	next := true
	for item := range m.hashmap.Iter() {
		// The channel is always drained.
		if !next || item.Value == deleted {
			continue
		}

		next = cb(item.Key.(string), item.Value.(V))
	}
}

func (m *CornelkMap[V]) Store(key string, val V) {
	m.hashmap.Set(key, val)
}

func (m *CornelkMap[V]) Len() int {
	return m.hashmap.Len()
}
