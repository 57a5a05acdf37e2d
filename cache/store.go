// Copyright 2023 Terndata, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package cache

import (
	"sync"
	"sync/atomic"
)

// Store receives materialized partitions. Eviction and
// storage tiering are entirely the store's responsibility;
// this package only hands over completed, internally
// consistent partitions keyed by the relation's
// diagnostic name.
type Store interface {
	// Commit persists the finished batches for one
	// partition. It is called at most once per
	// (name, partition) pair.
	Commit(name string, partition int, batches []CachedBatch)
	// Evict drops everything stored under name.
	Evict(name string)
}

// nopStore discards committed data; used under StoreNone.
type nopStore struct{}

func (nopStore) Commit(string, int, []CachedBatch) {}
func (nopStore) Evict(string)                      {}

// MemStore is an in-memory Store. It is safe for
// concurrent use by parallel partition materializations.
type MemStore struct {
	// Logger, if non-nil, receives eviction diagnostics.
	Logger Logger

	lock  sync.Mutex
	parts map[string]map[int][]CachedBatch

	// statistics; accessed atomically
	commits, lookups, misses int64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{parts: make(map[string]map[int][]CachedBatch)}
}

// Commit implements Store.
func (m *MemStore) Commit(name string, partition int, batches []CachedBatch) {
	m.lock.Lock()
	defer m.lock.Unlock()
	p := m.parts[name]
	if p == nil {
		p = make(map[int][]CachedBatch)
		m.parts[name] = p
	}
	if _, ok := p[partition]; ok {
		panic("cache: duplicate commit of partition")
	}
	p[partition] = batches
	atomic.AddInt64(&m.commits, 1)
}

// Evict implements Store.
func (m *MemStore) Evict(name string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.parts[name]; !ok {
		if m.Logger != nil {
			m.Logger.Printf("MemStore.Evict: no entry %q", name)
		}
		return
	}
	delete(m.parts, name)
}

// Partition returns the batches committed for one
// partition, or nil if the partition has not been
// committed (or was evicted).
func (m *MemStore) Partition(name string, partition int) []CachedBatch {
	m.lock.Lock()
	defer m.lock.Unlock()
	atomic.AddInt64(&m.lookups, 1)
	b, ok := m.parts[name][partition]
	if !ok {
		atomic.AddInt64(&m.misses, 1)
		return nil
	}
	return b
}

// Commits returns the number of partitions committed.
func (m *MemStore) Commits() int64 { return atomic.LoadInt64(&m.commits) }

// Lookups returns the total number of Partition calls.
func (m *MemStore) Lookups() int64 { return atomic.LoadInt64(&m.lookups) }

// Misses returns the number of Partition calls that
// found no committed data.
func (m *MemStore) Misses() int64 { return atomic.LoadInt64(&m.misses) }
