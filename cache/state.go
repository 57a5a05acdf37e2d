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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// Logger is the interface used for diagnostics
// throughout this package.
type Logger interface {
	Printf(f string, args ...interface{})
}

// materialization states; see CacheState.
const (
	stateUninitialized int32 = iota
	stateMaterializing
	stateMaterialized
)

// CacheState is the shared, per-relation handle coordinating
// lazy materialization. Multiple Relation values (for example
// after WithOutput or NewInstance) point at one CacheState, so
// the cached data exists at most once per distinct subtree.
//
// Constructing a CacheState performs no row processing;
// rows are consumed only when partitions are pulled (via
// Partition) or when Materialize drives all of them.
type CacheState struct {
	// Logger, if non-nil, receives diagnostics for
	// aborted partition materializations.
	Logger Logger

	name       string
	src        Source
	store      Store
	compressed bool
	algo       string
	lim        Limits
	fallback   Stats

	// size is the shared accumulator: the total of the
	// finished batch sizes of every *committed* partition,
	// updated with increment-only atomic adds at commit
	// time, so an attempt that aborts or loses the commit
	// race can never inflate it. Zero is the "nothing
	// committed yet" sentinel, which is indistinguishable
	// by value from a relation that truly materialized to
	// zero bytes; see Stats.
	size int64

	// pending holds the batch bytes of in-flight,
	// not-yet-committed attempts. It feeds the in-progress
	// size estimate only: CommitPartition moves a
	// partition's subtotal from pending into size, and an
	// aborted attempt unwinds its own contribution.
	pending int64

	// committed[p] flips to 1 exactly once, when partition
	// p is first committed. Re-executions of a committed
	// partition neither store again nor touch the
	// accumulator.
	committed []int32

	mu    sync.Mutex // serializes Materialize
	state int32      // atomic; one of the state* constants
}

func newCacheState(src Source, name string, store Store, compressed bool, algo string, lim Limits) *CacheState {
	if name == "" {
		name = abbreviate(src.String(), 64)
	}
	return &CacheState{
		name:       name,
		src:        src,
		store:      store,
		compressed: compressed,
		algo:       algo,
		lim:        lim,
		fallback:   src.Stats(),
		committed:  make([]int32, src.Partitions()),
	}
}

// Name returns the diagnostic name the cached data is
// keyed by in the store: either the name the relation
// was constructed with, or an abbreviated textual form
// of the source.
func (s *CacheState) Name() string { return s.name }

// Partitions returns the number of partitions in the source.
func (s *CacheState) Partitions() int { return len(s.committed) }

// Done reports whether every partition has been
// materialized and committed.
func (s *CacheState) Done() bool {
	return atomic.LoadInt32(&s.state) == stateMaterialized
}

func (s *CacheState) addPending(n int64) {
	atomic.AddInt64(&s.pending, n)
}

// SizeBytes returns the current size estimate:
// 0 before any batch completes, a possibly-partial
// in-progress total during materialization, and,
// once Done, exactly the sum of the committed
// batches' encoded sizes.
func (s *CacheState) SizeBytes() int64 {
	return atomic.LoadInt64(&s.size) + atomic.LoadInt64(&s.pending)
}

// Stats returns the best current statistics estimate.
// Before any batch has completed it returns the fallback
// statistics captured from the source at construction,
// with hint annotations stripped (a hint aimed at the
// original consuming context must not leak into a new
// one). Afterwards it returns statistics built from the
// accumulator, which may reflect an in-progress total:
// the contract is "best current estimate", not a
// transactional snapshot.
func (s *CacheState) Stats() Stats {
	size := s.SizeBytes()
	if size == 0 {
		return s.fallback.stripHints()
	}
	return Stats{SizeBytes: size}
}

// Partition opens partition p for materialization and
// returns its lazy batch sequence. If p was already
// committed, the returned materializer re-encodes the
// partition without updating the size estimate, so
// speculative re-execution cannot double-count.
func (s *CacheState) Partition(ctx context.Context, p int) (*Materializer, error) {
	if p < 0 || p >= len(s.committed) {
		return nil, fmt.Errorf("cache: partition %d out of range [0,%d)", p, len(s.committed))
	}
	src, err := s.src.Open(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("cache: open partition %d: %w", p, err)
	}
	return &Materializer{
		src:        src,
		schema:     s.src.Schema(),
		compressed: s.compressed,
		algo:       s.algo,
		lim:        s.lim,
		state:      s,
		partition:  p,
		count:      atomic.LoadInt32(&s.committed[p]) == 0,
	}, nil
}

// CommitPartition hands one partition's finished batches
// to the store. The batches must have been produced by a
// materializer opened on this state via Partition. The
// commit is idempotent: only the first commit for a
// partition stores anything or moves the partition's
// bytes into the durable accumulator, and the return
// value reports whether this call was it.
func (s *CacheState) CommitPartition(p int, batches []CachedBatch) bool {
	if !atomic.CompareAndSwapInt32(&s.committed[p], 0, 1) {
		return false
	}
	// the winning attempt published these bytes as
	// pending batch-by-batch; promote them
	var total int64
	for i := range batches {
		total += batches[i].SizeBytes()
	}
	atomic.AddInt64(&s.size, total)
	atomic.AddInt64(&s.pending, -total)
	s.store.Commit(s.name, p, batches)
	return true
}

// Materialize drives every partition to completion,
// in parallel, and commits each one to the store. It
// returns the first error encountered; remaining
// partitions are cancelled via ctx. Materialize is
// safe to call repeatedly and concurrently; once the
// state reaches materialized it returns immediately,
// and a failed run leaves the state uninitialized so
// a later call can retry the uncommitted partitions.
func (s *CacheState) Materialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.state) == stateMaterialized {
		return nil
	}
	atomic.StoreInt32(&s.state, stateMaterializing)
	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < len(s.committed); p++ {
		p := p
		if atomic.LoadInt32(&s.committed[p]) != 0 {
			continue
		}
		g.Go(func() error {
			err := s.runPartition(ctx, p)
			if err != nil {
				s.errorf("cache %q: partition %d aborted: %s", s.name, p, err)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		atomic.StoreInt32(&s.state, stateUninitialized)
		return err
	}
	atomic.StoreInt32(&s.state, stateMaterialized)
	return nil
}

func (s *CacheState) runPartition(ctx context.Context, p int) error {
	m, err := s.Partition(ctx, p)
	if err != nil {
		return err
	}
	var batches []CachedBatch
	for m.More() {
		if err := ctx.Err(); err != nil {
			m.abandon()
			return err
		}
		b, err := m.Next()
		if err != nil {
			return err
		}
		batches = append(batches, b)
	}
	s.CommitPartition(p, batches)
	return nil
}

func (s *CacheState) errorf(f string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(f, args...)
	}
}

// abbreviate shortens a plan's textual form for use
// as a diagnostic name.
func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
