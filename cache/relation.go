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

	"github.com/terndb/tern/compr"
	"github.com/terndb/tern/schema"
)

// Stats is the statistics record exposed to the
// consuming query engine's cost model.
type Stats struct {
	// SizeBytes is the (estimated or measured)
	// size of the relation's data.
	SizeBytes int64
	// Rows is the estimated row count, or 0 if unknown.
	Rows int64
	// Hints carries opaque planner annotations attached
	// to the estimate (for example a broadcast hint).
	// Hints are stripped whenever statistics are reused
	// outside their original consuming context.
	Hints []string
}

func (s Stats) stripHints() Stats {
	s.Hints = nil
	return s
}

// StoragePolicy selects where the external store keeps
// materialized data. It is opaque to this package beyond
// StoreNone, which discards committed batches.
type StoragePolicy uint8

const (
	StoreNone StoragePolicy = iota
	StoreMemory
)

var policyNames = [...]string{
	StoreNone:   "none",
	StoreMemory: "memory",
}

func (p StoragePolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// Source supplies the rows to be cached, split into
// independently-materializable partitions. It is typically
// an adapter over a query plan operator.
type Source interface {
	// Schema is the fixed output schema; every row
	// produced by Open has exactly this many fields.
	Schema() schema.Schema
	// Partitions returns the number of partitions.
	Partitions() int
	// Open returns the row sequence for one partition.
	// A partition may only be consumed once per Open.
	Open(ctx context.Context, partition int) (RowSource, error)
	// Stats returns the planner's pre-materialization
	// estimate, used as fallback statistics until real
	// materialized statistics exist.
	Stats() Stats
	// Canonical returns a normalized form of the source
	// used solely for cache-equivalence comparison.
	Canonical() Source
	// String returns a human-readable form of the source;
	// an abbreviation of it names anonymous cached data.
	String() string
}

// Options configures a new Relation. The zero value
// selects sensible defaults: zstd compression, default
// batch limits, memory storage backed by a fresh MemStore.
type Options struct {
	// Name is the explicit cache name. If empty, a name
	// is derived from the source's textual form.
	Name string
	// Compression is "zstd", "zstd-better", "s2", or
	// "none". Empty means zstd.
	Compression string
	// MaxRows and MaxBytes bound each batch;
	// zero selects the package defaults.
	MaxRows  int
	MaxBytes int
	// Policy is the storage-tier token handed to the store.
	Policy StoragePolicy
	// Ordering is the known output ordering, if any.
	Ordering schema.Ordering
	// Store receives committed partitions. If nil, a
	// MemStore is used (or a discarding store under
	// StoreNone).
	Store Store
	// Logger receives materialization diagnostics.
	Logger Logger
	// State, if non-nil, is an existing materialization
	// handle to share instead of creating a new one.
	State *CacheState
}

// Relation is a cacheable leaf relation: once built it
// behaves as a data source with a known schema, ordering
// and statistics, backed by a shared CacheState holding
// the (possibly still-being-computed) batch data.
type Relation struct {
	out      schema.Schema
	ordering schema.Ordering
	name     string
	policy   StoragePolicy

	compressed bool
	algo       string
	lim        Limits

	src   Source
	state *CacheState
}

// New constructs a relation over src. No rows are
// processed until the relation's partitions are pulled
// or Materialize is called.
func New(src Source, opts Options) (*Relation, error) {
	algo := opts.Compression
	compressed := true
	switch algo {
	case "":
		algo = "zstd"
	case "none":
		algo, compressed = "", false
	default:
		if compr.Compression(algo) == nil {
			return nil, fmt.Errorf("cache: unknown compression %q", algo)
		}
	}
	lim := Limits{MaxRows: opts.MaxRows, MaxBytes: opts.MaxBytes}.withDefaults()
	state := opts.State
	if state == nil {
		store := opts.Store
		if store == nil {
			if opts.Policy == StoreNone {
				store = nopStore{}
			} else {
				store = NewMemStore()
			}
		}
		state = newCacheState(src, opts.Name, store, compressed, algo, lim)
		state.Logger = opts.Logger
	}
	return &Relation{
		out:        src.Schema(),
		ordering:   opts.Ordering,
		name:       opts.Name,
		policy:     opts.Policy,
		compressed: compressed,
		algo:       algo,
		lim:        lim,
		src:        src,
		state:      state,
	}, nil
}

// Schema returns the relation's output schema.
func (r *Relation) Schema() schema.Schema { return r.out }

// Ordering returns the relation's output ordering.
func (r *Relation) Ordering() schema.Ordering { return r.ordering }

// Compressed reports whether column buffers are
// compressed, and with which algorithm.
func (r *Relation) Compressed() (bool, string) { return r.compressed, r.algo }

// State returns the shared materialization handle.
func (r *Relation) State() *CacheState { return r.state }

// Stats returns the relation's current statistics:
// the fallback (source-derived, hint-stripped) estimate
// until the first batch completes, then a size built
// from the shared accumulator.
func (r *Relation) Stats() Stats { return r.state.Stats() }

// Materialize eagerly materializes every partition.
// See CacheState.Materialize.
func (r *Relation) Materialize(ctx context.Context) error {
	return r.state.Materialize(ctx)
}

// WithOutput returns a view of r with a renamed output
// schema. The new relation shares r's materialized data,
// accumulator and fallback statistics; it never triggers
// recomputation. The new schema must be column-for-column
// type-compatible with the old one.
func (r *Relation) WithOutput(out schema.Schema) (*Relation, error) {
	if !r.out.Compatible(out) {
		return nil, fmt.Errorf("cache: output %s not compatible with %s", out, r.out)
	}
	nr := *r
	nr.out = out
	return &nr, nil
}

// NewInstance returns a relation with freshly-allocated
// attribute identities but identical structure and the
// same materialized data handle. The query engine uses
// this when it needs two structurally distinct references
// to the same cached data, e.g. for a self-join.
func (r *Relation) NewInstance() *Relation {
	out := make(schema.Schema, len(r.out))
	for i := range r.out {
		out[i] = r.out[i].WithNewID()
	}
	nr := *r
	nr.out = out
	return &nr
}

// Canonical returns the normalized form of r used for
// cache-equivalence comparison: attribute identities are
// normalized positionally, the storage policy is reset,
// the cache name is discarded, and the source is
// canonicalized. The result is only ever compared; it is
// never materialized or executed.
func (r *Relation) Canonical() *Relation {
	nr := *r
	nr.out = r.out.Renumbered()
	nr.policy = StoreNone
	nr.name = ""
	nr.src = r.src.Canonical()
	return &nr
}

// Equivalent reports whether r and other target the same
// logical cached data, i.e. whether their canonical keys
// match. See Key.
func (r *Relation) Equivalent(other *Relation) bool {
	return r.Key() == other.Key()
}
