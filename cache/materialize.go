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

import "github.com/terndb/tern/schema"

// Materializer turns one partition's row sequence into a
// lazy, forward-only sequence of cached batches. It is
// pull-based: More delegates to the underlying row source,
// and each Next builds exactly one batch, publishing the
// batch's encoded size to the relation's in-progress size
// estimate. The sizes become part of the durable
// accumulator only when the partition commits; an attempt
// that fails withdraws everything it published.
//
// A Materializer is not restartable. Once consumed, the
// underlying row source is exhausted; re-iteration requires
// recomputing the partition from the original source.
// Materialization therefore happens at most once per
// partition under normal operation, but is not guaranteed
// exactly-once if the execution substrate re-runs a
// partition; see CacheState.CommitPartition.
type Materializer struct {
	src        RowSource
	schema     schema.Schema
	compressed bool
	algo       string
	lim        Limits
	state      *CacheState
	partition  int
	count      bool  // publish batch sizes to the size estimate
	bytes      int64 // published so far by this attempt
}

// Partition returns the partition index this
// materializer was opened for.
func (m *Materializer) Partition() int { return m.partition }

// More reports whether the partition has rows left,
// i.e. whether another call to Next is legal.
func (m *Materializer) More() bool { return m.src.More() }

// Next builds the next batch. Errors are fatal to the
// partition: no partial batch is emitted, the attempt's
// published sizes are withdrawn from the estimate, and
// the caller is expected to abort and surface the error
// to the execution substrate's task-failure handling.
func (m *Materializer) Next() (CachedBatch, error) {
	batch, err := buildBatch(m.src, m.schema, m.compressed, m.algo, m.lim)
	if err != nil {
		m.abandon()
		return CachedBatch{}, err
	}
	if m.count {
		n := batch.SizeBytes()
		m.bytes += n
		m.state.addPending(n)
	}
	return batch, nil
}

// abandon withdraws this attempt's contribution to the
// in-progress size estimate. A later retry of the same
// partition starts from a clean slate, so the committed
// total is never double-counted.
func (m *Materializer) abandon() {
	if m.bytes != 0 {
		m.state.addPending(-m.bytes)
		m.bytes = 0
	}
}

// Drain consumes the remainder of the partition and
// returns all of its batches in emission order.
func (m *Materializer) Drain() ([]CachedBatch, error) {
	var batches []CachedBatch
	for m.More() {
		b, err := m.Next()
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
