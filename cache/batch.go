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

// Package cache materializes a row-oriented source into an
// in-memory, compressed, column-oriented cache organized as
// size-bounded batches, so that repeated scans of the same
// logical dataset can be served from memory.
//
// The public entry point is Relation; see New.
package cache

import (
	"fmt"

	"github.com/terndb/tern/colenc"
	"github.com/terndb/tern/schema"
)

const (
	// DefaultMaxRows is the default row-count limit
	// for a single batch.
	DefaultMaxRows = 10000
	// DefaultMaxBytes is the default encoded-size
	// limit for a single batch. The limit is checked
	// against a per-row snapshot of the cumulative
	// encoder state, so a batch may exceed it by at
	// most one row's contribution.
	DefaultMaxBytes = 4 << 20
)

// Limits bounds the size of one batch. Both limits
// are checked while filling a batch; filling stops
// as soon as either is reached.
type Limits struct {
	MaxRows  int
	MaxBytes int
}

func (l Limits) withDefaults() Limits {
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultMaxRows
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	return l
}

// RowSource is a pull-based sequence of rows for
// one partition. Next blocks until the source yields
// a row; it must only be called when More returns true.
type RowSource interface {
	More() bool
	Next() (schema.Row, error)
}

// CachedBatch is one immutable group of rows encoded
// column-wise. Buffers and Stats are in schema column
// order and always have one entry per output column;
// every buffer encodes exactly Rows rows.
type CachedBatch struct {
	Rows    int
	Buffers [][]byte
	Stats   []colenc.Stats
}

// SizeBytes is the total encoded size of the batch.
func (b *CachedBatch) SizeBytes() int64 {
	n := int64(0)
	for i := range b.Buffers {
		n += int64(len(b.Buffers[i]))
	}
	return n
}

// RowShapeError indicates a malformed input row whose
// field count does not match the output schema. It is
// fatal to the partition being materialized.
type RowShapeError struct {
	Want, Got int
	Row       schema.Row
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("cache: row has %d fields; schema requires %d: %v", e.Got, e.Want, e.Row)
}

// buildBatch drains src into exactly one batch,
// stopping at the first of lim.MaxRows rows or a
// cumulative encoded size of lim.MaxBytes.
//
// The byte check is a snapshot: after each admitted
// row the sizes of all encoders are re-summed, and
// the sum only gates admission of the *next* row.
// A single row that blows the byte budget on its own
// is therefore still admitted whole; rows are never
// truncated mid-batch.
//
// buildBatch must not be called on an exhausted source.
func buildBatch(src RowSource, s schema.Schema, compressed bool, algo string, lim Limits) (CachedBatch, error) {
	if !src.More() {
		panic("cache: buildBatch on exhausted row source")
	}
	encs := make([]colenc.Encoder, len(s))
	for i := range s {
		e, err := colenc.New(s[i].Type, colenc.Params{
			Name:       s[i].Name,
			Compressed: compressed,
			Algo:       algo,
			Hint:       lim.MaxRows,
		})
		if err != nil {
			return CachedBatch{}, err
		}
		encs[i] = e
	}
	rows := 0
	lastRowBytes := 0
	for src.More() && rows < lim.MaxRows && lastRowBytes < lim.MaxBytes {
		row, err := src.Next()
		if err != nil {
			return CachedBatch{}, err
		}
		if len(row) != len(s) {
			return CachedBatch{}, &RowShapeError{Want: len(s), Got: len(row), Row: row}
		}
		for i := range encs {
			if err := encs[i].Append(row, i); err != nil {
				return CachedBatch{}, err
			}
		}
		// recomputed from the live encoder state each row,
		// not accumulated across rows
		lastRowBytes = 0
		for i := range encs {
			lastRowBytes += encs[i].Size()
		}
		rows++
	}
	batch := CachedBatch{
		Rows:    rows,
		Buffers: make([][]byte, len(encs)),
		Stats:   make([]colenc.Stats, len(encs)),
	}
	for i := range encs {
		batch.Buffers[i], batch.Stats[i] = encs[i].Finish()
	}
	return batch, nil
}
