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
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/terndb/tern/colenc"
	"github.com/terndb/tern/schema"
)

type sliceRows struct {
	rows []schema.Row
	i    int
}

func (s *sliceRows) More() bool { return s.i < len(s.rows) }

func (s *sliceRows) Next() (schema.Row, error) {
	r := s.rows[s.i]
	s.i++
	return r, nil
}

// memSource is an in-memory Source used throughout
// the tests; it counts Open calls so tests can assert
// that views never trigger recomputation.
type memSource struct {
	name  string
	out   schema.Schema
	parts [][]schema.Row
	stats Stats
	opens int32
}

func (m *memSource) Schema() schema.Schema { return m.out }
func (m *memSource) Partitions() int       { return len(m.parts) }
func (m *memSource) Stats() Stats          { return m.stats }
func (m *memSource) String() string        { return m.name }

func (m *memSource) Open(_ context.Context, p int) (RowSource, error) {
	atomic.AddInt32(&m.opens, 1)
	return &sliceRows{rows: m.parts[p]}, nil
}

func (m *memSource) Canonical() Source {
	return &memSource{name: m.name, out: m.out.Renumbered(), parts: m.parts}
}

func (m *memSource) opened() int { return int(atomic.LoadInt32(&m.opens)) }

func twoColSource(name string, parts ...[]schema.Row) *memSource {
	return &memSource{
		name: name,
		out: schema.Schema{
			schema.NewAttribute("id", schema.Int64),
			schema.NewAttribute("word", schema.String),
		},
		parts: parts,
	}
}

// faultSource yields a corrupted copy of partition 0 on
// its first open and the real rows on every open after
// that, modeling a transient upstream failure.
type faultSource struct {
	*memSource
	failed int32
}

func (f *faultSource) Open(ctx context.Context, p int) (RowSource, error) {
	rs, err := f.memSource.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	if p == 0 && atomic.CompareAndSwapInt32(&f.failed, 0, 1) {
		sr := rs.(*sliceRows)
		bad := append([]schema.Row{}, sr.rows...)
		bad = append(bad, schema.Row{int64(99)}) // short row
		return &sliceRows{rows: bad}, nil
	}
	return rs, nil
}

// batchRows decodes one batch back into its rows.
func batchRows(t *testing.T, s schema.Schema, compressed bool, algo string, b CachedBatch) []schema.Row {
	t.Helper()
	if len(b.Buffers) != len(s) {
		t.Fatalf("batch has %d buffers for %d columns", len(b.Buffers), len(s))
	}
	if len(b.Stats) != len(s) {
		t.Fatalf("batch has %d stats for %d columns", len(b.Stats), len(s))
	}
	cols := make([][]interface{}, len(s))
	for i := range s {
		vals, err := colenc.Decode(s[i].Type, compressed, algo, b.Buffers[i])
		if err != nil {
			t.Fatalf("decode column %d: %s", i, err)
		}
		if len(vals) != b.Rows {
			t.Fatalf("column %d has %d rows; batch says %d", i, len(vals), b.Rows)
		}
		cols[i] = vals
	}
	rows := make([]schema.Row, b.Rows)
	for r := range rows {
		rows[r] = make(schema.Row, len(s))
		for c := range s {
			rows[r][c] = cols[c][r]
		}
	}
	return rows
}

// storedRows concatenates and decodes every batch of a
// partition from the store, in emission order.
func storedRows(t *testing.T, r *Relation, store *MemStore, part int) []schema.Row {
	t.Helper()
	compressed, algo := r.Compressed()
	var rows []schema.Row
	for _, b := range store.Partition(r.State().Name(), part) {
		rows = append(rows, batchRows(t, r.Schema(), compressed, algo, b)...)
	}
	return rows
}

// logf adapts a strings.Builder into a Logger.
type testLogger struct {
	sb *strings.Builder
}

func (l testLogger) Printf(f string, args ...interface{}) {
	fmt.Fprintf(l.sb, f+"\n", args...)
}

func logf(sb *strings.Builder) Logger { return testLogger{sb} }

func rowsEqual(a, b []schema.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
