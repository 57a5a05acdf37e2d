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
	"errors"
	"strings"
	"testing"

	"github.com/terndb/tern/schema"
)

var fiveRows = []schema.Row{
	{int64(1), "a"},
	{int64(2), "b"},
	{int64(3), "c"},
	{int64(4), "d"},
	{int64(5), "e"},
}

func TestBatchBoundaries(t *testing.T) {
	src := twoColSource("t", fiveRows)
	rows := &sliceRows{rows: fiveRows}
	lim := Limits{MaxRows: 2, MaxBytes: DefaultMaxBytes}
	var got []schema.Row
	var counts []int
	for rows.More() {
		b, err := buildBatch(rows, src.out, false, "", lim)
		if err != nil {
			t.Fatal(err)
		}
		counts = append(counts, b.Rows)
		got = append(got, batchRows(t, src.out, false, "", b)...)
	}
	want := []int{2, 2, 1}
	if len(counts) != len(want) {
		t.Fatalf("got %d batches, want %d", len(counts), len(want))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("batch row counts %v, want %v", counts, want)
		}
	}
	if !rowsEqual(got, fiveRows) {
		t.Errorf("reconstructed rows %v != input %v", got, fiveRows)
	}
}

func TestByteLimit(t *testing.T) {
	// each row encodes to more than one byte, so a
	// 1-byte budget still admits exactly one row per batch
	rows := &sliceRows{rows: fiveRows}
	src := twoColSource("t", fiveRows)
	lim := Limits{MaxRows: DefaultMaxRows, MaxBytes: 1}
	n := 0
	for rows.More() {
		b, err := buildBatch(rows, src.out, false, "", lim)
		if err != nil {
			t.Fatal(err)
		}
		if b.Rows != 1 {
			t.Fatalf("batch admitted %d rows past the byte limit", b.Rows)
		}
		if b.SizeBytes() <= int64(lim.MaxBytes) {
			// the limit only blocks the second row; the entire
			// first row must still have been encoded
			t.Fatalf("suspiciously small batch: %d bytes", b.SizeBytes())
		}
		n++
	}
	if n != len(fiveRows) {
		t.Errorf("got %d batches, want %d", n, len(fiveRows))
	}
}

func TestOversizedRowAdmitted(t *testing.T) {
	big := strings.Repeat("x", 1<<16)
	rows := &sliceRows{rows: []schema.Row{
		{int64(1), big},
		{int64(2), "small"},
	}}
	src := twoColSource("t", nil)
	lim := Limits{MaxRows: DefaultMaxRows, MaxBytes: 1024}
	b, err := buildBatch(rows, src.out, false, "", lim)
	if err != nil {
		t.Fatal(err)
	}
	// the oversized first row is admitted whole, and the
	// batch exceeds the byte limit by at most that one row
	if b.Rows != 1 {
		t.Fatalf("got %d rows, want 1", b.Rows)
	}
	if !rows.More() {
		t.Fatal("second row was consumed")
	}
}

func TestMalformedRow(t *testing.T) {
	rows := &sliceRows{rows: []schema.Row{
		{int64(1), "a"},
		{int64(2)}, // one field against a 2-column schema
	}}
	src := twoColSource("t", nil)
	_, err := buildBatch(rows, src.out, false, "", Limits{}.withDefaults())
	var shape *RowShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("got %v, want *RowShapeError", err)
	}
	if shape.Want != 2 || shape.Got != 1 {
		t.Errorf("bad counts in %q", shape.Error())
	}
	if !strings.Contains(shape.Error(), "2") || !strings.Contains(shape.Error(), "[2]") {
		t.Errorf("diagnostic %q does not include the row", shape.Error())
	}
}

func TestTypeMismatchAborts(t *testing.T) {
	rows := &sliceRows{rows: []schema.Row{
		{"not an int", "a"},
	}}
	src := twoColSource("t", nil)
	if _, err := buildBatch(rows, src.out, false, "", Limits{}.withDefaults()); err == nil {
		t.Fatal("no error for mistyped column value")
	}
}

func TestEmptySourcePanics(t *testing.T) {
	src := twoColSource("t", nil)
	defer func() {
		if recover() == nil {
			t.Error("buildBatch on an exhausted source did not panic")
		}
	}()
	buildBatch(&sliceRows{}, src.out, false, "", Limits{}.withDefaults())
}
