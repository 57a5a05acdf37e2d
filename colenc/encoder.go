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

// Package colenc implements the per-column encoders used to
// materialize row data into compact column buffers.
//
// One encoder instance encodes one column of one batch:
// values are fed in row order with Append, the running encoded
// size is observable with Size, and Finish produces the final
// (optionally compressed) buffer along with summary statistics.
// Encoders are one-shot; an encoder is dead once finished.
package colenc

import (
	"encoding/binary"
	"fmt"

	"github.com/terndb/tern/compr"
	"github.com/terndb/tern/schema"
)

// Stats summarizes one finished column buffer.
type Stats struct {
	// Min and Max are the smallest and largest non-null
	// values encoded, with the Go type matching the
	// column's declared type. Both are nil if the column
	// contained no non-null values.
	Min, Max interface{}
	// Nulls is the number of null values encoded.
	Nulls int
	// Bytes is the size of the finished buffer,
	// after compression if any was applied.
	Bytes int
}

// Encoder encodes one column of one batch.
type Encoder interface {
	// Append encodes row[col]. It returns a *TypeError
	// if the value's runtime type is incompatible with
	// the column's declared type; such an error is fatal
	// to the batch being built.
	Append(row schema.Row, col int) error
	// Size returns the current encoded size in bytes,
	// before compression. Size is monotonically
	// non-decreasing over the life of the encoder.
	Size() int
	// Finish consumes the encoder and returns the final
	// column buffer plus its statistics. Finish panics
	// if called twice.
	Finish() ([]byte, Stats)
}

// Params configures a new encoder.
type Params struct {
	// Name is the column name, used in diagnostics.
	Name string
	// Compressed selects whether Finish compresses
	// the buffer.
	Compressed bool
	// Algo is the compression algorithm used when
	// Compressed is set. The empty string selects zstd.
	Algo string
	// Hint is the expected number of rows; it sizes
	// the initial buffer allocation.
	Hint int
}

func (p *Params) algo() string {
	if p.Algo == "" {
		return "zstd"
	}
	return p.Algo
}

// TypeError indicates a value whose runtime type is
// incompatible with its column's declared type.
type TypeError struct {
	Column string
	Want   schema.Type
	Value  interface{}
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("colenc: column %q: cannot encode %T as %s", e.Column, e.Value, e.Want)
}

// BuilderFunc constructs an encoder for one column type.
type BuilderFunc func(p Params) Encoder

var registry = map[schema.Type]BuilderFunc{
	schema.Bool:      newBoolEncoder,
	schema.Int64:     newInt64Encoder,
	schema.Float64:   newFloat64Encoder,
	schema.String:    newStringEncoder,
	schema.Bytes:     newBytesEncoder,
	schema.Timestamp: newTimestampEncoder,
}

// Register installs a builder for typ, replacing any
// existing builder. Register must not be called
// concurrently with New.
func Register(typ schema.Type, fn BuilderFunc) {
	registry[typ] = fn
}

// New constructs an encoder for the given column type.
func New(typ schema.Type, p Params) (Encoder, error) {
	fn := registry[typ]
	if fn == nil {
		return nil, fmt.Errorf("colenc: no encoder registered for type %s", typ)
	}
	if p.Compressed && compr.Compression(p.algo()) == nil {
		return nil, fmt.Errorf("colenc: unknown compression %q", p.Algo)
	}
	return fn(p), nil
}

// column is the state shared by all built-in encoders:
// a null bitmap plus a value buffer, assembled by Finish
// into [uvarint rows][bitmap][values].
type column struct {
	name  string
	comp  compr.Compressor
	nulls []byte // bitmap; bit set = null
	data  []byte
	rows  int
	nullc int
	done  bool
}

func newColumn(p Params, width int) column {
	c := column{name: p.Name}
	if p.Compressed {
		c.comp = compr.Compression(p.algo())
	}
	if p.Hint > 0 {
		c.nulls = make([]byte, 0, (p.Hint+7)/8)
		if width > 0 {
			c.data = make([]byte, 0, p.Hint*width)
		}
	}
	return c
}

// mark records one row as null (isnull) or present.
func (c *column) mark(isnull bool) {
	if c.rows%8 == 0 {
		c.nulls = append(c.nulls, 0)
	}
	if isnull {
		c.nulls[c.rows/8] |= 1 << (c.rows % 8)
		c.nullc++
	}
	c.rows++
}

func (c *column) size() int {
	return len(c.data) + len(c.nulls)
}

func (c *column) typeError(want schema.Type, v interface{}) error {
	return &TypeError{Column: c.name, Want: want, Value: v}
}

// finish assembles the final buffer and the
// type-independent portion of the statistics.
func (c *column) finish(min, max interface{}) ([]byte, Stats) {
	if c.done {
		panic("colenc: Finish called twice on column " + c.name)
	}
	c.done = true
	buf := make([]byte, 0, binary.MaxVarintLen64+len(c.nulls)+len(c.data))
	buf = binary.AppendUvarint(buf, uint64(c.rows))
	buf = append(buf, c.nulls...)
	buf = append(buf, c.data...)
	if c.comp != nil {
		buf = compr.Frame(c.comp, buf, nil)
	}
	if c.nullc == c.rows {
		// no non-null values observed
		min, max = nil, nil
	}
	return buf, Stats{Min: min, Max: max, Nulls: c.nullc, Bytes: len(buf)}
}
