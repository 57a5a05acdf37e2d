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

package colenc

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/terndb/tern/schema"
)

type int64Encoder struct {
	column
	min, max int64
	seen     bool
}

func newInt64Encoder(p Params) Encoder {
	return &int64Encoder{column: newColumn(p, 8)}
}

func (e *int64Encoder) Append(row schema.Row, col int) error {
	v := row[col]
	if v == nil {
		e.mark(true)
		return nil
	}
	var i int64
	switch v := v.(type) {
	case int64:
		i = v
	case int:
		i = int64(v)
	default:
		return e.typeError(schema.Int64, v)
	}
	if !e.seen || i < e.min {
		e.min = i
	}
	if !e.seen || i > e.max {
		e.max = i
	}
	e.seen = true
	e.data = binary.LittleEndian.AppendUint64(e.data, uint64(i))
	e.mark(false)
	return nil
}

func (e *int64Encoder) Size() int { return e.size() }

func (e *int64Encoder) Finish() ([]byte, Stats) {
	return e.finish(e.min, e.max)
}

type float64Encoder struct {
	column
	min, max float64
	seen     bool
}

func newFloat64Encoder(p Params) Encoder {
	return &float64Encoder{column: newColumn(p, 8)}
}

func (e *float64Encoder) Append(row schema.Row, col int) error {
	v := row[col]
	if v == nil {
		e.mark(true)
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return e.typeError(schema.Float64, v)
	}
	if !e.seen || f < e.min {
		e.min = f
	}
	if !e.seen || f > e.max {
		e.max = f
	}
	e.seen = true
	e.data = binary.LittleEndian.AppendUint64(e.data, math.Float64bits(f))
	e.mark(false)
	return nil
}

func (e *float64Encoder) Size() int { return e.size() }

func (e *float64Encoder) Finish() ([]byte, Stats) {
	return e.finish(e.min, e.max)
}

type boolEncoder struct {
	column
	min, max bool // false < true
	seen     bool
}

func newBoolEncoder(p Params) Encoder {
	// bit-packed values; width hint handled manually
	return &boolEncoder{column: newColumn(p, 0)}
}

func (e *boolEncoder) Append(row schema.Row, col int) error {
	v := row[col]
	if v == nil {
		e.mark(true)
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return e.typeError(schema.Bool, v)
	}
	if !e.seen {
		e.min, e.max = b, b
	} else if b {
		e.max = true
	} else {
		e.min = false
	}
	e.seen = true
	// values are bit-packed by non-null position
	valued := e.rows - e.nullc
	if valued%8 == 0 {
		e.data = append(e.data, 0)
	}
	if b {
		e.data[valued/8] |= 1 << (valued % 8)
	}
	e.mark(false)
	return nil
}

func (e *boolEncoder) Size() int { return e.size() }

func (e *boolEncoder) Finish() ([]byte, Stats) {
	return e.finish(e.min, e.max)
}

type stringEncoder struct {
	column
	min, max string
	seen     bool
}

func newStringEncoder(p Params) Encoder {
	return &stringEncoder{column: newColumn(p, 16)}
}

func (e *stringEncoder) Append(row schema.Row, col int) error {
	v := row[col]
	if v == nil {
		e.mark(true)
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return e.typeError(schema.String, v)
	}
	if !e.seen || s < e.min {
		e.min = s
	}
	if !e.seen || s > e.max {
		e.max = s
	}
	e.seen = true
	e.data = binary.AppendUvarint(e.data, uint64(len(s)))
	e.data = append(e.data, s...)
	e.mark(false)
	return nil
}

func (e *stringEncoder) Size() int { return e.size() }

func (e *stringEncoder) Finish() ([]byte, Stats) {
	return e.finish(e.min, e.max)
}

type bytesEncoder struct {
	column
	min, max []byte
	seen     bool
}

func newBytesEncoder(p Params) Encoder {
	return &bytesEncoder{column: newColumn(p, 16)}
}

func (e *bytesEncoder) Append(row schema.Row, col int) error {
	v := row[col]
	if v == nil {
		e.mark(true)
		return nil
	}
	b, ok := v.([]byte)
	if !ok {
		return e.typeError(schema.Bytes, v)
	}
	// an empty value clones to a non-nil empty slice,
	// so it is distinguishable from "no value"
	if !e.seen || bytes.Compare(b, e.min) < 0 {
		e.min = make([]byte, len(b))
		copy(e.min, b)
	}
	if !e.seen || bytes.Compare(b, e.max) > 0 {
		e.max = make([]byte, len(b))
		copy(e.max, b)
	}
	e.seen = true
	e.data = binary.AppendUvarint(e.data, uint64(len(b)))
	e.data = append(e.data, b...)
	e.mark(false)
	return nil
}

func (e *bytesEncoder) Size() int { return e.size() }

func (e *bytesEncoder) Finish() ([]byte, Stats) {
	var min, max interface{}
	if e.seen {
		min, max = e.min, e.max
	}
	return e.finish(min, max)
}

type timestampEncoder struct {
	column
	min, max time.Time
	seen     bool
}

func newTimestampEncoder(p Params) Encoder {
	return &timestampEncoder{column: newColumn(p, 8)}
}

func (e *timestampEncoder) Append(row schema.Row, col int) error {
	v := row[col]
	if v == nil {
		e.mark(true)
		return nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return e.typeError(schema.Timestamp, v)
	}
	if !e.seen || t.Before(e.min) {
		e.min = t
	}
	if !e.seen || t.After(e.max) {
		e.max = t
	}
	e.seen = true
	e.data = binary.LittleEndian.AppendUint64(e.data, uint64(t.UnixMicro()))
	e.mark(false)
	return nil
}

func (e *timestampEncoder) Size() int { return e.size() }

func (e *timestampEncoder) Finish() ([]byte, Stats) {
	return e.finish(e.min, e.max)
}
