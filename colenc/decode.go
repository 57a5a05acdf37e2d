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
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/terndb/tern/compr"
	"github.com/terndb/tern/schema"
)

// Decode reverses a finished column buffer into its
// original values, with nil for nulls. compressed and
// algo must match the Params the buffer was encoded with.
func Decode(typ schema.Type, compressed bool, algo string, buf []byte) ([]interface{}, error) {
	if compressed {
		if algo == "" {
			algo = "zstd"
		}
		dec := compr.Decompression(algo)
		if dec == nil {
			return nil, fmt.Errorf("colenc: unknown compression %q", algo)
		}
		var err error
		buf, err = compr.Unframe(dec, buf)
		if err != nil {
			return nil, err
		}
	}
	rows64, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, fmt.Errorf("colenc: truncated column header")
	}
	rows := int(rows64)
	buf = buf[n:]
	bitmap := (rows + 7) / 8
	if len(buf) < bitmap {
		return nil, fmt.Errorf("colenc: null bitmap: have %d bytes, want %d", len(buf), bitmap)
	}
	nulls, vals := buf[:bitmap], buf[bitmap:]
	out := make([]interface{}, 0, rows)
	valued := 0
	for i := 0; i < rows; i++ {
		if nulls[i/8]&(1<<(i%8)) != 0 {
			out = append(out, nil)
			continue
		}
		var v interface{}
		var err error
		v, vals, err = decodeOne(typ, vals, valued)
		if err != nil {
			return nil, fmt.Errorf("colenc: row %d: %w", i, err)
		}
		out = append(out, v)
		valued++
	}
	return out, nil
}

// decodeOne decodes a single non-null value; valued is the
// count of non-null values already decoded (used by the
// bit-packed bool representation, which is not advanced
// byte-by-byte).
func decodeOne(typ schema.Type, vals []byte, valued int) (interface{}, []byte, error) {
	switch typ {
	case schema.Int64, schema.Float64, schema.Timestamp:
		if len(vals) < 8 {
			return nil, nil, fmt.Errorf("truncated %s value", typ)
		}
		u := binary.LittleEndian.Uint64(vals)
		rest := vals[8:]
		switch typ {
		case schema.Int64:
			return int64(u), rest, nil
		case schema.Float64:
			return math.Float64frombits(u), rest, nil
		default:
			return time.UnixMicro(int64(u)).UTC(), rest, nil
		}
	case schema.Bool:
		if len(vals) <= valued/8 {
			return nil, nil, fmt.Errorf("truncated bool value")
		}
		b := vals[valued/8]&(1<<(valued%8)) != 0
		// the bool bitmap is consumed positionally; the
		// slice is only advanced past it by the caller
		// reaching the end of the rows
		return b, vals, nil
	case schema.String, schema.Bytes:
		size, n := binary.Uvarint(vals)
		if n <= 0 || len(vals) < n+int(size) {
			return nil, nil, fmt.Errorf("truncated %s value", typ)
		}
		body := vals[n : n+int(size)]
		if typ == schema.String {
			return string(body), vals[n+int(size):], nil
		}
		out := make([]byte, size)
		copy(out, body)
		return out, vals[n+int(size):], nil
	default:
		return nil, nil, fmt.Errorf("no decoder for type %s", typ)
	}
}
