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

// Package compr provides a unified interface wrapping
// third-party compression libraries, plus a small framing
// format for compressed column buffers that records the
// decompressed size up front.
package compr

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses finished column buffers.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress appends the compressed contents
	// of src to dst and returns the result.
	Compress(src, dst []byte) []byte
}

// Decompressor is the inverse of a Compressor
// with a matching Name.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	// See also Compressor.Name.
	Name() string
	// Decompress decompresses source data into dst.
	// dst must be exactly the size of the original
	// input passed to Compress.
	//
	// It must be safe to make multiple calls to
	// Decompress simultaneously from different goroutines.
	Decompress(src, dst []byte) error
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (z zstdCompressor) Name() string { return "zstd" }

var zstdDecoder *zstd.Decoder

func init() {
	// by default, concurrency is set to min(4, GOMAXPROCS);
	// we'd like it to *always* be GOMAXPROCS
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

type zstdDecompressor struct{}

func (zstdDecompressor) Name() string { return "zstd" }

func (zstdDecompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := zstdDecoder.DecodeAll(src, into)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("expected %d bytes decompressed; got %d", len(dst), len(ret))
	}
	// the decoder should not have had to
	// realloc the buffer
	if &ret[0] != &dst[0] {
		return fmt.Errorf("zstd decompress: output buffer realloc'd")
	}
	return nil
}

type s2Compressor struct{}

func (s2Compressor) Compress(src, dst []byte) []byte {
	got := s2.Encode(nil, src)
	return append(dst, got...)
}

func (s2Compressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := s2.Decode(into, src)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("expected %d bytes decompressed; got %d", len(dst), len(ret))
	}
	if &ret[0] != &dst[0] {
		return fmt.Errorf("s2 decompress: output buffer realloc'd")
	}
	return nil
}

func (s2Compressor) Name() string { return "s2" }

// Compression selects a compression algorithm by name.
// The returned Compressor will return the same value
// for Compressor.Name as the specified name.
// Compression returns nil if the name is not recognized.
func Compression(name string) Compressor {
	switch name {
	case "zstd-better":
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

// Decompression selects a decompression algorithm by name.
// Decompression returns nil if the name is not recognized.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd", "zstd-better":
		return zstdDecompressor{}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

// Frame appends a compressed frame of src to dst:
// the decompressed size as a uvarint, followed by
// the output of comp.Compress(src).
//
// Frames produced by different Compressors are not
// self-identifying; the caller is expected to know
// which algorithm produced a frame.
func Frame(comp Compressor, src, dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(src)))
	return comp.Compress(src, dst)
}

// Unframe decompresses a frame produced by Frame
// using the provided Decompressor and returns the
// original contents.
func Unframe(dec Decompressor, src []byte) ([]byte, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, fmt.Errorf("compr: bad frame header")
	}
	if size == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, size)
	if err := dec.Decompress(src[n:], dst); err != nil {
		return nil, fmt.Errorf("compr: unframe %s: %w", dec.Name(), err)
	}
	return dst, nil
}
