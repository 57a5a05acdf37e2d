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
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/terndb/tern/compr"
)

// Config is the externally-supplied cache policy,
// decoded from YAML (or JSON; the field tags are shared).
// Zero fields select the package defaults.
type Config struct {
	// Name is the explicit cache name.
	Name string `json:"name,omitempty"`
	// MaxRowsPerBatch bounds the rows in one batch.
	MaxRowsPerBatch int `json:"maxRowsPerBatch,omitempty"`
	// MaxBytesPerBatch bounds the encoded size of one
	// batch (see Limits for the exact check semantics).
	MaxBytesPerBatch int `json:"maxBytesPerBatch,omitempty"`
	// Compression is "zstd", "zstd-better", "s2", or
	// "none". Empty means zstd.
	Compression string `json:"compression,omitempty"`
	// Storage is "memory" or "none". Empty means memory.
	Storage string `json:"storage,omitempty"`
}

// DecodeConfig decodes and validates a Config.
func DecodeConfig(src []byte) (*Config, error) {
	c := new(Config)
	if err := yaml.Unmarshal(src, c); err != nil {
		return nil, fmt.Errorf("cache: decoding config: %w", err)
	}
	switch c.Compression {
	case "", "none":
	default:
		if compr.Compression(c.Compression) == nil {
			return nil, fmt.Errorf("cache: config: unknown compression %q", c.Compression)
		}
	}
	switch c.Storage {
	case "", "memory", "none":
	default:
		return nil, fmt.Errorf("cache: config: unknown storage %q", c.Storage)
	}
	if c.MaxRowsPerBatch < 0 || c.MaxBytesPerBatch < 0 {
		return nil, fmt.Errorf("cache: config: negative batch limit")
	}
	return c, nil
}

// Options converts the config into relation options.
func (c *Config) Options() Options {
	policy := StoreMemory
	if c.Storage == "none" {
		policy = StoreNone
	}
	return Options{
		Name:        c.Name,
		Compression: c.Compression,
		MaxRows:     c.MaxRowsPerBatch,
		MaxBytes:    c.MaxBytesPerBatch,
		Policy:      policy,
	}
}
