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
	"encoding/binary"

	"github.com/dchest/siphash"
)

// fixed siphash keys; cache keys only need to be
// stable within one process
const (
	keyK0 = 0x7472656e6462634b
	keyK1 = 0x696d72656c6b6579
)

// Key identifies a relation's logical cached data.
// Two relations with equal keys are cache-equivalent:
// a cache lookup for one may be satisfied by the other.
type Key uint64

// Key returns the canonical cache key for r: a hash of
// the canonicalized relation, covering the normalized
// output schema, the ordering, and the canonical source
// form. The cache name, storage policy and attribute
// identities deliberately do not participate.
func (r *Relation) Key() Key {
	c := r.Canonical()
	var buf []byte
	buf = binary.AppendUvarint(buf, uint64(len(c.out)))
	for i := range c.out {
		buf = append(buf, byte(c.out[i].Type))
		buf = append(buf, c.out[i].ID[:]...)
	}
	buf = binary.AppendUvarint(buf, uint64(len(c.ordering)))
	for i := range c.ordering {
		buf = binary.AppendUvarint(buf, uint64(c.ordering[i].Column))
		if c.ordering[i].Desc {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	buf = append(buf, c.src.String()...)
	return Key(siphash.Hash(keyK0, keyK1, buf))
}
