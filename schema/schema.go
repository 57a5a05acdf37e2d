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

// Package schema describes the output shape of a cached relation:
// typed, uniquely-identified attributes plus the row values
// that flow through the materialization pipeline.
package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// Type is the declared type of a column.
type Type uint8

const (
	// Invalid is the zero Type; it is never
	// a legal column type.
	Invalid Type = iota
	Bool
	Int64
	Float64
	String
	Bytes
	Timestamp
)

var typeNames = [...]string{
	Invalid:   "invalid",
	Bool:      "bool",
	Int64:     "int64",
	Float64:   "float64",
	String:    "string",
	Bytes:     "bytes",
	Timestamp: "timestamp",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Attribute is one named, typed output column.
// The ID distinguishes attributes that happen to
// share a name and type; two structurally distinct
// references to the same cached data (as in a self-join)
// carry attributes with distinct IDs.
type Attribute struct {
	Name string
	Type Type
	ID   uuid.UUID
}

// NewAttribute constructs an attribute with a
// freshly-allocated unique ID.
func NewAttribute(name string, typ Type) Attribute {
	return Attribute{Name: name, Type: typ, ID: uuid.New()}
}

// WithNewID returns a copy of a with a
// freshly-allocated ID.
func (a Attribute) WithNewID() Attribute {
	a.ID = uuid.New()
	return a
}

// Schema is an ordered sequence of attributes.
type Schema []Attribute

// Types returns the column types in schema order.
func (s Schema) Types() []Type {
	types := make([]Type, len(s))
	for i := range s {
		types[i] = s[i].Type
	}
	return types
}

// Equal returns whether s and other have identical
// attributes, including their IDs.
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s, other)
}

// Compatible returns whether other could be a renaming
// of s: same length and same column types in order.
// Attribute names and IDs are not compared.
func (s Schema) Compatible(other Schema) bool {
	return slices.Equal(s.Types(), other.Types())
}

// Renumbered returns a copy of s with attribute IDs
// replaced by deterministic position-derived IDs.
// Two schemas that are renamings of one another
// renumber to equal values (modulo attribute names).
func (s Schema) Renumbered() Schema {
	out := make(Schema, len(s))
	for i := range s {
		out[i] = s[i]
		out[i].ID = positionID(i)
	}
	return out
}

// positionID produces the normalized ID for column i.
func positionID(i int) uuid.UUID {
	var id uuid.UUID
	id[12] = byte(i >> 24)
	id[13] = byte(i >> 16)
	id[14] = byte(i >> 8)
	id[15] = byte(i)
	return id
}

func (s Schema) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := range s {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", s[i].Name, s[i].Type)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Row is one input row, indexable by field position.
// Field values must be runtime-compatible with the
// declared column types; nil means NULL.
type Row []interface{}

// SortKey is one component of an output ordering.
type SortKey struct {
	// Column is the schema position of the sort column.
	Column int
	// Desc indicates a descending sort.
	Desc bool
}

// Ordering describes the output ordering of a relation,
// outermost key first. A nil Ordering means unordered.
type Ordering []SortKey

// Equal returns whether o and other describe
// the same ordering.
func (o Ordering) Equal(other Ordering) bool {
	return slices.Equal(o, other)
}
