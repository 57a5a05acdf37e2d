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

package schema

import "testing"

func TestAttributeIdentity(t *testing.T) {
	a := NewAttribute("x", Int64)
	b := NewAttribute("x", Int64)
	if a.ID == b.ID {
		t.Fatal("two attributes share an ID")
	}
	c := a.WithNewID()
	if c.ID == a.ID {
		t.Fatal("WithNewID did not allocate a fresh ID")
	}
	if c.Name != a.Name || c.Type != a.Type {
		t.Fatal("WithNewID changed name or type")
	}
}

func TestSchemaCompatible(t *testing.T) {
	s := Schema{NewAttribute("a", Int64), NewAttribute("b", String)}
	renamed := Schema{NewAttribute("x", Int64), NewAttribute("y", String)}
	if !s.Compatible(renamed) {
		t.Error("renaming should be compatible")
	}
	if s.Equal(renamed) {
		t.Error("renaming should not be Equal")
	}
	if !s.Equal(s) {
		t.Error("schema not Equal to itself")
	}
	swapped := Schema{NewAttribute("b", String), NewAttribute("a", Int64)}
	if s.Compatible(swapped) {
		t.Error("reordered types should not be compatible")
	}
}

func TestRenumbered(t *testing.T) {
	s := Schema{NewAttribute("a", Int64), NewAttribute("b", String)}
	again := Schema{s[0].WithNewID(), s[1].WithNewID()}
	r1, r2 := s.Renumbered(), again.Renumbered()
	if !r1.Equal(r2) {
		t.Fatal("renumbered forms differ across instances")
	}
	// renumbering is deterministic and position-based
	if r1[0].ID == r1[1].ID {
		t.Fatal("distinct positions renumbered to the same ID")
	}
	if !s.Equal(s) {
		t.Fatal("Renumbered mutated the receiver")
	}
}

func TestOrderingEqual(t *testing.T) {
	o := Ordering{{Column: 0}, {Column: 1, Desc: true}}
	if !o.Equal(Ordering{{Column: 0}, {Column: 1, Desc: true}}) {
		t.Error("equal orderings differ")
	}
	if o.Equal(Ordering{{Column: 0}}) {
		t.Error("prefix ordering compared equal")
	}
}

func TestTypeString(t *testing.T) {
	if Int64.String() != "int64" || Timestamp.String() != "timestamp" {
		t.Error("bad type names")
	}
	if Type(250).String() == "" {
		t.Error("out-of-range type has empty name")
	}
}
