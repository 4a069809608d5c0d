// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

import (
	"slices"
	"sort"
)

// Set is a sorted, duplicate-free list of strings. Keeping it sorted makes
// Task values compare equal regardless of discovery order, and keeps the
// encoded snapshot stable between runs.
//
// The zero value is an empty set ready to use.
type Set []string

// NewSet builds a Set from arbitrary values.
func NewSet(values ...string) Set {
	var s Set
	for _, v := range values {
		s = s.Add(v)
	}
	return s
}

// Add returns the set with v inserted. The receiver is not modified.
func (s Set) Add(v string) Set {
	i := sort.SearchStrings(s, v)
	if i < len(s) && s[i] == v {
		return s
	}
	out := make(Set, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	out = append(out, s[i:]...)
	return out
}

// Contains reports whether v is a member of the set.
func (s Set) Contains(v string) bool {
	i := sort.SearchStrings(s, v)
	return i < len(s) && s[i] == v
}

// Intersects reports whether s and other share at least one member.
func (s Set) Intersects(other Set) bool {
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] == other[j]:
			return true
		case s[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	return slices.Clone(s)
}
