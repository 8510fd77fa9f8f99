// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package utils

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// MapKeys returns the keys of the map in no particular order.
func MapKeys[K comparable, V any](m map[K]V) []K {
	ks := make([]K, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}

// SortedKeys is MapKeys in ascending order.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	ks := MapKeys(m)
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}

// Filter returns the elements of s for which keep returns true. The input
// slice is not modified.
func Filter[T any](s []T, keep func(T) bool) []T {
	r := make([]T, 0, len(s))
	for _, v := range s {
		if keep(v) {
			r = append(r, v)
		}
	}
	return r
}

// SafeSub subtracts b from a, returning zero instead of wrapping.
func SafeSub[I constraints.Unsigned](a I, b I) I {
	if a < b {
		return 0
	}
	return a - b
}
