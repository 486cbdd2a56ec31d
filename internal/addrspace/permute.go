package addrspace

import "sort"

// Apply runs f over a sorted copy of xs and returns f's output realigned to
// xs's original order. f receives its input already sorted by less and must
// return one output per element, aligned with that sorted input.
//
// This is the designated pattern for algorithms that need sorted input
// (lockstep walks against another sorted sequence) but whose callers expect
// output in the order they supplied: a stable argsort followed by an
// inverse-permutation scatter. It is oblivious to the element and result
// types, so it is reused by the normalizer and by any resolver that batches
// lookups.
func Apply[T any, R any](xs []T, less func(a, b T) bool, f func(sorted []T) []R) []R {
	n := len(xs)
	if n == 0 {
		return nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return less(xs[order[i]], xs[order[j]])
	})

	sorted := make([]T, n)
	for i, idx := range order {
		sorted[i] = xs[idx]
	}

	sortedOut := f(sorted)

	out := make([]R, n)
	for i, idx := range order {
		out[idx] = sortedOut[i]
	}
	return out
}

// IsSorted reports whether xs is already sorted under less, letting callers
// skip the permutation machinery on the already-sorted fast path.
func IsSorted[T any](xs []T, less func(a, b T) bool) bool {
	for i := 1; i < len(xs); i++ {
		if less(xs[i], xs[i-1]) {
			return false
		}
	}
	return true
}
