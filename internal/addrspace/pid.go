// Package addrspace holds the small value types and the sorted-batch
// permutation helper shared across the normalization and resolver layers.
package addrspace

import "strconv"

// Pid identifies the process whose address space a lookup concerns: either
// a concrete pid or the "self" sentinel (the profiler's own process).
type Pid struct {
	n    int
	self bool
}

// Self returns the "self" sentinel pid.
func Self() Pid { return Pid{self: true} }

// Of wraps a concrete positive pid.
func Of(n int) Pid { return Pid{n: n} }

// IsSelf reports whether p is the "self" sentinel.
func (p Pid) IsSelf() bool { return p.self }

// N returns the concrete pid value; it is meaningless when IsSelf is true.
func (p Pid) N() int { return p.n }

// ProcString renders the path component used under /proc for this pid:
// "self" for the sentinel, the decimal pid otherwise.
func (p Pid) ProcString() string {
	if p.self {
		return "self"
	}
	return strconv.Itoa(p.n)
}

func (p Pid) String() string { return p.ProcString() }
