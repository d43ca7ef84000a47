package cron

import (
	"math/bits"
	"strconv"
	"strings"
)

// maxDomain is the largest domain size a Set can hold.
const maxDomain = 64

// Set is a membership set over the small integer domain [0, size).
//
// Values outside the domain are ignored on insert and never contained.
// The zero value is an empty set over an empty domain; use NewSet.
type Set struct {
	bits uint64
	size uint8
}

// NewSet returns an empty set over [0, size). size is clamped to 64.
func NewSet(size int) Set {
	if size < 0 {
		size = 0
	}
	if size > maxDomain {
		size = maxDomain
	}
	return Set{size: uint8(size)}
}

// Size is the domain size.
func (s Set) Size() int { return int(s.size) }

func (s Set) Contains(v int) bool {
	if v < 0 || v >= int(s.size) {
		return false
	}
	return s.bits&(1<<uint(v)) != 0
}

// Add inserts v. Inserting a member again is a no-op.
func (s *Set) Add(v int) {
	if v < 0 || v >= int(s.size) {
		return
	}
	s.bits |= 1 << uint(v)
}

// AddRange inserts lo, lo+step, ... while the value is <= hi and inside the
// domain. Insertion stops at the domain ceiling whatever hi says, so a large
// hi means "to the end of the domain". A step below 1 inserts only lo.
func (s *Set) AddRange(lo, hi, step int) {
	if step < 1 {
		if lo <= hi {
			s.Add(lo)
		}
		return
	}
	ceil := int(s.size) - 1
	if hi > ceil {
		hi = ceil
	}
	for v := lo; v <= hi; v += step {
		s.Add(v)
	}
}

// Fill inserts every value of the domain.
func (s *Set) Fill() {
	if s.size == maxDomain {
		s.bits = ^uint64(0)
		return
	}
	s.bits = (uint64(1) << s.size) - 1
}

func (s *Set) Clear() { s.bits = 0 }

func (s Set) Empty() bool { return s.bits == 0 }

func (s Set) Len() int { return bits.OnesCount64(s.bits) }

// Values returns the members in ascending order.
func (s Set) Values() []int {
	out := make([]int, 0, s.Len())
	for b := s.bits; b != 0; b &= b - 1 {
		out = append(out, bits.TrailingZeros64(b))
	}
	return out
}

// String renders the members as a comma separated list, e.g. "0,15,30,45".
func (s Set) String() string {
	vals := s.Values()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
