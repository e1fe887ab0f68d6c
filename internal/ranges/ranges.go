// Package ranges provides half-open [base, base+size) interval arithmetic
// over 64-bit physical and virtual addresses. Every operation is pure and
// total; a zero-size range is a valid value that overlaps and contains
// nothing but itself.
package ranges

import (
	"fmt"
	"math"
	"sort"
)

// Range is a half-open address interval [Base, Base+Size).
type Range struct {
	Base uint64
	Size uint64
}

// New constructs a Range, rejecting intervals whose end would wrap the
// 64-bit address space.
func New(base, size uint64) (Range, error) {
	if size > math.MaxUint64-base {
		return Range{}, fmt.Errorf("range end overflows 64 bits: base=%#x size=%#x", base, size)
	}
	return Range{Base: base, Size: size}, nil
}

// End returns the first address past the range. Valid only for ranges that
// passed the New overflow check.
func (r Range) End() uint64 {
	return r.Base + r.Size
}

// IsEmpty reports whether the range covers no addresses.
func (r Range) IsEmpty() bool {
	return r.Size == 0
}

// Overlaps reports whether the two half-open intervals share at least one
// address. Empty ranges never overlap anything.
func (r Range) Overlaps(o Range) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.Base < o.End() && o.Base < r.End()
}

// Contains reports whether every address of inner lies in r. An empty inner
// range is contained only in itself.
func (r Range) Contains(inner Range) bool {
	if inner.IsEmpty() {
		return r == inner
	}
	if r.IsEmpty() {
		return false
	}
	return r.Base <= inner.Base && inner.End() <= r.End()
}

// ContainsAddr reports whether the single address a lies in r.
func (r Range) ContainsAddr(a uint64) bool {
	return !r.IsEmpty() && r.Base <= a && a < r.End()
}

// Aligned reports whether the range base sits on a granularity boundary.
// Granularity zero is never aligned.
func (r Range) Aligned(granularity uint64) bool {
	return granularity != 0 && r.Base%granularity == 0
}

// SizeAligned reports whether the range size is a whole number of
// granularity units.
func (r Range) SizeAligned(granularity uint64) bool {
	return granularity != 0 && r.Size%granularity == 0
}

func (r Range) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Base, r.End())
}

// MergeAdjacent coalesces overlapping or touching ranges into maximal
// disjoint ranges, sorted by base. Empty ranges are dropped. The input
// slice is not modified.
func MergeAdjacent(rs []Range) []Range {
	work := make([]Range, 0, len(rs))
	for _, r := range rs {
		if !r.IsEmpty() {
			work = append(work, r)
		}
	}
	if len(work) == 0 {
		return nil
	}
	sort.Slice(work, func(i, j int) bool {
		if work[i].Base != work[j].Base {
			return work[i].Base < work[j].Base
		}
		return work[i].Size < work[j].Size
	})

	merged := []Range{work[0]}
	for _, r := range work[1:] {
		last := &merged[len(merged)-1]
		if r.Base <= last.End() {
			if r.End() > last.End() {
				last.Size = r.End() - last.Base
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Gaps returns the sub-ranges of outer not covered by any range in rs.
// Ranges in rs falling outside outer are clipped; the result is sorted and
// disjoint.
func Gaps(outer Range, rs []Range) []Range {
	if outer.IsEmpty() {
		return nil
	}
	var gaps []Range
	cursor := outer.Base
	for _, r := range MergeAdjacent(rs) {
		if r.End() <= outer.Base || r.Base >= outer.End() {
			continue
		}
		base := r.Base
		if base < outer.Base {
			base = outer.Base
		}
		if base > cursor {
			gaps = append(gaps, Range{Base: cursor, Size: base - cursor})
		}
		if r.End() > cursor {
			cursor = r.End()
		}
	}
	if cursor < outer.End() {
		gaps = append(gaps, Range{Base: cursor, Size: outer.End() - cursor})
	}
	return gaps
}
