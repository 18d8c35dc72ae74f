/*
 * ram-remanence-tester - Physical memory region table
 *
 * Copyright 2026, Dasharo
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package region holds the Region Table: a fixed-capacity, ordered set
// of page-aligned physical memory regions. It is mutated only through
// Append (populated by the memory map normalizer at boot) and
// RemoveRange (the Exclude phase's splice operation). Physical memory
// access itself never happens here -- the table only ever describes
// spans, it never touches them.
package region

import (
	"errors"
	"fmt"
)

const (
	// PageSize is the unit of exclusion: 4 KiB.
	PageSize = 4096

	// Align is the 16 MiB alignment every region must start on (and be
	// sized to a multiple of) when first populated by the normalizer.
	Align = 16 * 1024 * 1024

	// MinPages is the minimum region size in pages: 16 MiB worth.
	MinPages = Align / PageSize

	// MaxRegions is the hardware-bounded table capacity.
	MaxRegions = 200
)

// Sentinel errors for the contract violations named in the spec's
// error-kind table. Callers that must halt on these (the Phase Engine)
// do so through the fatal package; callers that merely probe validity
// can use errors.Is.
var (
	// ErrUnderflowRemoval is returned by RemoveRange when asked to
	// remove the sole remaining region from the table.
	ErrUnderflowRemoval = errors.New("region: cannot remove the last region in the table")

	// ErrCapacityExceeded is returned when a middle-split would need a
	// slot beyond the table's fixed capacity.
	ErrCapacityExceeded = errors.New("region: capacity exceeded")

	// ErrInvalidRange is returned when the requested sub-range is not
	// fully contained within the named region.
	ErrInvalidRange = errors.New("region: sub-range not contained in region")

	// ErrIndexOutOfRange is returned for an out-of-bounds region index.
	ErrIndexOutOfRange = errors.New("region: index out of range")
)

// Region is an immutable-while-iterated physical address span.
type Region struct {
	Base  uint64 // physical address
	Pages uint64 // page count
}

// End returns the first byte address past the region.
func (r Region) End() uint64 {
	return r.Base + r.Pages*PageSize
}

// Bytes returns the region's size in bytes.
func (r Region) Bytes() uint64 {
	return r.Pages * PageSize
}

// Table is the bounded, ordered sequence of regions.
type Table struct {
	regions [MaxRegions]Region
	length  int
}

// Len returns the number of populated regions.
func (t *Table) Len() int {
	return t.length
}

// Get returns the region at index i.
func (t *Table) Get(i int) (Region, error) {
	if i < 0 || i >= t.length {
		return Region{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return t.regions[i], nil
}

// TotalPages sums the page count of every region in the table.
func (t *Table) TotalPages() uint64 {
	var total uint64
	for i := 0; i < t.length; i++ {
		total += t.regions[i].Pages
	}
	return total
}

// Reset empties the table in place, for reuse across phases.
func (t *Table) Reset() {
	t.length = 0
}

// Append adds a region at the end of the table, as the normalizer does
// while building the canonical region set. It fails with
// ErrCapacityExceeded if the table is already full.
func (t *Table) Append(r Region) error {
	if t.length >= MaxRegions {
		return fmt.Errorf("%w: cannot append region", ErrCapacityExceeded)
	}
	t.regions[t.length] = r
	t.length++
	return nil
}

// RemoveRange excises the page-aligned sub-range [base, base+pages*4096)
// from region i. Preconditions: regions[i].Base <= base, and the
// sub-range must lie entirely within the region; both are checked and
// reported as ErrInvalidRange rather than assumed. The four splice
// cases are tried in the order given in the spec: whole-region,
// tail, head, then middle-split.
func (t *Table) RemoveRange(i int, base, pages uint64) error {
	if i < 0 || i >= t.length {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}

	r := t.regions[i]
	subEnd := base + pages*PageSize

	if base < r.Base || subEnd > r.End() || pages == 0 {
		return fmt.Errorf("%w: region [%#x,%#x) sub-range [%#x,%#x)", ErrInvalidRange, r.Base, r.End(), base, subEnd)
	}

	switch {
	case base == r.Base && subEnd == r.End():
		// Case 1: whole region.
		if t.length == 1 {
			return ErrUnderflowRemoval
		}
		for j := i + 1; j < t.length; j++ {
			t.regions[j-1] = t.regions[j]
		}
		t.length--

	case subEnd == r.End():
		// Case 2: tail.
		t.regions[i].Pages -= pages

	case base == r.Base:
		// Case 3: head.
		t.regions[i].Base += pages * PageSize
		t.regions[i].Pages -= pages

	default:
		// Case 4: middle split. Requires room for one more entry.
		if t.length >= MaxRegions {
			return fmt.Errorf("%w: middle split of region %d", ErrCapacityExceeded, i)
		}
		left := Region{Base: r.Base, Pages: (base - r.Base) / PageSize}
		right := Region{Base: subEnd, Pages: (r.End() - subEnd) / PageSize}

		for j := t.length; j > i+1; j-- {
			t.regions[j] = t.regions[j-1]
		}
		t.regions[i] = left
		t.regions[i+1] = right
		t.length++
	}

	return nil
}
