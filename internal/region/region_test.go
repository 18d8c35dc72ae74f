package region

import (
	"errors"
	"testing"
)

func mustAppend(t *testing.T, tbl *Table, r Region) {
	t.Helper()
	if err := tbl.Append(r); err != nil {
		t.Fatalf("Append(%+v): %v", r, err)
	}
}

func TestTotalPages(t *testing.T) {
	var tbl Table
	mustAppend(t, &tbl, Region{Base: 0, Pages: 4096})
	mustAppend(t, &tbl, Region{Base: 0x1_0000_0000, Pages: 8192})

	if got, want := tbl.TotalPages(), uint64(4096+8192); got != want {
		t.Errorf("TotalPages() = %d, want %d", got, want)
	}
}

func TestAppendCapacity(t *testing.T) {
	var tbl Table
	for i := 0; i < MaxRegions; i++ {
		mustAppend(t, &tbl, Region{Base: uint64(i) * Align, Pages: MinPages})
	}
	if err := tbl.Append(Region{Base: uint64(MaxRegions) * Align, Pages: MinPages}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Append past capacity: got %v, want ErrCapacityExceeded", err)
	}
}

// S2: excise tail -- region shrinks in place, length unchanged.
func TestRemoveRangeTail(t *testing.T) {
	var tbl Table
	mustAppend(t, &tbl, Region{Base: 0x8000_0000, Pages: 8192})

	tailBase := uint64(0x8000_0000) + 4096*PageSize
	if err := tbl.RemoveRange(0, tailBase, 4096); err != nil {
		t.Fatalf("RemoveRange: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
	got, _ := tbl.Get(0)
	want := Region{Base: 0x8000_0000, Pages: 4096}
	if got != want {
		t.Errorf("region after tail excision = %+v, want %+v", got, want)
	}
}

func TestRemoveRangeHead(t *testing.T) {
	var tbl Table
	mustAppend(t, &tbl, Region{Base: 0x8000_0000, Pages: 8192})

	if err := tbl.RemoveRange(0, 0x8000_0000, 4096); err != nil {
		t.Fatalf("RemoveRange: %v", err)
	}
	got, _ := tbl.Get(0)
	want := Region{Base: 0x8000_0000 + 4096*PageSize, Pages: 4096}
	if got != want {
		t.Errorf("region after head excision = %+v, want %+v", got, want)
	}
}

// S3: excise middle -- splits one region into two, length grows by one.
func TestRemoveRangeMiddleSplit(t *testing.T) {
	var tbl Table
	base := uint64(0x1_0000_0000)
	mustAppend(t, &tbl, Region{Base: base, Pages: 12288})

	if err := tbl.RemoveRange(0, base+4096*PageSize, 4096); err != nil {
		t.Fatalf("RemoveRange: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	left, _ := tbl.Get(0)
	right, _ := tbl.Get(1)
	if want := (Region{Base: base, Pages: 4096}); left != want {
		t.Errorf("left half = %+v, want %+v", left, want)
	}
	if want := (Region{Base: base + 8192*PageSize, Pages: 4096}); right != want {
		t.Errorf("right half = %+v, want %+v", right, want)
	}
}

// S4: excise whole region with a second region present -- table
// collapses to the surviving region, order preserved.
func TestRemoveRangeWholeRegion(t *testing.T) {
	var tbl Table
	a := Region{Base: 0x1000_0000, Pages: 4096}
	b := Region{Base: 0x2000_0000, Pages: 4096}
	mustAppend(t, &tbl, a)
	mustAppend(t, &tbl, b)

	if err := tbl.RemoveRange(0, a.Base, a.Pages); err != nil {
		t.Fatalf("RemoveRange: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
	got, _ := tbl.Get(0)
	if got != b {
		t.Errorf("sole survivor = %+v, want %+v", got, b)
	}
}

// Removing the last region in a length-1 table must be refused.
func TestRemoveRangeUnderflow(t *testing.T) {
	var tbl Table
	r := Region{Base: 0x1000_0000, Pages: 4096}
	mustAppend(t, &tbl, r)

	err := tbl.RemoveRange(0, r.Base, r.Pages)
	if !errors.Is(err, ErrUnderflowRemoval) {
		t.Fatalf("RemoveRange on sole region: got %v, want ErrUnderflowRemoval", err)
	}
	if tbl.Len() != 1 {
		t.Errorf("table mutated despite refused removal: Len() = %d", tbl.Len())
	}
}

func TestRemoveRangeInvalid(t *testing.T) {
	var tbl Table
	mustAppend(t, &tbl, Region{Base: 0x1000_0000, Pages: 4096})

	cases := []struct {
		name  string
		base  uint64
		pages uint64
	}{
		{"before region", 0x0FFF_F000, 1},
		{"past region end", 0x1000_0000 + 4095*PageSize, 2},
		{"zero pages", 0x1000_0000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tbl.RemoveRange(0, tc.base, tc.pages); !errors.Is(err, ErrInvalidRange) {
				t.Errorf("got %v, want ErrInvalidRange", err)
			}
		})
	}
}

// Splice correctness (property 4): the union of page addresses spanned
// by the table is preserved across a sequence of legal RemoveRange
// calls, split out into the remaining table plus the excised sub-ranges.
// The region containing each sub-range is looked up fresh before every
// call, mirroring how the Exclude phase locates the region it is
// currently scanning rather than assuming indices survive a split.
func TestRemoveRangePreservesPageUnion(t *testing.T) {
	type rng struct {
		base  uint64
		pages uint64
	}
	start := Region{Base: 0x2000_0000, Pages: 16384}

	excisions := []rng{
		{start.Base + 4096*PageSize, 4096},  // middle split
		{start.Base, 4096},                  // whole of the new first region
		{start.End() - 4096*PageSize, 4096}, // tail of the last region
	}

	var tbl Table
	mustAppend(t, &tbl, start)

	before := pageSet(&tbl)
	excised := make(map[uint64]bool)

	for _, e := range excisions {
		idx := indexContaining(t, &tbl, e.base)
		for p := uint64(0); p < e.pages; p++ {
			excised[e.base+p*PageSize] = true
		}
		if err := tbl.RemoveRange(idx, e.base, e.pages); err != nil {
			t.Fatalf("RemoveRange(%d, %#x, %d): %v", idx, e.base, e.pages, err)
		}
		if tbl.Len() < 1 || tbl.Len() > MaxRegions {
			t.Fatalf("Len() = %d out of [1,%d]", tbl.Len(), MaxRegions)
		}
	}

	after := pageSet(&tbl)
	for addr := range after {
		if !before[addr] {
			t.Fatalf("page %#x present after removal but not before", addr)
		}
	}
	for addr := range before {
		if !after[addr] && !excised[addr] {
			t.Fatalf("page %#x vanished without being excised", addr)
		}
	}
}

func indexContaining(t *testing.T, tbl *Table, addr uint64) int {
	t.Helper()
	for i := 0; i < tbl.Len(); i++ {
		r, _ := tbl.Get(i)
		if addr >= r.Base && addr < r.End() {
			return i
		}
	}
	t.Fatalf("no region contains address %#x", addr)
	return -1
}

func pageSet(tbl *Table) map[uint64]bool {
	set := make(map[uint64]bool)
	for i := 0; i < tbl.Len(); i++ {
		r, _ := tbl.Get(i)
		for p := uint64(0); p < r.Pages; p++ {
			set[r.Base+p*PageSize] = true
		}
	}
	return set
}
