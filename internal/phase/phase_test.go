package phase

import (
	"testing"

	"github.com/Dasharo/ram-remanence-tester/internal/pattern"
	"github.com/Dasharo/ram-remanence-tester/internal/persist"
	"github.com/Dasharo/ram-remanence-tester/internal/platform/simplatform"
	"github.com/Dasharo/ram-remanence-tester/internal/region"
)

func buildTable(t *testing.T, regions ...region.Region) *region.Table {
	t.Helper()
	var tbl region.Table
	for _, r := range regions {
		if err := tbl.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return &tbl
}

// TestWriteHappyPath mirrors a single 64 MiB region: every word must
// match next() starting from stir(page_base), and pages_done must
// equal the region's full page count.
func TestWriteHappyPath(t *testing.T) {
	base := uint64(0x1_0000_0000)
	pages := uint64(16384) // 64 MiB
	mem := simplatform.NewMemory(base, pages*region.PageSize)
	p := simplatform.New(mem, nil, 0)
	tbl := buildTable(t, region.Region{Base: base, Pages: pages})

	ctx, err := Write(tbl, p, p, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if ctx.PagesDone != pages {
		t.Errorf("PagesDone = %d, want %d", ctx.PagesDone, pages)
	}
	if p.FlushCount() != 1 {
		t.Errorf("FlushCount = %d, want 1", p.FlushCount())
	}

	for pg := uint64(0); pg < pages; pg++ {
		pageBase := base + pg*region.PageSize
		gen := pattern.Stir(pageBase)
		for q := uint64(0); q < wordsPerPage; q++ {
			want := gen.Next()
			got, err := p.ReadWord(pageBase + q*8)
			if err != nil {
				t.Fatalf("ReadWord: %v", err)
			}
			if got != want {
				t.Fatalf("page %d word %d = %#x, want %#x", pg, q, got, want)
			}
		}
	}
}

// TestExcludeTail simulates decay across every word of the final 4096
// pages of a 32 MiB region -- a single uninterrupted bad run, so the
// scan never sees a spurious good word partway through it. After
// Exclude that tail must be excised, shrinking the region in place.
func TestExcludeTail(t *testing.T) {
	base := uint64(0x8000_0000)
	pages := uint64(8192) // 32 MiB
	mem := simplatform.NewMemory(base, pages*region.PageSize)
	p := simplatform.New(mem, nil, 0)
	tbl := buildTable(t, region.Region{Base: base, Pages: pages})

	if _, err := Write(tbl, p, p, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	flipEveryWordInPageRange(t, p, base, 4096, pages)

	if _, err := Exclude(tbl, p, p, nil); err != nil {
		t.Fatalf("Exclude: %v", err)
	}

	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
	r, _ := tbl.Get(0)
	if want := (region.Region{Base: base, Pages: 4096}); r != want {
		t.Errorf("region[0] = %+v, want %+v", r, want)
	}
}

// TestExcludeMiddleSplit flips every word in the middle third of a
// 12288-page region; Exclude must split it into two surviving regions
// flanking the excised range.
func TestExcludeMiddleSplit(t *testing.T) {
	base := uint64(0x4000_0000)
	pages := uint64(12288)
	mem := simplatform.NewMemory(base, pages*region.PageSize)
	p := simplatform.New(mem, nil, 0)
	tbl := buildTable(t, region.Region{Base: base, Pages: pages})

	if _, err := Write(tbl, p, p, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	flipEveryWordInPageRange(t, p, base, 4096, 8192)

	if _, err := Exclude(tbl, p, p, nil); err != nil {
		t.Fatalf("Exclude: %v", err)
	}

	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	first, _ := tbl.Get(0)
	second, _ := tbl.Get(1)
	if want := (region.Region{Base: base, Pages: 4096}); first != want {
		t.Errorf("region[0] = %+v, want %+v", first, want)
	}
	if want := (region.Region{Base: base + 8192*region.PageSize, Pages: 4096}); second != want {
		t.Errorf("region[1] = %+v, want %+v", second, want)
	}
}

// TestExcludeWholeRegionWithSiblingPresent flips every word of the
// first of two equally-sized regions; Exclude must remove it entirely
// and leave only the untouched sibling.
func TestExcludeWholeRegionWithSiblingPresent(t *testing.T) {
	baseA := uint64(0x2000_0000)
	baseB := uint64(0x3000_0000)
	pages := uint64(4096)
	mem := simplatform.NewMemory(baseA, 0x2000_0000) // covers both A and B's span
	p := simplatform.New(mem, nil, 0)
	tbl := buildTable(t,
		region.Region{Base: baseA, Pages: pages},
		region.Region{Base: baseB, Pages: pages},
	)

	if _, err := Write(tbl, p, p, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	flipEveryWordInPageRange(t, p, baseA, 0, pages)

	if _, err := Exclude(tbl, p, p, nil); err != nil {
		t.Fatalf("Exclude: %v", err)
	}

	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (assertion would fire if the sibling were absent)", tbl.Len())
	}
	r, _ := tbl.Get(0)
	if want := (region.Region{Base: baseB, Pages: pages}); r != want {
		t.Errorf("surviving region = %+v, want %+v", r, want)
	}
}

// TestExcludeIdempotent runs Exclude twice against a platform whose
// firmware keeps rewriting the same tail pages on every boot: the
// second run must see the identical table the first run produced,
// since the bad range no longer belongs to any surviving region for
// it to re-scan.
func TestExcludeIdempotent(t *testing.T) {
	base := uint64(0x8000_0000)
	pages := uint64(8192) // 32 MiB
	mem := simplatform.NewMemory(base, pages*region.PageSize)
	p := simplatform.New(mem, nil, 0)
	tbl := buildTable(t, region.Region{Base: base, Pages: pages})

	if _, err := Write(tbl, p, p, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	flipEveryWordInPageRange(t, p, base, 4096, pages)

	if _, err := Exclude(tbl, p, p, nil); err != nil {
		t.Fatalf("first Exclude: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
	first, _ := tbl.Get(0)
	if want := (region.Region{Base: base, Pages: 4096}); first != want {
		t.Fatalf("region[0] after first Exclude = %+v, want %+v", first, want)
	}

	// The firmware keeps rewriting the same tail pages every boot; they
	// no longer belong to the table, so a second Exclude must leave the
	// surviving region untouched.
	flipEveryWordInPageRange(t, p, base, 4096, pages)

	if _, err := Exclude(tbl, p, p, nil); err != nil {
		t.Fatalf("second Exclude: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() after second Exclude = %d, want 1", tbl.Len())
	}
	second, _ := tbl.Get(0)
	if second != first {
		t.Errorf("region[0] after second Exclude = %+v, want unchanged %+v", second, first)
	}
}

// TestCompareCounts flips exactly one bit of the very first word and
// checks Compare attributes it to the correct bit and direction.
func TestCompareCounts(t *testing.T) {
	base := uint64(0x1_0000_0000)
	pages := uint64(32768) // 128 MiB across two regions below
	mem := simplatform.NewMemory(base, pages*region.PageSize)
	p := simplatform.New(mem, nil, 0)
	tbl := buildTable(t,
		region.Region{Base: base, Pages: pages / 2},
		region.Region{Base: base + (pages/2)*region.PageSize, Pages: pages / 2},
	)

	if _, err := Write(tbl, p, p, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := persist.Save(p, tbl); err != nil {
		t.Fatalf("saving table: %v", err)
	}

	gen := pattern.Stir(base)
	originalWord0 := gen.Next()
	if originalWord0 == 0 {
		// Stir's register is never zero (see the pattern package's own
		// non-zero property), and word 0 is the generator's very next
		// output, so this can't happen; fail loudly if it ever does.
		t.Fatal("word 0 of the pattern stream is all zero, cannot pick a bit to flip")
	}

	// Flip whichever bit of word 0 is set to 1; which physical bit
	// that is depends only on the generator's output and not on the
	// property under test.
	var flippedBit int
	for b := 0; b < 64; b++ {
		if originalWord0&(uint64(1)<<uint(b)) != 0 {
			flippedBit = b
			break
		}
	}
	if err := p.WriteWord(base, originalWord0&^(uint64(1)<<uint(flippedBit))); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	stats, ctx, err := Compare(p, p, nil)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if stats.Differences() != 1 {
		t.Errorf("Differences() = %d, want 1", stats.Differences())
	}
	if stats.OneToZero[flippedBit] != 1 {
		t.Errorf("OneToZero[%d] = %d, want 1", flippedBit, stats.OneToZero[flippedBit])
	}
	for b := 0; b < 64; b++ {
		if b == flippedBit {
			continue
		}
		if stats.ZeroToOne[b] != 0 || stats.OneToZero[b] != 0 {
			t.Errorf("bit %d has nonzero counters", b)
		}
	}
	wantBits := pages * region.PageSize * 8
	if stats.ComparedBits != wantBits {
		t.Errorf("ComparedBits = %d, want %d", stats.ComparedBits, wantBits)
	}
	if ctx.PagesDone != pages {
		t.Errorf("PagesDone = %d, want %d", ctx.PagesDone, pages)
	}
}

// TestRebootContinuity simulates the reboot between Exclude and
// Compare: the table is serialized, the simulated volatile state is
// discarded, and Compare must still operate on the identical table.
func TestRebootContinuity(t *testing.T) {
	regions := []region.Region{
		{Base: 0x1000_0000, Pages: region.MinPages},
		{Base: 0x2000_0000, Pages: region.MinPages * 2},
		{Base: 0x4000_0000, Pages: region.MinPages},
	}
	mem := simplatform.NewMemory(0x1000_0000, 0x3100_0000+region.MinPages*region.PageSize)
	p := simplatform.New(mem, nil, 0)
	tbl := buildTable(t, regions...)

	if err := persist.Save(p, tbl); err != nil {
		t.Fatalf("saving table: %v", err)
	}

	// Simulate reboot: a fresh platform sharing only the NV variable,
	// as if volatile state were wiped but the NV store survived.
	data, attrs, err := p.GetVariable(persist.VariableName, persist.VariableGUID)
	if err != nil {
		t.Fatalf("GetVariable: %v", err)
	}
	reloaded := simplatform.New(mem, nil, 0)
	if err := reloaded.SetVariable(persist.VariableName, persist.VariableGUID, attrs, data); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}

	reloadedTbl, err := persist.Load(reloaded)
	if err != nil {
		t.Fatalf("Load after simulated reboot: %v", err)
	}
	if reloadedTbl.Len() != len(regions) {
		t.Fatalf("Len() = %d, want %d", reloadedTbl.Len(), len(regions))
	}
	for i, want := range regions {
		got, _ := reloadedTbl.Get(i)
		if got != want {
			t.Errorf("region[%d] = %+v, want %+v", i, got, want)
		}
	}

	if _, _, err := Compare(reloaded, reloaded, nil); err != nil {
		t.Fatalf("Compare after simulated reboot: %v", err)
	}
}

func flipEveryWordInPageRange(t *testing.T, p *simplatform.Platform, base uint64, startPage, endPage uint64) {
	t.Helper()
	for pg := startPage; pg < endPage; pg++ {
		for q := uint64(0); q < wordsPerPage; q++ {
			addr := base + pg*region.PageSize + q*8
			v, err := p.ReadWord(addr)
			if err != nil {
				t.Fatalf("ReadWord: %v", err)
			}
			if err := p.WriteWord(addr, ^v); err != nil {
				t.Fatalf("WriteWord: %v", err)
			}
		}
	}
}
