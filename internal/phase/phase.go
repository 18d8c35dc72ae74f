/*
 * ram-remanence-tester - Write / Exclude / Compare phase engine
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

// Package phase drives the three passes -- Write, Exclude, Compare --
// over a region.Table. All three share the same per-page addressing
// and stirred-pattern walk; they differ only in what they do with
// each word. State that the original firmware kept as module-level
// globals (the running page count, the per-bit tallies) is instead
// carried explicitly in a PhaseContext value threaded through the
// calls below, so nothing here depends on package-level state.
package phase

import (
	"errors"
	"fmt"

	"github.com/Dasharo/ram-remanence-tester/internal/pattern"
	"github.com/Dasharo/ram-remanence-tester/internal/persist"
	"github.com/Dasharo/ram-remanence-tester/internal/platform"
	"github.com/Dasharo/ram-remanence-tester/internal/region"
)

// wordsPerPage is the number of 64-bit words the pattern generator
// emits per page: 4096 / 8.
const wordsPerPage = region.PageSize / 8

// Progress is called once per page, never per word, matching the
// source's own print throttling.
type Progress func(pagesDone, totalPages uint64)

func noopProgress(uint64, uint64) {}

// PhaseContext carries everything a pass needs to track across its
// own region loop. Nothing here survives past a single Write, Exclude,
// or Compare call.
type PhaseContext struct {
	PagesDone  uint64
	TotalPages uint64
}

// Statistics accumulates Compare's per-bit decay counts. The zero
// value is ready to use.
type Statistics struct {
	ZeroToOne    [64]uint64
	OneToZero    [64]uint64
	ComparedBits uint64
}

// Differences sums every bit's flip count in either direction.
func (s *Statistics) Differences() uint64 {
	var total uint64
	for b := 0; b < 64; b++ {
		total += s.ZeroToOne[b] + s.OneToZero[b]
	}
	return total
}

// Write stamps the stirred pattern across every page of every region
// in tbl, then issues a single platform-wide cache writeback-
// invalidate so the values are guaranteed to have reached DRAM before
// the operator power-cycles the machine.
func Write(tbl *region.Table, mem platform.MemoryAccessor, flusher platform.CacheFlusher, progress Progress) (*PhaseContext, error) {
	if progress == nil {
		progress = noopProgress
	}
	ctx := &PhaseContext{TotalPages: tbl.TotalPages()}

	for i := 0; i < tbl.Len(); i++ {
		r, err := tbl.Get(i)
		if err != nil {
			return ctx, err
		}
		for p := uint64(0); p < r.Pages; p++ {
			pageBase := r.Base + p*region.PageSize
			gen := pattern.Stir(pageBase)
			for q := uint64(0); q < wordsPerPage; q++ {
				addr := pageBase + q*8
				if err := mem.WriteWord(addr, gen.Next()); err != nil {
					return ctx, fmt.Errorf("phase: write %#x: %w", addr, err)
				}
			}
			ctx.PagesDone++
			progress(ctx.PagesDone, ctx.TotalPages)
		}
	}

	flusher.WritebackInvalidateCaches()
	return ctx, nil
}

// Exclude compares every page against the pattern it expects and
// excises, region by region, every run of pages that ever diverged --
// these are pages firmware itself rewrote during normal boot, not
// decay. The surviving table is persisted for a later Compare.
//
// Per region it re-reads the region's current base and page count
// from tbl on every page, rather than capturing them once: this is
// what lets a mid-region split (case 4) hand the remainder of the
// original span to the next outer-loop iteration as a freshly
// inserted region, instead of tracking a moving index by hand. It is
// also why pages_done can double-count a boundary page once when that
// happens -- a known accounting quirk inherited unchanged. The
// middle-split test checks the resulting table, not the page count.
func Exclude(tbl *region.Table, mem platform.MemoryAccessor, store platform.NVStore, progress Progress) (*PhaseContext, error) {
	if progress == nil {
		progress = noopProgress
	}
	ctx := &PhaseContext{TotalPages: tbl.TotalPages()}

	for i := 0; i < tbl.Len(); {
		shrank, err := excludeRegion(tbl, i, mem, ctx, progress)
		if err != nil {
			return ctx, err
		}
		if !shrank {
			i++
		}
		// A whole-region removal shifts the next region into slot i;
		// re-visit i without advancing so it gets its own fresh scan.
	}

	if err := persist.Save(store, tbl); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// excludeRegion scans region i to completion and reports whether the
// region at index i was removed outright (case 1), which means the
// caller must not advance its own index.
func excludeRegion(tbl *region.Table, i int, mem platform.MemoryAccessor, ctx *PhaseContext, progress Progress) (bool, error) {
	lengthBefore := tbl.Len()

	wasSame := true
	var firstBad uint64
	haveFirstBad := false
	var regionEnd uint64

	for p := uint64(0); ; p++ {
		r, err := tbl.Get(i)
		if err != nil {
			return false, err
		}
		if p >= r.Pages {
			regionEnd = r.End()
			break
		}

		pageBase := r.Base + p*region.PageSize
		gen := pattern.Stir(pageBase)
		removed := false
		for q := uint64(0); q < wordsPerPage; q++ {
			addr := pageBase + q*8
			expected := gen.Next()
			observed, err := mem.ReadWord(addr)
			if err != nil {
				return false, fmt.Errorf("phase: exclude read %#x: %w", addr, err)
			}
			if removed {
				// The region vanished partway through this page; keep
				// consuming the pattern stream so addresses stay in
				// lockstep, but stop acting on the comparison.
				continue
			}

			if observed != expected {
				if wasSame {
					firstBad = pageBase
					haveFirstBad = true
				}
				wasSame = false
				continue
			}

			if !wasSame {
				last := roundUpToPage(addr)
				pages := (last - firstBad) / region.PageSize
				lenBefore := tbl.Len()
				if err := tbl.RemoveRange(i, firstBad, pages); err != nil {
					return false, wrapRemoveRangeErr(err, fmt.Sprintf("excluding [%#x,%#x) from region %d", firstBad, last, i))
				}
				haveFirstBad = false
				if tbl.Len() < lenBefore {
					// Case 1: the whole (already-shrunk) region just
					// vanished. Finish reading this page's remaining
					// words (their outcome no longer matters) so the
					// page is still counted done exactly once, then
					// stop scanning under this index.
					removed = true
				}
			}
			wasSame = true
		}

		ctx.PagesDone++
		progress(ctx.PagesDone, ctx.TotalPages)
		if removed {
			return true, nil
		}
	}

	if haveFirstBad {
		pages := (regionEnd - firstBad) / region.PageSize
		if err := tbl.RemoveRange(i, firstBad, pages); err != nil {
			return false, wrapRemoveRangeErr(err, fmt.Sprintf("excluding trailing [%#x,%#x) from region %d", firstBad, regionEnd, i))
		}
	}

	return tbl.Len() < lengthBefore, nil
}

// wrapRemoveRangeErr maps a region.RemoveRange failure to the specific
// platform.Kind the error-handling design names for it, rather than
// collapsing every splice failure into one generic kind.
func wrapRemoveRangeErr(err error, detail string) error {
	switch {
	case errors.Is(err, region.ErrCapacityExceeded):
		return platform.NewError(platform.CapacityExceeded, detail, err)
	case errors.Is(err, region.ErrUnderflowRemoval):
		return platform.NewError(platform.UnderflowRemoval, detail, err)
	default:
		return platform.NewError(platform.RegionInvariantViolated, detail, err)
	}
}

// Compare restores the table Exclude last persisted and tallies, per
// bit, how many words decayed from 0 to 1 and from 1 to 0. The
// persisted variable is deleted once comparison completes so a
// subsequent Write starts from a clean slate.
func Compare(store platform.NVStore, mem platform.MemoryAccessor, progress Progress) (*Statistics, *PhaseContext, error) {
	if progress == nil {
		progress = noopProgress
	}

	tbl, err := persist.Load(store)
	if err != nil {
		return nil, nil, err
	}

	ctx := &PhaseContext{TotalPages: tbl.TotalPages()}
	stats := &Statistics{}

	for i := 0; i < tbl.Len(); i++ {
		r, err := tbl.Get(i)
		if err != nil {
			return stats, ctx, err
		}
		for p := uint64(0); p < r.Pages; p++ {
			pageBase := r.Base + p*region.PageSize
			gen := pattern.Stir(pageBase)
			for q := uint64(0); q < wordsPerPage; q++ {
				addr := pageBase + q*8
				expected := gen.Next()
				observed, err := mem.ReadWord(addr)
				if err != nil {
					return stats, ctx, fmt.Errorf("phase: compare read %#x: %w", addr, err)
				}
				if observed != expected {
					delta := expected ^ observed
					for b := 0; b < 64; b++ {
						bit := uint64(1) << uint(b)
						if delta&bit == 0 {
							continue
						}
						if observed&bit != 0 {
							stats.ZeroToOne[b]++
						} else {
							stats.OneToZero[b]++
						}
					}
				}
			}
			ctx.PagesDone++
			progress(ctx.PagesDone, ctx.TotalPages)
		}
		stats.ComparedBits += r.Pages * region.PageSize * 8
	}

	if err := persist.Clear(store); err != nil {
		return stats, ctx, err
	}
	return stats, ctx, nil
}

func roundUpToPage(addr uint64) uint64 {
	return (addr + region.PageSize - 1) &^ (region.PageSize - 1)
}
