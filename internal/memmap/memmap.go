/*
 * ram-remanence-tester - Firmware memory map normalizer
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

// Package memmap turns the firmware's raw memory map into the
// stable, re-derivable set of large regions the rest of the core
// targets. Descriptors are walked using the firmware-reported stride,
// never the compile-time shape size, because real UEFI descriptors
// carry trailing padding the static struct doesn't model.
package memmap

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/Dasharo/ram-remanence-tester/internal/platform"
	"github.com/Dasharo/ram-remanence-tester/internal/region"
)

// fourGiB is the boundary below which firmware-adjacent memory is
// considered too volatile to target across reboots.
const fourGiB = 4 * 1024 * 1024 * 1024

// scratchBytes bounds how much raw descriptor data GetMemoryMap may
// hand back; sized generously above 200 maximally-padded descriptors
// so a legitimate map never overruns it.
const scratchBytes = region.MaxRegions * 64

// Normalize retrieves the firmware memory map and populates a fresh
// Region Table with the surviving, 16 MiB-aligned candidate regions,
// in the order the firmware reported them. imageBase is the physical
// address of the running test image: regions based above it and below
// 4 GiB are treated as volatile and dropped.
func Normalize(svc platform.MemoryMapService, logger *slog.Logger, imageBase uint64) (*region.Table, error) {
	buf := make([]byte, scratchBytes)
	raw, err := svc.GetMemoryMap(buf)
	if err != nil {
		return nil, platform.NewError(platform.FirmwareMapUnavailable, "memory map service failed", err)
	}

	if raw.Version != platform.ExpectedMemoryMapVersion {
		return nil, platform.NewError(platform.DescriptorMismatch,
			fmt.Sprintf("descriptor version %d, expected %d", raw.Version, platform.ExpectedMemoryMapVersion), nil)
	}
	if raw.Stride < platform.BasicDescriptorSize {
		return nil, platform.NewError(platform.DescriptorMismatch,
			fmt.Sprintf("descriptor stride %d smaller than basic shape %d", raw.Stride, platform.BasicDescriptorSize), nil)
	}
	if len(raw.Data) > len(buf) {
		return nil, platform.NewError(platform.MapOverflow, "memory map service wrote past the scratch buffer", nil)
	}
	if int(raw.Stride) == 0 || len(raw.Data)%int(raw.Stride) != 0 {
		return nil, platform.NewError(platform.DescriptorMismatch,
			"memory map byte length not an exact multiple of descriptor stride", nil)
	}

	count := len(raw.Data) / int(raw.Stride)
	if count > region.MaxRegions {
		return nil, platform.NewError(platform.MapOverflow,
			fmt.Sprintf("firmware reported %d descriptors, capacity is %d", count, region.MaxRegions), nil)
	}

	var tbl region.Table
	for i := 0; i < count; i++ {
		start := i * int(raw.Stride)
		d := decodeDescriptor(raw.Data[start : start+platform.BasicDescriptorSize])

		r, keep := candidate(d, imageBase)
		if !keep {
			if logger != nil {
				logger.Debug("memmap: dropped descriptor", "type", d.Type, "base", fmt.Sprintf("%#x", d.PhysicalStart), "pages", d.NumberOfPages)
			}
			continue
		}

		if err := tbl.Append(r); err != nil {
			// Capacity was already checked against the raw descriptor
			// count above, so this can only happen if that invariant
			// is violated -- a normalizer bug, not a firmware failure.
			return nil, platform.NewError(platform.MapOverflow, "normalized region table overflow", err)
		}
	}

	return &tbl, nil
}

// candidate applies the four filters in order and returns the
// rounded region plus whether it survived.
func candidate(d platform.Descriptor, imageBase uint64) (region.Region, bool) {
	if d.Type != platform.ConventionalMemory {
		return region.Region{}, false
	}
	if d.NumberOfPages < region.MinPages {
		return region.Region{}, false
	}
	if d.PhysicalStart < fourGiB && d.PhysicalStart > imageBase {
		return region.Region{}, false
	}

	base := d.PhysicalStart
	pages := d.NumberOfPages

	roundedBase := roundUp(base, region.Align)
	lost := (roundedBase - base) / region.PageSize
	if lost >= pages {
		return region.Region{}, false
	}
	pages -= lost
	pages -= pages % region.MinPages

	if pages < region.MinPages {
		return region.Region{}, false
	}
	return region.Region{Base: roundedBase, Pages: pages}, true
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

func decodeDescriptor(entry []byte) platform.Descriptor {
	return platform.Descriptor{
		Type:          platform.DescriptorType(binary.LittleEndian.Uint32(entry[0:4])),
		PhysicalStart: binary.LittleEndian.Uint64(entry[8:16]),
		NumberOfPages: binary.LittleEndian.Uint64(entry[16:24]),
	}
}
