/*
 * ram-remanence-tester - Region table persistence across reboots
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

// Package persist is the sole bridge between the Region Table and the
// firmware NV store. The table only survives a reboot because Exclude
// writes it here and Compare reads it back; nothing else in the core
// touches platform.NVStore directly.
package persist

import (
	"encoding/binary"
	"fmt"

	"github.com/Dasharo/ram-remanence-tester/internal/platform"
	"github.com/Dasharo/ram-remanence-tester/internal/region"
)

// VariableName is the fixed NV variable name the region table is
// stored under.
const VariableName = "TestedMemoryMap"

// VariableGUID namespaces VariableName; both are fixed so Compare can
// find what Exclude wrote regardless of how many reboots passed
// between them.
var VariableGUID = platform.MustParseGUID("865a4a83-19e9-4f5b-8406-bca0db86915e")

const recordSize = 16 // one Region: 8 bytes base + 8 bytes pages, little-endian

// Save serializes tbl and writes it to the NV store, overwriting
// whatever was there. The variable is marked non-volatile and
// boot/runtime accessible so it survives the reboot between phases.
func Save(store platform.NVStore, tbl *region.Table) error {
	data := marshal(tbl)
	attrs := platform.AttrNonVolatile | platform.AttrBootServiceAccess | platform.AttrRuntimeAccess
	if err := store.SetVariable(VariableName, VariableGUID, attrs, data); err != nil {
		return platform.NewError(platform.NVWriteFailed, "writing region table to NV store", err)
	}
	return nil
}

// Load reads back the region table Save last wrote. It fails with
// Kind NoSavedMap if nothing was ever saved.
func Load(store platform.NVStore) (*region.Table, error) {
	data, _, err := store.GetVariable(VariableName, VariableGUID)
	if err != nil {
		return nil, platform.NewError(platform.NoSavedMap, "no persisted region table", err)
	}
	tbl, err := unmarshal(data)
	if err != nil {
		return nil, platform.NewError(platform.NoSavedMap, "persisted region table is corrupt", err)
	}
	return tbl, nil
}

// Clear discards the persisted region table by writing a zero-length
// value, the conventional way to delete a UEFI variable.
func Clear(store platform.NVStore) error {
	if err := store.SetVariable(VariableName, VariableGUID, 0, nil); err != nil {
		return platform.NewError(platform.NVWriteFailed, "clearing region table from NV store", err)
	}
	return nil
}

// marshal writes the active prefix of tbl as a raw concatenation of
// fixed-size records, with no length prefix: the payload's own byte
// length is what tells a later Load how many regions there are.
func marshal(tbl *region.Table) []byte {
	n := tbl.Len()
	data := make([]byte, n*recordSize)
	for i := 0; i < n; i++ {
		r, _ := tbl.Get(i)
		off := i * recordSize
		binary.LittleEndian.PutUint64(data[off:off+8], r.Base)
		binary.LittleEndian.PutUint64(data[off+8:off+16], r.Pages)
	}
	return data
}

func unmarshal(data []byte) (*region.Table, error) {
	if len(data)%recordSize != 0 {
		return nil, fmt.Errorf("persist: record length %d is not a multiple of %d", len(data), recordSize)
	}
	n := len(data) / recordSize
	if n > region.MaxRegions {
		return nil, fmt.Errorf("persist: record holds %d regions, capacity is %d", n, region.MaxRegions)
	}

	var tbl region.Table
	for i := 0; i < n; i++ {
		off := i * recordSize
		r := region.Region{
			Base:  binary.LittleEndian.Uint64(data[off : off+8]),
			Pages: binary.LittleEndian.Uint64(data[off+8 : off+16]),
		}
		if err := tbl.Append(r); err != nil {
			return nil, fmt.Errorf("persist: rebuilding table: %w", err)
		}
	}
	return &tbl, nil
}
