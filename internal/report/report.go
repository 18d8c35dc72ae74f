/*
 * ram-remanence-tester - Result report writer
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

// Package report writes the CSV artifact a Compare pass leaves
// behind. This is peripheral labeling, not core diagnostic state: a
// ResultStore failure here is logged and surfaced to the operator, it
// never invalidates the Compare that already ran and already cleared
// the persisted table.
package report

import (
	"bytes"
	"fmt"

	"github.com/Dasharo/ram-remanence-tester/internal/console"
	"github.com/Dasharo/ram-remanence-tester/internal/phase"
	"github.com/Dasharo/ram-remanence-tester/internal/platform"
)

// FileName builds the CSV name a Compare run at t produces:
// YYYY_MM_DD_HH_MM.csv, minute resolution, matching the filename the
// firmware itself stamps from its real-time clock.
func FileName(clock platform.Clock) string {
	t := clock.Now()
	return fmt.Sprintf("%04d_%02d_%02d_%02d_%02d.csv",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute())
}

// Build renders the full CSV body: per-bit decay counts, the overall
// difference/compared-bit totals, the platform's product name and
// populated DIMM slots, and the operator's annotations.
//
// DIMM lookup failures are not fatal to the report -- they leave the
// DIMM section with its header and no entries (the error itself is
// not written to the report), since a labeling problem should
// never cost the operator the decay counts the run was run for.
func Build(stats *phase.Statistics, inv platform.Inventory, ann console.Annotations) []byte {
	var buf bytes.Buffer

	buf.WriteString("Bit, 0to1, 1to0\n")
	for b := 0; b < 64; b++ {
		fmt.Fprintf(&buf, "%d,%d,%d\n", b, stats.ZeroToOne[b], stats.OneToZero[b])
	}

	buf.WriteString("\n\nDifferent bits, Total compared bits\n")
	fmt.Fprintf(&buf, "%d,%d\n", stats.Differences(), stats.ComparedBits)
	buf.WriteString("\n\n")

	name, err := inv.ProductName()
	if err != nil || name == "" {
		name = "unknown"
	}
	fmt.Fprintf(&buf, "ProductName,%q\n", name)

	writeDimmSection(&buf, inv)

	fmt.Fprintf(&buf, "Temperature,%q\n", ann.Temperature)
	fmt.Fprintf(&buf, "Time,%q\n", ann.PowerOffSeconds)
	fmt.Fprintf(&buf, "%q\n", ann.Comment)

	return buf.Bytes()
}

func writeDimmSection(buf *bytes.Buffer, inv platform.Inventory) {
	buf.WriteString("\n\nDIMM info\nLocator, Bank Locator, Part Number\n")
	dimms, err := inv.Dimms()
	if err != nil {
		buf.WriteString("\n")
		return
	}
	for _, d := range dimms {
		fmt.Fprintf(buf, "%q,%q,%q\n",
			orUnknown(d.Locator), orUnknown(d.BankLocator), orUnknown(d.PartNumber))
	}
	buf.WriteString("\n")
}

// orUnknown falls back the same way every other SMBIOS string lookup
// in this report does when the firmware left a field blank.
func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Write composes the report and hands it to the platform's result
// store under the clock-derived file name, returning that name so the
// caller can tell the operator where it landed.
func Write(store platform.ResultStore, clock platform.Clock, inv platform.Inventory, stats *phase.Statistics, ann console.Annotations) (string, error) {
	name := FileName(clock)
	if err := store.WriteResultFile(name, Build(stats, inv, ann)); err != nil {
		return name, fmt.Errorf("report: writing %s: %w", name, err)
	}
	return name, nil
}
