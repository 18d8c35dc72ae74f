/*
 * ram-remanence-tester - Platform adapter error kinds
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

package platform

import "fmt"

// Kind identifies one of the error categories named by the core's
// error-handling design. Contract-violation kinds are fatal; the rest
// are reported but leave the Region Table uncorrupted.
type Kind int

const (
	_ Kind = iota
	// FirmwareMapUnavailable means the memory-map service itself failed.
	FirmwareMapUnavailable
	// MapOverflow means the firmware reported more descriptors than fit
	// the fixed-size scratch buffer.
	MapOverflow
	// DescriptorMismatch means the descriptor version, size, or byte
	// length failed validation.
	DescriptorMismatch
	// NoSavedMap means Compare found no persisted region table.
	NoSavedMap
	// NVWriteFailed means Exclude could not persist the region table.
	NVWriteFailed
	// RegionInvariantViolated means a region failed its alignment or
	// minimum-size invariant.
	RegionInvariantViolated
	// CapacityExceeded means a splice would need a 201st table entry.
	CapacityExceeded
	// UnderflowRemoval means a splice would remove the last region.
	UnderflowRemoval
)

func (k Kind) String() string {
	switch k {
	case FirmwareMapUnavailable:
		return "FirmwareMapUnavailable"
	case MapOverflow:
		return "MapOverflow"
	case DescriptorMismatch:
		return "DescriptorMismatch"
	case NoSavedMap:
		return "NoSavedMap"
	case NVWriteFailed:
		return "NVWriteFailed"
	case RegionInvariantViolated:
		return "RegionInvariantViolated"
	case CapacityExceeded:
		return "CapacityExceeded"
	case UnderflowRemoval:
		return "UnderflowRemoval"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind are contract violations
// that must halt the core rather than merely being logged.
func (k Kind) Fatal() bool {
	switch k {
	case DescriptorMismatch, RegionInvariantViolated, CapacityExceeded, UnderflowRemoval, NoSavedMap, NVWriteFailed:
		return true
	default:
		return false
	}
}

// Error pairs a Kind with a human-readable detail string. It wraps an
// optional underlying cause so callers can still errors.Is/As through it.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an *Error, optionally wrapping cause.
func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}
