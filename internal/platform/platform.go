/*
 * ram-remanence-tester - Platform adapter contracts
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

// Package platform is the thin contract facade the core is built
// against: everything it needs from the firmware it is running under,
// named only by the interfaces it consumes. This package holds no
// behavior of its own beyond the GUID wire-format helpers and the
// Error/Kind type (descriptor decoding lives in internal/memmap) --
// concrete implementations live alongside their own
// concerns, e.g. internal/platform/simplatform for tests and the
// reference in-memory driver.
package platform

import "time"

// DescriptorType mirrors the firmware memory-type enumeration. Only
// ConventionalMemory is of interest to the core; the rest are carried
// through so callers can label them.
type DescriptorType uint32

// ConventionalMemory is the UEFI memory type value for ordinary,
// usable RAM (EfiConventionalMemory == 7).
const ConventionalMemory DescriptorType = 7

// Descriptor is the basic shape of one firmware memory-map entry.
// Firmware may report a stride larger than this shape's encoded size
// to carry trailing padding -- callers must iterate using the stride
// RawMemoryMap reports, never len(encoded struct).
type Descriptor struct {
	Type          DescriptorType
	PhysicalStart uint64
	NumberOfPages uint64
}

// BasicDescriptorSize is the minimum encoded size of one Descriptor:
// 4 bytes type + 4 bytes padding + 8 bytes start + 8 bytes pages = 24.
const BasicDescriptorSize = 24

// ExpectedMemoryMapVersion is the descriptor format version the core
// was written against; a mismatch is a DescriptorMismatch.
const ExpectedMemoryMapVersion uint32 = 1

// RawMemoryMap is what the firmware actually hands back: a byte blob
// of back-to-back descriptors each Stride bytes long, of which only
// the first BasicDescriptorSize bytes follow the documented layout.
type RawMemoryMap struct {
	Data    []byte
	Stride  uint32
	Version uint32
}

// MemoryMapService retrieves the firmware's physical memory map.
type MemoryMapService interface {
	// GetMemoryMap encodes descriptors into buf (capacity bounds the
	// number of descriptors it can return) and fails if buf is too
	// small or the service itself errors. memmap.Normalize reports any
	// such failure as FirmwareMapUnavailable and performs the
	// MapOverflow and DescriptorMismatch checks itself.
	GetMemoryMap(buf []byte) (RawMemoryMap, error)
}

// Attributes are the NV variable attribute bits used by the core.
type Attributes uint32

const (
	AttrNonVolatile Attributes = 1 << iota
	AttrBootServiceAccess
	AttrRuntimeAccess
)

// NVStore is the non-volatile key-value store the Persistence Adapter
// saves and restores the Region Table through.
type NVStore interface {
	// GetVariable fails if the variable is absent; persist.Load
	// reports that failure as Kind NoSavedMap.
	GetVariable(name string, guid GUID) ([]byte, Attributes, error)
	SetVariable(name string, guid GUID, attrs Attributes, data []byte) error
}

// MemoryAccessor is raw physical memory, exclusively owned by the core
// for the duration of a phase. All access is word-granular (64 bits)
// because that is the unit the pattern generator emits.
type MemoryAccessor interface {
	ReadWord(addr uint64) (uint64, error)
	WriteWord(addr uint64, value uint64) error
}

// Console is the operator's text input/output.
type Console interface {
	// ReadKey blocks until a key is available and returns it.
	ReadKey() (rune, error)
	Printf(format string, args ...any)
}

// ResetKind selects how Reset diverges.
type ResetKind int

const (
	ResetWarm ResetKind = iota
	ResetShutdown
)

// Resetter never returns in a real firmware binding; the simulator
// models this by ending the current process-level run loop instead of
// calling os.Exit, so tests can observe the requested kind.
type Resetter interface {
	Reset(kind ResetKind)
}

// CacheFlusher globally flushes CPU caches back to DRAM.
type CacheFlusher interface {
	WritebackInvalidateCaches()
}

// WatchdogController must be disabled before any long pass.
type WatchdogController interface {
	DisableWatchdog() error
}

// DimmInfo is SMBIOS Type 17 labeling data, used only by the CSV report.
type DimmInfo struct {
	Locator      string
	BankLocator  string
	SizeMB       uint32
	Manufacturer string
	SerialNumber string
	PartNumber   string
}

// Inventory is the hardware-description surface used only for result
// labeling -- never consulted by the Write/Exclude/Compare core.
type Inventory interface {
	ProductName() (string, error)
	Dimms() ([]DimmInfo, error)
}

// Clock supplies the real-time clock used only for the result
// filename.
type Clock interface {
	Now() time.Time
}

// ResultStore is the simple filesystem used only to write the CSV
// result artifact, on the same volume the image was loaded from.
type ResultStore interface {
	WriteResultFile(name string, data []byte) error
}

// Platform aggregates every facade the core and its peripheral report
// layer consume. Components should depend on the narrowest interface
// above that they actually need; Platform exists so main can wire one
// concrete implementation through the whole program.
type Platform interface {
	MemoryMapService
	NVStore
	MemoryAccessor
	Console
	Resetter
	CacheFlusher
	WatchdogController
	Inventory
	Clock
	ResultStore
}
