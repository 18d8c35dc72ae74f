/*
 * ram-remanence-tester - In-memory reference platform
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

// Package simplatform is a concrete platform.Platform that models
// physical RAM, NV storage, and the chassis controls entirely in
// process memory. It plays the same role the S/370 emulator's
// per-device contexts (model1403, model2540R, ...) play behind a
// shared dev.Device interface: a stand-in a test or a non-firmware
// demo binary can drive without any real hardware underneath.
package simplatform

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dasharo/ram-remanence-tester/internal/platform"
)

// Memory is a byte-addressable RAM model sized to cover every region
// the caller intends to exercise. Word access is little-endian and
// must be 8-byte aligned, matching the physical word accesses the
// core issues.
type Memory struct {
	mu   sync.Mutex
	base uint64
	data []byte
}

// NewMemory allocates size bytes of simulated RAM starting at base.
func NewMemory(base, size uint64) *Memory {
	return &Memory{base: base, data: make([]byte, size)}
}

func (m *Memory) offset(addr uint64) (int, error) {
	if addr < m.base || addr%8 != 0 {
		return 0, fmt.Errorf("simplatform: address %#x misaligned or below base %#x", addr, m.base)
	}
	off := addr - m.base
	if off+8 > uint64(len(m.data)) {
		return 0, fmt.Errorf("simplatform: address %#x out of bounds", addr)
	}
	return int(off), nil
}

func (m *Memory) ReadWord(addr uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, err := m.offset(addr)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[off : off+8]), nil
}

func (m *Memory) WriteWord(addr uint64, value uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, err := m.offset(addr)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[off:off+8], value)
	return nil
}

// nvVariable is one stored NV variable, keyed by name+GUID.
type nvVariable struct {
	data  []byte
	attrs platform.Attributes
}

// Platform wires every platform.Platform facet to in-memory state. The
// zero value is not usable; build one with New.
type Platform struct {
	mu sync.Mutex

	mem       *Memory
	descs     []platform.Descriptor
	stride    uint32
	imageBase uint64

	nv map[string]nvVariable

	keys chan rune
	out  bytes.Buffer

	resets []platform.ResetKind

	flushCount int
	watchdogOK bool

	product string
	dimms   []platform.DimmInfo
	clock   func() time.Time

	results map[string][]byte
}

// New builds a reference platform backed by mem, reporting descs as
// its firmware memory map (stride defaults to
// platform.BasicDescriptorSize if 0).
func New(mem *Memory, descs []platform.Descriptor, stride uint32) *Platform {
	if stride == 0 {
		stride = platform.BasicDescriptorSize
	}
	return &Platform{
		mem:        mem,
		descs:      descs,
		stride:     stride,
		nv:         make(map[string]nvVariable),
		keys:       make(chan rune, 16),
		watchdogOK: true,
		product:    "Simulated Reference Platform",
		clock:      time.Now,
		results:    make(map[string][]byte),
	}
}

// SetImageBase controls the address Normalize treats as the running
// image's own footprint.
func (p *Platform) SetImageBase(base uint64) { p.imageBase = base }

// ImageBase returns the configured image base.
func (p *Platform) ImageBase() uint64 { return p.imageBase }

// SetClock overrides the Clock source, for deterministic tests.
func (p *Platform) SetClock(now func() time.Time) { p.clock = now }

// SetInventory overrides the product name and DIMM inventory the
// report layer reads back.
func (p *Platform) SetInventory(product string, dimms []platform.DimmInfo) {
	p.product = product
	p.dimms = dimms
}

func nvKey(name string, guid platform.GUID) string {
	return guid.String() + "/" + name
}

// --- platform.MemoryMapService ---

func (p *Platform) GetMemoryMap(buf []byte) (platform.RawMemoryMap, error) {
	need := len(p.descs) * int(p.stride)
	if need > len(buf) {
		return platform.RawMemoryMap{}, fmt.Errorf("simplatform: scratch buffer too small (%d < %d)", len(buf), need)
	}
	data := buf[:need]
	for i, d := range p.descs {
		start := i * int(p.stride)
		binary.LittleEndian.PutUint32(data[start:start+4], uint32(d.Type))
		binary.LittleEndian.PutUint64(data[start+8:start+16], d.PhysicalStart)
		binary.LittleEndian.PutUint64(data[start+16:start+24], d.NumberOfPages)
	}
	return platform.RawMemoryMap{
		Data:    data,
		Stride:  p.stride,
		Version: platform.ExpectedMemoryMapVersion,
	}, nil
}

// --- platform.NVStore ---

var errNVNotFound = errors.New("simplatform: nv variable not present")

func (p *Platform) GetVariable(name string, guid platform.GUID) ([]byte, platform.Attributes, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.nv[nvKey(name, guid)]
	if !ok {
		return nil, 0, errNVNotFound
	}
	return append([]byte(nil), v.data...), v.attrs, nil
}

func (p *Platform) SetVariable(name string, guid platform.GUID, attrs platform.Attributes, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nv[nvKey(name, guid)] = nvVariable{data: append([]byte(nil), data...), attrs: attrs}
	return nil
}

// --- platform.MemoryAccessor ---

func (p *Platform) ReadWord(addr uint64) (uint64, error)       { return p.mem.ReadWord(addr) }
func (p *Platform) WriteWord(addr uint64, value uint64) error  { return p.mem.WriteWord(addr, value) }

// --- platform.Console ---

// FeedKey queues a rune for the next ReadKey call, for driving the
// console menu in tests without a real terminal.
func (p *Platform) FeedKey(r rune) { p.keys <- r }

func (p *Platform) ReadKey() (rune, error) {
	r, ok := <-p.keys
	if !ok {
		return 0, errors.New("simplatform: no more keys queued")
	}
	return r, nil
}

func (p *Platform) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(&p.out, format, args...)
}

// Output returns everything written through Printf so far.
func (p *Platform) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

// --- platform.Resetter ---

func (p *Platform) Reset(kind platform.ResetKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, kind)
	close(p.keys)
	p.keys = make(chan rune, 16)
}

// Resets returns every Reset call observed so far, in order.
func (p *Platform) Resets() []platform.ResetKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.ResetKind(nil), p.resets...)
}

// --- platform.CacheFlusher ---

func (p *Platform) WritebackInvalidateCaches() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushCount++
}

// FlushCount returns how many times caches were flushed.
func (p *Platform) FlushCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushCount
}

// --- platform.WatchdogController ---

// FailWatchdog makes every later DisableWatchdog call return an error,
// for exercising the boot-time failure path.
func (p *Platform) FailWatchdog() { p.watchdogOK = false }

func (p *Platform) DisableWatchdog() error {
	if !p.watchdogOK {
		return errors.New("simplatform: watchdog controller unresponsive")
	}
	return nil
}

// --- platform.Inventory ---

func (p *Platform) ProductName() (string, error) { return p.product, nil }
func (p *Platform) Dimms() ([]platform.DimmInfo, error) {
	return append([]platform.DimmInfo(nil), p.dimms...), nil
}

// --- platform.Clock ---

func (p *Platform) Now() time.Time { return p.clock() }

// --- platform.ResultStore ---

func (p *Platform) WriteResultFile(name string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[name] = append([]byte(nil), data...)
	return nil
}

// ResultFile returns a previously written result file's contents, for
// assertions in tests.
func (p *Platform) ResultFile(name string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.results[name]
	return data, ok
}

var _ platform.Platform = (*Platform)(nil)
