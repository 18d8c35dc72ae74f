/*
 * ram-remanence-tester - GUID encoding for NV variable keys
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

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// GUID is the 16-byte wire form of a UEFI GUID: Data1 (LE32), Data2
// (LE16), Data3 (LE16), then 8 bytes of Data4 in byte order.
type GUID [16]byte

// MustParseGUID parses a canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
// GUID string. It panics on malformed input, which is only ever a
// compile-time constant in this codebase.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

// ParseGUID parses a canonical GUID string into its wire-format bytes.
func ParseGUID(s string) (GUID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return GUID{}, fmt.Errorf("platform: malformed guid %q", s)
	}

	data1, err := hex.DecodeString(parts[0])
	if err != nil || len(data1) != 4 {
		return GUID{}, fmt.Errorf("platform: malformed guid %q", s)
	}
	data2, err := hex.DecodeString(parts[1])
	if err != nil || len(data2) != 2 {
		return GUID{}, fmt.Errorf("platform: malformed guid %q", s)
	}
	data3, err := hex.DecodeString(parts[2])
	if err != nil || len(data3) != 2 {
		return GUID{}, fmt.Errorf("platform: malformed guid %q", s)
	}
	data4a, err := hex.DecodeString(parts[3])
	if err != nil || len(data4a) != 2 {
		return GUID{}, fmt.Errorf("platform: malformed guid %q", s)
	}
	data4b, err := hex.DecodeString(parts[4])
	if err != nil || len(data4b) != 6 {
		return GUID{}, fmt.Errorf("platform: malformed guid %q", s)
	}

	var g GUID
	binary.LittleEndian.PutUint32(g[0:4], binary.BigEndian.Uint32(data1))
	binary.LittleEndian.PutUint16(g[4:6], binary.BigEndian.Uint16(data2))
	binary.LittleEndian.PutUint16(g[6:8], binary.BigEndian.Uint16(data3))
	copy(g[8:10], data4a)
	copy(g[10:16], data4b)
	return g, nil
}

func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%s-%s",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		hex.EncodeToString(g[8:10]), hex.EncodeToString(g[10:16]))
}
