/*
 * ram-remanence-tester - Contract-violation halt primitive
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

// Package fatal is the core's sole non-recoverable exit path. The
// original firmware application halts the CPU with interrupts
// disabled on an assertion failure (see original_source/app.c's
// Assert/Halt macros); a hosted Go process can't disable interrupts,
// so Exit is the closest equivalent and is kept isolated here so it is
// never called casually from inside ordinary error handling.
package fatal

import (
	"fmt"
	"log/slog"
	"os"
)

// Exit is os.Exit by default; tests replace it to observe a halt
// without killing the test binary.
var Exit = os.Exit

// Halter is the minimal console surface a halt reports through,
// satisfied by platform.Console.
type Halter interface {
	Printf(format string, args ...any)
}

// Require halts the program if cond is false, after printing the
// failed check through console and the logger. It is the Go analogue
// of the source's `Assert(exp)` macro: every contract-violation kind
// in the error-handling design (DescriptorMismatch,
// RegionInvariantViolated, CapacityExceeded, UnderflowRemoval,
// NoSavedMap, NV write failure in Exclude) is routed through this
// single call site.
func Require(console Halter, logger *slog.Logger, cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if console != nil {
		console.Printf("FATAL: %s\n", msg)
	}
	if logger != nil {
		logger.Error("contract violation, halting", "detail", msg)
	}
	Exit(1)
}
