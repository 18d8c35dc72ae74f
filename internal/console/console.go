/*
 * ram-remanence-tester - Operator console
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

// Package console is the host-terminal binding for platform.Console,
// plus the menu and annotation prompts built on top of it. The real
// pre-OS console delivers one keystroke at a time from ConIn; a host
// terminal line-buffers, so ReadKey reads one full line via liner and
// returns its first rune.
package console

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/peterh/liner"

	"github.com/Dasharo/ram-remanence-tester/internal/platform"
)

// Console is the liner-backed implementation of platform.Console.
type Console struct {
	line *liner.State
}

// New starts a liner session with Ctrl-C aborting the current prompt
// and a completer limited to this program's menu keys.
func New() *Console {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	st.SetCompleter(complete)
	return &Console{line: st}
}

func complete(line string) []string {
	choices := []string{"1", "2", "3", "r", "s"}
	matches := make([]string, 0, len(choices))
	for _, c := range choices {
		if strings.HasPrefix(c, line) {
			matches = append(matches, c)
		}
	}
	return matches
}

// Close releases the underlying terminal state.
func (c *Console) Close() error {
	return c.line.Close()
}

// ReadKey reads one line and returns its first rune. A blank line is
// reported as the zero rune so a menu loop simply re-prompts.
func (c *Console) ReadKey() (rune, error) {
	s, err := c.line.Prompt("")
	if err != nil {
		return 0, err
	}
	c.line.AppendHistory(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	r, _ := firstRune(s)
	return r, nil
}

// Printf writes operator-facing text to standard output.
func (c *Console) Printf(format string, args ...any) {
	fmt.Printf(format, args...)
}

// Prompt reads one full line of text, unlike ReadKey. It exists so
// *Console itself satisfies LineReader and can answer the free-form
// annotation prompts directly, without going through the single-rune
// menu abstraction.
func (c *Console) Prompt(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// AppendHistory records item in the line editor's history.
func (c *Console) AppendHistory(item string) {
	c.line.AppendHistory(item)
}

var _ platform.Console = (*Console)(nil)
var _ LineReader = (*Console)(nil)

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}

// Phase selects which pass the operator wants to run.
type Phase int

const (
	PhaseWrite Phase = iota + 1
	PhaseExclude
	PhaseCompare
)

// SelectPhase prints the three-option menu and blocks on ReadKey until
// '1', '2' or '3' is seen; any other key, including a blank line, is
// ignored and the prompt is shown again.
func SelectPhase(c platform.Console) (Phase, error) {
	c.Printf("Application for testing RAM data decay\n\nChoose the mode:\n1. Pattern write\n2. Exclude modified by firmware\n3. Pattern compare\n\n")
	for {
		r, err := c.ReadKey()
		if err != nil {
			return 0, err
		}
		switch r {
		case '1':
			return PhaseWrite, nil
		case '2':
			return PhaseExclude, nil
		case '3':
			return PhaseCompare, nil
		}
	}
}

// ResetChoice is the operator's post-phase reset decision.
type ResetChoice int

const (
	ResetChoiceWarm ResetChoice = iota
	ResetChoiceShutdown
)

// PromptResetOrShutdown blocks until 'r' or 's' (either case) is seen.
func PromptResetOrShutdown(c platform.Console) (ResetChoice, error) {
	c.Printf("\nPress R to reboot, S to shut down\n")
	for {
		r, err := c.ReadKey()
		if err != nil {
			return 0, err
		}
		switch r {
		case 'r', 'R':
			return ResetChoiceWarm, nil
		case 's', 'S':
			return ResetChoiceShutdown, nil
		}
	}
}

// maxCommentRunes bounds the free-form comment recorded in the result
// report, matching the fixed-size field the original wrote it into.
const maxCommentRunes = 96

// Annotations are the operator-supplied context recorded alongside a
// Compare's decay counts.
type Annotations struct {
	Temperature     string
	PowerOffSeconds string
	Comment         string
}

// LineReader is the subset of *liner.State that PromptAnnotations
// needs, narrowed so it can be exercised with a fake in tests.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// PromptAnnotations collects the three free-form fields the result
// report carries. A failure on any one prompt is logged and leaves
// that field empty rather than aborting -- console trouble must never
// keep a completed Compare from being written out.
func PromptAnnotations(lr LineReader, logger *slog.Logger) Annotations {
	ann := Annotations{
		Temperature:     promptLine(lr, logger, "Ambient temperature: "),
		PowerOffSeconds: promptLine(lr, logger, "Time without power (seconds): "),
	}
	comment := promptLine(lr, logger, "Comments (optional, max 96 characters): ")
	if rs := []rune(comment); len(rs) > maxCommentRunes {
		comment = string(rs[:maxCommentRunes])
	}
	ann.Comment = comment
	return ann
}

func promptLine(lr LineReader, logger *slog.Logger, prompt string) string {
	s, err := lr.Prompt(prompt)
	if err != nil {
		if logger != nil {
			logger.Warn("console prompt failed, recording an empty value", "prompt", prompt, "error", err)
		}
		return ""
	}
	lr.AppendHistory(s)
	return strings.TrimSpace(s)
}
