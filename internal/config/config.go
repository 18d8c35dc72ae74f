/*
 * ram-remanence-tester - Configuration file parser
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

// Package config loads the host-side configuration file: operator
// defaults (log file, result directory) and, when running against the
// in-memory reference platform instead of real firmware, the synthetic
// memory map and decay rules a demo run should inject. It never
// configures anything the core treats as fixed by contract -- the NV
// variable name and GUID are not settable here.
//
// The file format follows the same shape as the teacher's device
// configuration language (config/configparser): '#' starts a
// comment, one directive per line, and `key=value` tokens after the
// directive name. The set of directives is much smaller since there
// is no device model registry to drive.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultPath is the configuration file name used when none is given
// on the command line.
const DefaultPath = "ram-remanence-tester.cfg"

// Config is the fully parsed configuration file.
type Config struct {
	LogFile   string
	ResultDir string
	Scenario  Scenario
}

// Scenario describes a synthetic memory map and injected decay for
// driving the in-memory reference platform. It is ignored by a real
// firmware binding, which always reports its own map.
type Scenario struct {
	Regions    []RegionSpec
	DecayRules []DecayRule
}

// RegionSpec is one synthetic region, in the same units the Region
// Table itself uses.
type RegionSpec struct {
	Base  uint64
	Pages uint64
}

// DecayRule corrupts every word of region Regions[Region] across
// pages [StartPage, EndPage) -- the only injection shape that
// produces an unambiguous, single splice result (see DESIGN.md's note
// on the tail-exclusion test flip pattern: a rule that leaves some words
// of a corrupted page intact fragments into many single-page middle
// splits instead of one clean exclusion, so this format does not
// expose that shape at all).
type DecayRule struct {
	Region    int
	StartPage uint64
	EndPage   uint64
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	cfg := &Config{ResultDir: "."}
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := parseLine(cfg, scanner.Text()); err != nil {
			return nil, fmt.Errorf("config: line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func parseLine(cfg *Config, line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	directive := strings.ToLower(fields[0])
	tokens, err := tokenize(fields[1:])
	if err != nil {
		return err
	}

	switch directive {
	case "logfile":
		cfg.LogFile = tokens["__bare__"]
	case "resultdir":
		cfg.ResultDir = tokens["__bare__"]
	case "region":
		spec, err := parseRegionSpec(tokens)
		if err != nil {
			return err
		}
		cfg.Scenario.Regions = append(cfg.Scenario.Regions, spec)
	case "decay":
		rule, err := parseDecayRule(tokens)
		if err != nil {
			return err
		}
		cfg.Scenario.DecayRules = append(cfg.Scenario.DecayRules, rule)
	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
	return nil
}

// tokenize splits "key=value" fields into a map. A field with no '='
// is stored under "__bare__", for directives like logfile that take a
// single unlabeled value.
func tokenize(fields []string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			tokens["__bare__"] = f
			continue
		}
		tokens[strings.ToLower(key)] = value
	}
	return tokens, nil
}

func parseUint(tokens map[string]string, key string) (uint64, error) {
	v, ok := tokens[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", key, err)
	}
	return n, nil
}

func parseRegionSpec(tokens map[string]string) (RegionSpec, error) {
	base, err := parseUint(tokens, "base")
	if err != nil {
		return RegionSpec{}, err
	}
	pages, err := parseUint(tokens, "pages")
	if err != nil {
		return RegionSpec{}, err
	}
	return RegionSpec{Base: base, Pages: pages}, nil
}

func parseDecayRule(tokens map[string]string) (DecayRule, error) {
	regionIdx, err := parseUint(tokens, "region")
	if err != nil {
		return DecayRule{}, err
	}
	start, err := parseUint(tokens, "start")
	if err != nil {
		return DecayRule{}, err
	}
	end, err := parseUint(tokens, "end")
	if err != nil {
		return DecayRule{}, err
	}
	if end <= start {
		return DecayRule{}, fmt.Errorf("end page %d must be greater than start page %d", end, start)
	}
	return DecayRule{Region: int(regionIdx), StartPage: start, EndPage: end}, nil
}
