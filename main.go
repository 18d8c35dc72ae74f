/*
 * ram-remanence-tester - Main process
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

// Command ram-remanence-tester drives the Write/Exclude/Compare core
// against the in-memory reference platform. Real firmware runs the
// same core across three separate boots; this binary has no hardware
// to actually power-cycle, so a warm reset instead loops back to the
// menu in process, applying the configured decay rules to simulate
// what the elapsed power-off period would have done to RAM.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"
	"github.com/peterh/liner"

	"github.com/Dasharo/ram-remanence-tester/internal/config"
	"github.com/Dasharo/ram-remanence-tester/internal/console"
	"github.com/Dasharo/ram-remanence-tester/internal/fatal"
	"github.com/Dasharo/ram-remanence-tester/internal/memmap"
	"github.com/Dasharo/ram-remanence-tester/internal/obslog"
	"github.com/Dasharo/ram-remanence-tester/internal/phase"
	"github.com/Dasharo/ram-remanence-tester/internal/platform"
	"github.com/Dasharo/ram-remanence-tester/internal/platform/simplatform"
	"github.com/Dasharo/ram-remanence-tester/internal/region"
	"github.com/Dasharo/ram-remanence-tester/internal/report"
)

var logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', config.DefaultPath, "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optScenario := getopt.StringLong("scenario", 's', "", "Optional config file overriding the regions/decay rules from --config")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var sink *os.File
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot create log file %s: %v\n", *optLogFile, err)
			os.Exit(1)
		}
		sink = f
		defer f.Close()
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	logger = slog.New(obslog.NewHandler(sink, &slog.HandlerOptions{Level: programLevel}, false))
	slog.SetDefault(logger)

	logger.Info("ram-remanence-tester started")

	cfg, err := config.Load(*optConfig)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if *optScenario != "" {
		scenarioCfg, err := config.Load(*optScenario)
		if err != nil {
			logger.Error("loading scenario override", "error", err)
			os.Exit(1)
		}
		cfg.Scenario = scenarioCfg.Scenario
	}

	p, err := buildPlatform(cfg.Scenario)
	if err != nil {
		logger.Error("building reference platform", "error", err)
		os.Exit(1)
	}

	ui := console.New()
	defer ui.Close()

	run(p, ui, cfg)

	logger.Info("ram-remanence-tester stopped")
}

// buildPlatform assembles the in-memory reference platform, sized to
// cover every configured region plus enough headroom for the 16 MiB
// rounding the normalizer may apply.
func buildPlatform(scenario config.Scenario) (*simplatform.Platform, error) {
	if len(scenario.Regions) == 0 {
		return nil, errors.New("configuration declares no regions; add at least one 'region' directive")
	}

	var low, high uint64
	descs := make([]platform.Descriptor, 0, len(scenario.Regions))
	for i, r := range scenario.Regions {
		if i == 0 || r.Base < low {
			low = r.Base
		}
		end := r.Base + r.Pages*region.PageSize
		if end > high {
			high = end
		}
		descs = append(descs, platform.Descriptor{
			Type:          platform.ConventionalMemory,
			PhysicalStart: r.Base,
			NumberOfPages: r.Pages,
		})
	}

	mem := simplatform.NewMemory(low, high-low+region.Align)
	p := simplatform.New(mem, descs, 0)
	p.SetImageBase(0)
	return p, nil
}

// run is the operator-facing loop: show the menu, execute the chosen
// phase, then ask whether to warm-reset (loop, applying configured
// decay) or shut down. Console I/O errors are treated the way the
// teacher's reader loop treats liner.ErrPromptAborted: a request to
// leave cleanly, not a fatal condition.
func run(p *simplatform.Platform, ui *console.Console, cfg *config.Config) {
	for {
		selected, err := console.SelectPhase(ui)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				logger.Info("operator aborted the menu prompt")
				return
			}
			logger.Error("reading menu selection", "error", err)
			return
		}

		switch selected {
		case console.PhaseWrite:
			runWrite(p, ui)
		case console.PhaseExclude:
			runExclude(p, ui)
		case console.PhaseCompare:
			runCompare(p, ui)
		}

		choice, err := console.PromptResetOrShutdown(ui)
		if err != nil {
			logger.Error("reading reset/shutdown choice", "error", err)
			return
		}
		if choice == console.ResetChoiceShutdown {
			p.Reset(platform.ResetShutdown)
			logger.Info("operator chose shutdown")
			return
		}
		p.Reset(platform.ResetWarm)
		applyDecay(p, cfg.Scenario)
		logger.Info("simulated warm reset, returning to the menu")
	}
}

func progressPrinter(ui *console.Console) phase.Progress {
	return func(pagesDone, totalPages uint64) {
		if pagesDone%4096 == 0 || pagesDone == totalPages {
			ui.Printf("\r%d/%d pages", pagesDone, totalPages)
		}
	}
}

// disableWatchdog turns off the platform watchdog before a long pass.
// A failure here is a firmware-service error on a non-core path, not a
// contract violation, so per spec.md §7 it is logged and the phase
// proceeds rather than halting.
func disableWatchdog(p *simplatform.Platform) {
	if err := p.DisableWatchdog(); err != nil {
		logger.Error("disabling watchdog", "error", err)
	}
}

func runWrite(p *simplatform.Platform, ui *console.Console) {
	disableWatchdog(p)
	tbl, err := memmap.Normalize(p, logger, p.ImageBase())
	fatal.Require(p, logger, err == nil, "normalizing memory map: %v", err)

	ctx, err := phase.Write(tbl, p, p, progressPrinter(ui))
	fatal.Require(p, logger, err == nil, "write phase: %v", err)
	p.Printf("\nwrote pattern across %d pages\n", ctx.PagesDone)
}

func runExclude(p *simplatform.Platform, ui *console.Console) {
	disableWatchdog(p)
	tbl, err := memmap.Normalize(p, logger, p.ImageBase())
	fatal.Require(p, logger, err == nil, "normalizing memory map: %v", err)

	ctx, err := phase.Exclude(tbl, p, p, progressPrinter(ui))
	fatal.Require(p, logger, err == nil, "exclude phase: %v", err)
	p.Printf("\nexcluded firmware-modified pages, %d pages scanned, %d regions remain\n",
		ctx.PagesDone, tbl.Len())
}

func runCompare(p *simplatform.Platform, ui *console.Console) {
	disableWatchdog(p)
	stats, ctx, err := phase.Compare(p, p, progressPrinter(ui))
	fatal.Require(p, logger, err == nil, "compare phase: %v", err)
	p.Printf("\ncompared %d pages, %d bit differences out of %d compared bits\n",
		ctx.PagesDone, stats.Differences(), stats.ComparedBits)

	ann := console.PromptAnnotations(ui, logger)
	name, err := report.Write(p, p, p, stats, ann)
	if err != nil {
		logger.Error("writing result report", "error", err)
		p.Printf("could not write result report: %v\n", err)
		return
	}
	p.Printf("result written to %s\n", name)
}

// applyDecay corrupts every word of the configured ranges, simulating
// the effect of the elapsed power-off period the operator is about to
// be asked about on the next Compare.
func applyDecay(p *simplatform.Platform, scenario config.Scenario) {
	for _, rule := range scenario.DecayRules {
		if rule.Region < 0 || rule.Region >= len(scenario.Regions) {
			logger.Warn("decay rule references an unknown region, skipping", "region", rule.Region)
			continue
		}
		base := scenario.Regions[rule.Region].Base
		for pg := rule.StartPage; pg < rule.EndPage; pg++ {
			pageBase := base + pg*region.PageSize
			for q := uint64(0); q < region.PageSize/8; q++ {
				addr := pageBase + q*8
				v, err := p.ReadWord(addr)
				if err != nil {
					continue
				}
				_ = p.WriteWord(addr, ^v)
			}
		}
	}
}
