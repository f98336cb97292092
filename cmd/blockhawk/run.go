package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/logging"
	"github.com/ResistanceIsUseless/BlockHawk/internal/metrics"
	"github.com/ResistanceIsUseless/BlockHawk/internal/output"
	"github.com/ResistanceIsUseless/BlockHawk/internal/progress"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
	"github.com/ResistanceIsUseless/BlockHawk/internal/ui"
	"github.com/ResistanceIsUseless/BlockHawk/internal/worker"
)

// reportFunc receives one finished proxy. Calls are serialized.
type reportFunc func(completed, total int, outcome checker.Outcome, label, detail string)

// runResult holds either single-URL or multi-URL results.
type runResult struct {
	multi  bool
	single []checker.TestResult
	many   []checker.MultiURLTestResult
}

// execute runs the whole batch, recording metrics and reporting progress as
// each proxy finishes.
func execute(ctx context.Context, mgr *worker.Manager, collector *metrics.Collector, proxies []proxy.Proxy, urls []string, opts checker.Options, report reportFunc) runResult {
	if len(urls) == 1 {
		results := mgr.Run(ctx, proxies, urls[0], opts, func(completed, total int, r checker.TestResult) {
			if collector != nil {
				collector.RecordResult(r)
			}
			report(completed, total, r.Outcome(), r.Proxy.String(), resultDetail(r.URLTestResult))
		})
		return runResult{single: results}
	}

	results := mgr.RunMulti(ctx, proxies, urls, opts, func(completed, total int, m checker.MultiURLTestResult) {
		if collector != nil {
			collector.RecordMultiResult(m)
		}
		report(completed, total, multiOutcome(m), m.Proxy.String(), fmt.Sprintf("%d/%d URLs", m.WorkingCount(), m.TotalCount()))
	})
	return runResult{multi: true, many: results}
}

func resultDetail(r checker.URLTestResult) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Block != nil && r.Block.IsBlocked:
		return r.Block.Reason
	case r.HTTPStatus != nil && !r.IsWorking():
		return fmt.Sprintf("HTTP %d", *r.HTTPStatus)
	}
	return ""
}

// multiOutcome collapses a multi-URL result for the live counters: any
// working URL counts as working, otherwise any block counts as blocked.
func multiOutcome(m checker.MultiURLTestResult) checker.Outcome {
	if m.AnyWorking() {
		return checker.OutcomeWorking
	}
	for _, r := range m.Results() {
		if r.Outcome() == checker.OutcomeBlocked {
			return checker.OutcomeBlocked
		}
	}
	return checker.OutcomeFailed
}

// runTUI drives the batch behind the bubbletea progress view. Quitting the
// view cancels outstanding probes; the results gathered so far are returned.
func (a *app) runTUI(ctx context.Context, total int, verbose bool, work func(context.Context, reportFunc) runResult) (runResult, bool, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(total, cancel)
	model.SetMode(verbose)
	program := tea.NewProgram(model, tea.WithInput(a.stdin), tea.WithOutput(a.stdout))

	finished := make(chan runResult, 1)
	go func() {
		res := work(runCtx, func(completed, total int, outcome checker.Outcome, label, detail string) {
			program.Send(ui.ResultMsg{
				Completed: completed,
				Total:     total,
				Outcome:   outcome,
				Label:     label,
				Detail:    detail,
			})
		})
		program.Send(ui.DoneMsg{})
		finished <- res
	}()

	stopQuit := context.AfterFunc(ctx, program.Quit)
	defer stopQuit()

	_, err := program.Run()
	if err != nil {
		cancel()
	}
	return <-finished, model.Aborted(), err
}

// runPlain drives the batch with a plain-terminal progress indicator on
// stderr.
func (a *app) runPlain(ctx context.Context, total int, opts *options, work func(context.Context, reportFunc) runResult) runResult {
	indicator := progress.NewIndicator(progress.Config{
		Type:      progress.ProgressType(opts.progressType),
		ShowETA:   true,
		ShowStats: true,
		NoColor:   a.noColor,
		Output:    a.stderr,
	})

	indicator.Start(total)
	res := work(ctx, func(completed, _ int, outcome checker.Outcome, label, _ string) {
		indicator.Update(completed, outcome, label)
	})
	indicator.Finish(fmt.Sprintf("Tested %d proxies", total))

	return res
}

// render prints the result table and summary to stdout.
func (a *app) render(res runResult, urls []string) {
	if res.multi {
		fmt.Fprintln(a.stdout, ui.MultiURLTable(res.many, urls))
		fmt.Fprintln(a.stdout, ui.MultiSummary(res.many, urls))
		return
	}
	fmt.Fprintln(a.stdout, ui.ResultsTable(res.single))
	fmt.Fprintln(a.stdout, ui.Summary(res.single))
}

// save writes every requested output file. A failed write is logged and
// does not stop the others.
func (a *app) save(logger *logging.Logger, opts *options, urls []string, res runResult) {
	var rows []output.ProxyResultOutput
	if res.multi {
		rows = output.ConvertMultiToOutputFormat(res.many)
	} else {
		rows = output.ConvertToOutputFormat(res.single)
	}
	summary := output.GenerateSummary(urls, rows)
	logger.SummaryStats(summary.TotalProxies, summary.WorkingProxies, summary.BlockedProxies, summary.SuccessRate)

	write := func(file, format string, fn func(string) error) {
		if file == "" {
			return
		}
		if err := fn(file); err != nil {
			logger.Error("Failed to write results",
				"error", err,
				"file", file,
				"format", format,
				"category", errors.GetErrorCategory(err))
			return
		}
		logger.ResultsSaved(file, format)
	}

	write(opts.outputFile, "text", func(f string) error { return output.WriteTextOutput(f, summary) })
	write(opts.jsonFile, "json", func(f string) error { return output.WriteJSONOutput(f, summary) })
	write(opts.csvFile, "csv", func(f string) error { return output.WriteCSVOutput(f, rows) })
	write(opts.workingFile, "working_proxies", func(f string) error { return output.WriteWorkingProxiesOutput(f, rows) })
}
