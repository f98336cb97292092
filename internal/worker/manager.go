package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/detector"
	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/logging"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 10

// Tester runs the per-proxy test sequence. *checker.Checker implements it.
type Tester interface {
	Check(ctx context.Context, p proxy.Proxy, target string, ref *detector.Reference, opts checker.Options) checker.TestResult
	CheckMulti(ctx context.Context, p proxy.Proxy, targets []string, refs map[string]*detector.Reference, opts checker.Options) checker.MultiURLTestResult
	Reference(ctx context.Context, target string) *detector.Reference
}

// ProgressFunc is called once per finished proxy, in completion order.
// Calls are serialized; completed increases by one on every call.
type ProgressFunc[R any] func(completed, total int, result R)

// Manager handles worker pool management for proxy checking
type Manager struct {
	concurrency int
	tester      Tester
	logger      *logging.Logger
}

// NewManager creates a new worker manager. Concurrency below one falls back
// to DefaultConcurrency.
func NewManager(concurrency int, tester Tester, logger *logging.Logger) *Manager {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		concurrency: concurrency,
		tester:      tester,
		logger:      logger,
	}
}

// Concurrency returns the worker count.
func (m *Manager) Concurrency() int {
	return m.concurrency
}

// Run tests every proxy against target and returns one result per proxy in
// input order.
func (m *Manager) Run(ctx context.Context, proxies []proxy.Proxy, target string, opts checker.Options, progress ProgressFunc[checker.TestResult]) []checker.TestResult {
	m.logger.RunStart(len(proxies), 1, m.concurrency)
	ref := m.tester.Reference(ctx, target)

	return runPool(ctx, m, proxies,
		func(ctx context.Context, p proxy.Proxy) checker.TestResult {
			return m.tester.Check(ctx, p, target, ref, opts)
		},
		func(p proxy.Proxy, msg string) checker.TestResult {
			return checker.TestResult{Proxy: p, URLTestResult: crashed(target, msg)}
		},
		progress)
}

// RunMulti tests every proxy against all targets and returns one aggregate
// per proxy in input order.
func (m *Manager) RunMulti(ctx context.Context, proxies []proxy.Proxy, targets []string, opts checker.Options, progress ProgressFunc[checker.MultiURLTestResult]) []checker.MultiURLTestResult {
	m.logger.RunStart(len(proxies), len(targets), m.concurrency)
	refs := m.References(ctx, targets)

	return runPool(ctx, m, proxies,
		func(ctx context.Context, p proxy.Proxy) checker.MultiURLTestResult {
			return m.tester.CheckMulti(ctx, p, targets, refs, opts)
		},
		func(p proxy.Proxy, msg string) checker.MultiURLTestResult {
			res := checker.MultiURLTestResult{
				Proxy:      p,
				URLs:       targets,
				URLResults: make(map[string]checker.URLTestResult, len(targets)),
			}
			for _, target := range targets {
				res.URLResults[target] = crashed(target, msg)
			}
			return res
		},
		progress)
}

// References fetches the baseline response of every target directly, at
// most concurrency at a time. Targets whose fetch failed map to nil.
func (m *Manager) References(ctx context.Context, targets []string) map[string]*detector.Reference {
	refs := make(map[string]*detector.Reference, len(targets))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, target := range targets {
		g.Go(func() error {
			ref := m.tester.Reference(ctx, target)
			mu.Lock()
			refs[target] = ref
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return refs
}

type indexed[R any] struct {
	index  int
	result R
}

// runPool fans proxies out to a bounded set of workers. Results are placed
// by input index; progress runs on the calling goroutine only.
func runPool[R any](
	ctx context.Context,
	m *Manager,
	proxies []proxy.Proxy,
	task func(context.Context, proxy.Proxy) R,
	onPanic func(proxy.Proxy, string) R,
	progress ProgressFunc[R],
) []R {
	total := len(proxies)
	out := make([]R, total)
	if total == 0 {
		return out
	}

	workers := min(m.concurrency, total)
	jobs := make(chan int)
	results := make(chan indexed[R], workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := m.logger.WithWorker(workerID)
			for i := range jobs {
				p := proxies[i]
				results <- indexed[R]{i, protect(log, p, func() R { return task(ctx, p) }, onPanic)}
			}
		}(w)
	}

	// Every index is dispatched even after cancellation; tasks observe ctx
	// and fail fast, so no slot is left empty.
	go func() {
		for i := range proxies {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for r := range results {
		out[r.index] = r.result
		completed++
		if progress != nil {
			progress(completed, total, r.result)
		}
	}
	return out
}

// protect runs task, converting a panic into the fallback result.
func protect[R any](log *logging.Logger, p proxy.Proxy, task func() R, onPanic func(proxy.Proxy, string) R) (result R) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WorkerPanic(p.String(), rec)
			result = onPanic(p, "Test failed: "+truncate(fmt.Sprint(rec), 50))
		}
	}()
	return task()
}

func crashed(target, msg string) checker.URLTestResult {
	return checker.URLTestResult{URL: target, Error: msg, ErrorCode: errors.ErrorUnexpectedPanic}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
