package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/config"
	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/geo"
	"github.com/ResistanceIsUseless/BlockHawk/internal/help"
	"github.com/ResistanceIsUseless/BlockHawk/internal/loader"
	"github.com/ResistanceIsUseless/BlockHawk/internal/logging"
	"github.com/ResistanceIsUseless/BlockHawk/internal/metrics"
	"github.com/ResistanceIsUseless/BlockHawk/internal/pool"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
	"github.com/ResistanceIsUseless/BlockHawk/internal/ui"
	"github.com/ResistanceIsUseless/BlockHawk/internal/validation"
	"github.com/ResistanceIsUseless/BlockHawk/internal/worker"
)

const defaultProxyFile = "proxies.txt"

// options holds the parsed command line.
type options struct {
	proxyList  string
	urls       string
	selection  string
	configFile string
	initConfig bool

	concurrency int
	timeout     int
	ping        bool
	ipCheck     bool
	geoipDB     string

	outputFile  string
	jsonFile    string
	csvFile     string
	workingFile string

	noUI         bool
	progressType string
	verbose      bool
	debug        bool

	metrics     bool
	metricsAddr string
	metricsFile string

	showHelp       bool
	showVersion    bool
	showQuickStart bool

	// set records the flags given explicitly on the command line.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer, noColor bool) (*options, error) {
	opts := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("blockhawk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { help.PrintHelp(stderr, noColor) }

	fs.StringVar(&opts.proxyList, "l", defaultProxyFile, "File containing list of proxies")
	fs.StringVar(&opts.urls, "u", "", "Comma-separated target URLs")
	fs.StringVar(&opts.selection, "s", "", "Proxy selection (all, 1,3,5, 2-8)")
	fs.StringVar(&opts.configFile, "config", "", "Path to config file")
	fs.BoolVar(&opts.initConfig, "init-config", false, "Write the default config to the user config directory")

	fs.IntVar(&opts.concurrency, "c", 0, "Number of concurrent checks (overrides config)")
	fs.IntVar(&opts.timeout, "t", 0, "Timeout in seconds (overrides config)")
	fs.BoolVar(&opts.ping, "ping", false, "Ping each proxy host")
	fs.BoolVar(&opts.ipCheck, "ip", false, "Discover the exit IP of working proxies")
	fs.StringVar(&opts.geoipDB, "geoip-db", "", "MaxMind database for exit IP countries")

	fs.StringVar(&opts.outputFile, "o", "", "Output results to text file")
	fs.StringVar(&opts.jsonFile, "j", "", "Output results to JSON file")
	fs.StringVar(&opts.csvFile, "csv", "", "Output results to CSV file")
	fs.StringVar(&opts.workingFile, "wp", "", "Output working proxies to file")

	fs.BoolVar(&opts.noUI, "no-ui", false, "Disable terminal UI (for automation/scripting)")
	fs.StringVar(&opts.progressType, "progress", "bar", "Progress indicator type for non-TUI mode (none, basic, bar, spinner, percent)")
	fs.BoolVar(&opts.verbose, "v", false, "Enable verbose output")
	fs.BoolVar(&opts.debug, "d", false, "Enable debug mode")

	fs.BoolVar(&opts.metrics, "metrics", false, "Enable Prometheus metrics endpoint")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "Address to serve metrics on")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write metrics in textfile format after the run")

	fs.BoolVar(&opts.showHelp, "help", false, "Show help message")
	fs.BoolVar(&opts.showHelp, "h", false, "Show help message (short)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.showQuickStart, "quickstart", false, "Show quick start guide")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	// Debug logs and the TUI would fight over the terminal.
	if opts.debug {
		opts.noUI = true
	}
	return opts, nil
}

// applyFlags overrides file configuration with explicit flags.
func applyFlags(cfg *config.Config, opts *options) {
	if opts.concurrency > 0 {
		cfg.Concurrency = opts.concurrency
	}
	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
	}
	if opts.ping {
		cfg.Ping.Enabled = true
	}
	if opts.ipCheck {
		cfg.IPCheck.Enabled = true
	}
	if opts.geoipDB != "" {
		cfg.GeoIP.Database = opts.geoipDB
	}
	if opts.metrics {
		cfg.Metrics.Enabled = true
	}
	if opts.set["metrics-addr"] {
		cfg.Metrics.ListenAddr = opts.metricsAddr
	}
	if opts.metricsFile != "" {
		cfg.Metrics.Textfile = opts.metricsFile
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
}

// app carries the process streams so a run can be driven from tests.
type app struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
	noColor     bool

	in *bufio.Reader
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: isTerminal(os.Stdin) && isTerminal(os.Stdout),
		noColor:     help.DetectNoColor(),
	}
	code := a.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes one batch and returns the process exit code. Only input
// errors produce a non-zero code; probe failures are results.
func (a *app) run(ctx context.Context, args []string) int {
	opts, err := parseFlags(args, a.stderr, a.noColor)
	if err == flag.ErrHelp {
		return 0
	}
	if err != nil {
		help.PrintUsageError(a.stderr, err, a.noColor)
		return 1
	}

	switch {
	case opts.showHelp:
		help.PrintHelp(a.stdout, a.noColor)
		return 0
	case opts.showVersion:
		help.PrintVersion(a.stdout, a.noColor)
		return 0
	case opts.showQuickStart:
		help.PrintQuickStart(a.stdout, a.noColor)
		return 0
	case opts.initConfig:
		path, err := config.InitializeUserConfig()
		if err != nil {
			fmt.Fprintf(a.stderr, "Failed to write config: %v\n", err)
			return 1
		}
		fmt.Fprintf(a.stdout, "Config written to %s\n", path)
		return 0
	}

	bootLevel := logging.LevelInfo
	if opts.debug {
		bootLevel = logging.LevelDebug
	}
	logger := logging.NewLogger(logging.Config{Level: bootLevel, Format: "text", Output: a.stderr})

	configPath, missing := config.GetConfigPath(opts.configFile)
	cfg, validationResult, err := config.ValidateAndLoad(configPath)
	if err != nil {
		logger.Error("Failed to load configuration",
			"error", err,
			"file", configPath,
			"category", errors.GetErrorCategory(err))
		return 1
	}
	for _, warning := range validationResult.Warnings {
		logger.Warn("Configuration validation warning", "warning", warning)
	}
	if !validationResult.Valid {
		for _, validationErr := range validationResult.Errors {
			logger.Error("Configuration error", "error", validationErr.Error())
		}
		return 1
	}
	switch _, statErr := os.Stat(configPath); {
	case missing:
		logger.Debug("No config file found, using defaults", "hint", "run with -init-config to create one")
	case statErr != nil:
		logger.ConfigNotFound(configPath)
	default:
		logger.ConfigLoaded(configPath)
	}

	applyFlags(cfg, opts)
	logger = logging.NewLogger(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: a.stderr,
	})

	validator := validation.NewProxyValidator()
	proxies, warnings, err := loader.LoadProxiesWithValidator(opts.proxyList, validator)
	if err != nil {
		logger.Error("Failed to load proxies",
			"error", err,
			"file", opts.proxyList,
			"category", errors.GetErrorCategory(err),
			"input_error", errors.IsInputError(err))
		help.PrintInputError(a.stderr, err, a.noColor)
		return 1
	}
	for _, warning := range warnings {
		logger.Warn("Proxy loading warning", "warning", warning)
	}
	logger.ProxiesLoaded(len(proxies), opts.proxyList)

	a.in = bufio.NewReader(a.stdin)

	selected, err := a.selectProxies(proxies, opts)
	if err != nil {
		logger.Error("Invalid proxy selection", "error", err, "selection", opts.selection)
		help.PrintUsageError(a.stderr, err, a.noColor)
		return 1
	}

	urls, err := a.targetURLs(opts, cfg.DefaultURL, validator, logger)
	if err != nil {
		help.PrintUsageError(a.stderr, err, a.noColor)
		return 1
	}
	if len(urls) > 1 {
		fmt.Fprintln(a.stdout, ui.URLList(urls))
		fmt.Fprintln(a.stdout)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled || cfg.Metrics.Textfile != "" {
		collector = metrics.NewCollector()
	}
	if cfg.Metrics.Enabled {
		if err := collector.StartServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path); err != nil {
			logger.Warn("Failed to start metrics server", "error", err, "addr", cfg.Metrics.ListenAddr)
		} else {
			logger.Info("Metrics server started", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
			defer func() {
				if err := collector.StopServer(); err != nil {
					logger.Warn("Error stopping metrics server", "error", err)
				}
			}()
		}
	}

	useTUI := !opts.noUI && a.interactive

	// While the TUI owns the terminal, probe logs would corrupt it.
	runLogger := logger
	if useTUI {
		runLogger = logging.Discard()
	}

	connectionPool := pool.NewConnectionPool(cfg.PoolConfig())
	defer connectionPool.CloseIdleConnections()

	checkerOpts := []checker.Option{
		checker.WithPinger(checker.NewCommandPinger(cfg.Ping.Count, time.Duration(cfg.Ping.Timeout)*time.Second)),
	}
	if cfg.GeoIP.Database != "" {
		resolver, err := geo.Open(cfg.GeoIP.Database)
		if err != nil {
			logger.Warn("GeoIP database unavailable, countries will be omitted", "error", err, "file", cfg.GeoIP.Database)
		} else {
			defer resolver.Close()
			checkerOpts = append(checkerOpts, checker.WithGeoResolver(resolver))
		}
	}
	chk := checker.NewChecker(cfg.CheckerConfig(), connectionPool, runLogger, checkerOpts...)
	manager := worker.NewManager(cfg.Concurrency, chk, runLogger)

	probeOpts := checker.Options{Ping: cfg.Ping.Enabled, IPCheck: cfg.IPCheck.Enabled}
	if probeOpts.IPCheck {
		directIP, err := chk.DirectIP(ctx)
		if err != nil {
			logger.Warn("Could not determine direct IP, transparent proxies will not be flagged",
				"error", err,
				"category", errors.GetErrorCategory(err))
		} else {
			probeOpts.DirectIP = directIP
			logger.Debug("Direct IP discovered", "ip", probeOpts.DirectIP)
		}
	}

	if collector != nil {
		collector.StartRun(len(selected), manager.Concurrency())
	}

	stopShutdownLog := context.AfterFunc(ctx, logger.ShutdownReceived)
	defer stopShutdownLog()

	work := func(ctx context.Context, report reportFunc) runResult {
		return execute(ctx, manager, collector, selected, urls, probeOpts, report)
	}

	var res runResult
	aborted := false
	if useTUI {
		res, aborted, err = a.runTUI(ctx, len(selected), opts.verbose, work)
		if err != nil {
			logger.Error("Failed to run TUI program", "error", err)
		}
	} else {
		res = a.runPlain(ctx, len(selected), opts, work)
	}

	if aborted || ctx.Err() != nil {
		logger.Warn("Run interrupted, results are partial")
	}

	a.render(res, urls)
	a.save(logger, opts, urls, res)

	if cfg.Metrics.Textfile != "" {
		if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Error("Failed to write metrics textfile", "error", err, "file", cfg.Metrics.Textfile)
		} else {
			logger.ResultsSaved(cfg.Metrics.Textfile, "prometheus")
		}
	}

	return 0
}

// selectProxies applies -s, or asks for a selection on a terminal.
func (a *app) selectProxies(proxies []proxy.Proxy, opts *options) ([]proxy.Proxy, error) {
	if opts.set["s"] || !a.interactive {
		selection := opts.selection
		if selection == "" {
			selection = "all"
		}
		return loader.Select(proxies, selection)
	}

	fmt.Fprintln(a.stdout, ui.ProxyListTable(proxies))
	fmt.Fprintln(a.stdout, "\nSelect proxies to test")
	fmt.Fprintln(a.stdout, "Enter numbers (1,2,3), ranges (1-5), or 'all'")

	for {
		selection, err := a.prompt("Selection", "all")
		selected, selErr := loader.Select(proxies, selection)
		if selErr == nil {
			fmt.Fprintf(a.stdout, "\nSelected %d proxies for testing.\n\n", len(selected))
			return selected, nil
		}
		if err != nil {
			return nil, selErr
		}
		fmt.Fprintln(a.stdout, "Invalid selection. Please try again.")
	}
}

// targetURLs applies -u, or asks for URLs on a terminal. Without either the
// configured default URL is used.
func (a *app) targetURLs(opts *options, defaultURL string, validator *validation.ProxyValidator, logger *logging.Logger) ([]string, error) {
	raw := opts.urls
	if !opts.set["u"] {
		if a.interactive {
			fmt.Fprintln(a.stdout, "Target URL(s)")
			fmt.Fprintln(a.stdout, "Separate multiple URLs with commas")
			raw, _ = a.prompt("URLs", defaultURL)
			fmt.Fprintln(a.stdout)
		} else {
			raw = defaultURL
		}
	}

	urls, warnings := loader.ParseTargetURLs(raw, validator)
	for _, warning := range warnings {
		logger.Warn("Skipping target URL", "warning", warning)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no valid target URL in %q", raw)
	}
	return urls, nil
}

// prompt reads one line, returning def for an empty answer. The error is
// non-nil once input is exhausted.
func (a *app) prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(a.stdout, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(a.stdout, "%s: ", label)
	}

	line, err := a.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		line = def
	}
	if err != nil {
		fmt.Fprintln(a.stdout)
	}
	return line, err
}
