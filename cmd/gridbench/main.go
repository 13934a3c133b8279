// Command gridbench runs parameterised benchmark commands and collects
// their timings into tabular result files.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/deixis/gridbench"
	"github.com/deixis/gridbench/internal/chart"
	"github.com/deixis/gridbench/internal/config"
	"github.com/deixis/gridbench/internal/descriptor"
	"github.com/deixis/gridbench/internal/executor"
	"github.com/deixis/gridbench/internal/grid"
	benchmcp "github.com/deixis/gridbench/internal/mcp"
	"github.com/deixis/gridbench/internal/proc"
	"github.com/deixis/gridbench/internal/quality"
	"github.com/deixis/gridbench/internal/result"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "list":
		err = listMain(args)
	case "run":
		err = runMain(args)
	case "chart":
		err = chartMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(gridbench.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "gridbench: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "gridbench: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: gridbench <command> [flags] [args]

Commands:
  list        List the known benchmark runners
  run         Run benchmark runners and write a result table
  chart       Render comparison charts from result tables
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "gridbench <command> -h" for command-specific flags.`)
}

// newLogger builds the process-wide log sink. Subprocess stdout is
// forwarded at debug, so verbose runs switch the sink to debug level.
func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// --- list ---

func listMain(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	kindFlag := fs.String("kind", "", "only list runners of this kind (timing or quality)")
	dirFlag := fs.String("dir", "", "runner directory (overrides config)")
	_ = fs.Parse(args)

	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}

	dir := cfg.RunnerDir(root)
	if *dirFlag != "" {
		dir = *dirFlag
	}
	descs, err := descriptor.LoadDir(dir)
	if err != nil {
		return err
	}

	for _, d := range descs {
		if *kindFlag != "" && string(d.Kind) != *kindFlag {
			continue
		}
		line := fmt.Sprintf("%-24s %s", d.Name, d.Kind)
		if cfg.IsDisabled(d.Name) {
			line += "  (disabled)"
		}
		fmt.Println(line)
	}
	return nil
}

// --- run ---

func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verboseFlag := fs.Bool("v", false, "verbose: forward subprocess output and pass verbose flags")
	kindFlag := fs.String("kind", "", "only run runners of this kind (timing or quality)")
	disableFlag := fs.String("disable", "", "comma-separated runner names to skip")
	dirFlag := fs.String("dir", "", "runner directory (overrides config)")
	outFlag := fs.String("out", "", "results directory (overrides config)")
	_ = fs.Parse(args)

	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}
	verbose := *verboseFlag || cfg.Verbose
	log := newLogger(verbose)

	dir := cfg.RunnerDir(root)
	if *dirFlag != "" {
		dir = *dirFlag
	}
	resultsDir := cfg.ResultsDir(root)
	if *outFlag != "" {
		resultsDir = *outFlag
	}

	descs, err := descriptor.LoadDir(dir)
	if err != nil {
		return err
	}
	descs = filterDescriptors(descs, cfg, *kindFlag, *disableFlag)
	if len(descs) == 0 {
		log.Warn("no runners selected; nothing to do")
		return nil
	}

	overrides, err := parseOverrides(fs.Args())
	if err != nil {
		return err
	}
	merged := cfg.DefaultOverrides().Merge(overrides)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := &executor.Engine{
		Monitor: &proc.Monitor{Log: log},
		Quality: quality.FloatComparer{},
		Log:     log,
		Verbose: verbose,
	}

	records, err := engine.ExecuteAll(ctx, descs, merged)
	if err != nil {
		return err
	}

	completed := time.Now()
	tablePath, err := result.WriteFile(resultsDir, records, completed)
	if err != nil {
		return err
	}
	if tablePath == "" {
		log.Warn("no result records gathered; no table written")
		return nil
	}

	store := result.NewDiskStore(invocationDir(resultsDir))
	inv := &result.Invocation{
		ID:        uuid.New().String(),
		Completed: completed,
		TablePath: tablePath,
		Records:   records,
	}
	if err := store.Save(inv); err != nil {
		log.Warnf("saving invocation: %v", err)
	}

	log.Infof("wrote %d record(s) to %s (invocation %s)", len(records), tablePath, inv.ID)
	return nil
}

func filterDescriptors(descs []*descriptor.Descriptor, cfg *config.Config, kind, disable string) []*descriptor.Descriptor {
	disabled := make(map[string]bool)
	for _, name := range strings.Split(disable, ",") {
		if name != "" {
			disabled[name] = true
		}
	}

	var out []*descriptor.Descriptor
	for _, d := range descs {
		if kind != "" && string(d.Kind) != kind {
			continue
		}
		if disabled[d.Name] || cfg.IsDisabled(d.Name) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// parseOverrides parses positional key=v1,v2 arguments into a ParamSet,
// in argument order.
func parseOverrides(args []string) (*grid.ParamSet, error) {
	s := grid.NewParamSet()
	for _, arg := range args {
		key, values, ok := strings.Cut(arg, "=")
		if !ok || key == "" || values == "" {
			return nil, fmt.Errorf("malformed parameter override %q, want key=v1,v2", arg)
		}
		s.Add(key, strings.Split(values, ","))
	}
	return s, nil
}

// --- chart ---

func chartMain(args []string) error {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	outFlag := fs.String("out", "charts", "output directory for charts and the HTML summary")
	measureFlag := fs.String("measure", "elapsed", "comma-separated measurement columns to chart")
	_ = fs.Parse(args)

	tables := fs.Args()
	if len(tables) == 0 {
		return fmt.Errorf("chart: no result tables given")
	}

	measurements := strings.Split(*measureFlag, ",")
	htmlPath, err := chart.Render(tables, *outFlag, measurements)
	if err != nil {
		return err
	}
	fmt.Println(htmlPath)
	return nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	verboseFlag := fs.Bool("v", false, "verbose logging")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(benchmcp.Instructions)
		return nil
	}

	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(*verboseFlag || cfg.Verbose)

	engine := &executor.Engine{
		Monitor: &proc.Monitor{Log: log},
		Quality: quality.FloatComparer{},
		Log:     log,
		Verbose: cfg.Verbose,
	}

	disk := result.NewDiskStore(invocationDir(cfg.ResultsDir(root)))
	store := result.NewLRUStore(5, disk)

	server := benchmcp.NewServer(cfg, root, engine, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *httpAddr != "" {
		return serveHTTP(ctx, log, server, *httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, log *logrus.Logger, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Infof("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- shared ---

func loadConfig() (*config.Config, string, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return loaded.Config, loaded.RepoRoot, nil
}

func invocationDir(resultsDir string) string {
	return filepath.Join(resultsDir, "runs")
}
