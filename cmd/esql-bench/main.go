package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atomicdeploy/esql-bench/pkg/compare"
	"github.com/atomicdeploy/esql-bench/pkg/config"
	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/atomicdeploy/esql-bench/pkg/fixture"
	"github.com/atomicdeploy/esql-bench/pkg/generator"
	"github.com/atomicdeploy/esql-bench/pkg/seeder"
	"github.com/atomicdeploy/esql-bench/pkg/server"
	"github.com/atomicdeploy/esql-bench/pkg/watcher"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// seedOpsArg matches an op string written with a leading dash
var seedOpsArg = regexp.MustCompile(`^-[cmd][cmid]*$`)

var (
	// Version information
	Version   = "1.0.0"
	BuildDate = "unknown"

	// Global flags
	verbose bool

	// Seed flags
	seed uint64

	// Compare flags
	failFast       bool
	reportPath     string
	watchMode      bool
	debounceString string

	// Color definitions
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warningColor = color.New(color.FgYellow)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "esql-bench",
		Short: "🧪 SQL-to-DSL translation test harness for search engines",
		Long: `
╔═══════════════════════════════════════════════════════════╗
║            🧪 esql-bench - Translation Checker            ║
║   Seeds an index with random rows, then compares SQL     ║
║   translations against reference DSL query results       ║
╚═══════════════════════════════════════════════════════════╝

Settings are read from .esql-bench.json (comments allowed) and
overridden by command-line flags.
`,
		Version: fmt.Sprintf("%s (built: %s)", Version, BuildDate),
	}

	// Global flags
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Seed command
	seedCmd := &cobra.Command{
		Use:   "seed <ops> [rows] [missing-percent]",
		Short: "🌱 Create, map, fill or delete the test index",
		Long: `🌱 Run index operations in order.

Each character of <ops> is one operation:
  c  create the index
  m  put the mapping
  i  insert generated rows
  d  delete the index

Examples:
  esql-bench seed cmi             # create, map and fill with 100 rows
  esql-bench seed dcmi 500 10     # recreate with 500 rows, 10% fields missing
  esql-bench seed -cmi            # leading dash form`,
		Args: cobra.RangeArgs(1, 3),
		Run:  runSeed,
	}
	config.RegisterSeedFlags(seedCmd.Flags())
	seedCmd.Flags().Uint64VarP(&seed, "seed", "s", 0, "Random seed for reproducible rows (0 picks one)")

	// Compare command
	compareCmd := &cobra.Command{
		Use:   "compare [sqls.txt dsls.txt | pairs.json]",
		Short: "🔬 Compare translated SQL results against reference DSL results",
		Long: `🔬 Translate each SQL query, run it and the reference DSL query,
and compare hit ids or group bucket counts.

Queries using LIMIT, LIKE or REGEX are reported as not yet tested.
Exits non-zero when any pair fails.`,
		Args: cobra.MaximumNArgs(2),
		Run:  runCompare,
	}
	compareCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failing pair")
	compareCmd.Flags().StringVarP(&reportPath, "report", "r", "", "Write a JSON report to this file")
	compareCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Watch the query files and re-run on changes")
	compareCmd.Flags().StringVarP(&debounceString, "debounce", "d", "1s", "Debounce duration for watch mode (e.g., 0s, 500ms, 1s, 5s)")

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "🌐 Start an in-memory mock search engine",
		Args:  cobra.NoArgs,
		Run:   runServe,
	}
	serveCmd.Flags().StringP("addr", "a", ":9200", "Server address (e.g., :9200)")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not log requests")

	rootCmd.AddCommand(seedCmd, compareCmd, serveCmd)
	rootCmd.SetArgs(normalizeSeedArgs(os.Args[1:]))

	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Set up logging
	log.SetFlags(0)
	log.SetOutput(os.Stdout)
}

// normalizeSeedArgs inserts "--" before a dash-prefixed op string such as
// "seed -cmi" so it is read as the ops argument. Strings starting with -i are
// left alone since -i is the index flag.
func normalizeSeedArgs(args []string) []string {
	for i, arg := range args {
		if arg == "--" {
			return args
		}
		if arg != "seed" {
			continue
		}

		for j := i + 1; j < len(args); j++ {
			if args[j] == "--" {
				return args
			}
			if seedOpsArg.MatchString(args[j]) {
				out := make([]string, 0, len(args)+1)
				out = append(out, args[:j]...)
				out = append(out, "--")
				return append(out, args[j:]...)
			}
		}
		return args
	}
	return args
}

// loadConfig reads the config file and applies any flags set on the command line
func loadConfig(cmd *cobra.Command) config.Config {
	workDir, err := os.Getwd()
	if err != nil {
		errorColor.Printf("❌ Cannot get working directory: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.FromFlags(workDir, cmd.Flags())
	if err != nil {
		errorColor.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Source != "" && verbose {
		infoColor.Printf("⚙️  Loaded config: %s\n", cfg.Source)
	}

	return cfg
}

// signalContext is cancelled on Ctrl+C
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSeed(cmd *cobra.Command, args []string) {
	ops, err := seeder.ParseOps(args[0])
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		errorColor.Println("💡 Valid operations: c (create), m (mapping), i (insert), d (delete)")
		os.Exit(1)
	}

	cfg := loadConfig(cmd)
	if len(args) > 1 {
		cfg.Rows = parseIntArg("rows", args[1])
	}
	if len(args) > 2 {
		cfg.MissingPercent = parseIntArg("missing-percent", args[2])
	}
	if err := cfg.Validate(); err != nil {
		errorColor.Printf("❌ Invalid settings: %v\n", err)
		os.Exit(1)
	}

	schema := fixture.DefaultSchema()
	if cfg.Mapping != "" {
		schema, err = fixture.LoadSchema(cfg.Mapping)
		if err != nil {
			errorColor.Printf("❌ Failed to load mapping: %v\n", err)
			os.Exit(1)
		}
		infoColor.Printf("🗂️  Using mapping from %s\n", cfg.Mapping)
	}

	genOpts := []generator.Option{generator.WithPrecision(cfg.Precision)}
	if seed != 0 {
		genOpts = append(genOpts, generator.WithSeed(seed))
	}
	gen, err := generator.New(cfg.MissingPercent, genOpts...)
	if err != nil {
		errorColor.Printf("❌ Failed to create generator: %v\n", err)
		os.Exit(1)
	}

	client, err := engine.NewClient(cfg.Engine())
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	s, err := seeder.New(client, gen, schema,
		seeder.WithRows(cfg.Rows),
		seeder.WithResultHook(func(r seeder.Result) {
			successColor.Printf("✅ %s\n", r.Message)
		}),
		seeder.WithInsertHook(func(row int, id string) {
			if verbose {
				fmt.Printf("   • row %d -> %s\n", row, id)
			}
		}),
	)
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	infoColor.Printf("🔗 Engine: %s\n", client.IndexURL())
	if verbose && containsOp(ops, seeder.OpMapping) {
		infoColor.Printf("🗂️  Columns: %s\n", strings.Join(schema.Columns(), ", "))
	}
	if containsOp(ops, seeder.OpInsert) {
		infoColor.Printf("📊 Rows: %d, missing fields: %d%%, date precision: %s\n", cfg.Rows, cfg.MissingPercent, cfg.Precision)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := s.Run(ctx, ops); err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

func containsOp(ops []seeder.Op, op seeder.Op) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func parseIntArg(name, value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		errorColor.Printf("❌ Invalid %s '%s': expected an integer\n", name, value)
		os.Exit(1)
	}
	return n
}

func runCompare(cmd *cobra.Command, args []string) {
	paths := args
	if len(paths) == 0 {
		paths = []string{"sqls.txt", "dsls.txt"}
	}

	src, err := fixture.NewSource(paths...)
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig(cmd)
	client, err := engine.NewClient(cfg.Engine())
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	opts := []compare.RunnerOption{compare.WithOutcomeHook(printOutcome)}
	if failFast {
		opts = append(opts, compare.WithFailFast())
	}
	runner := compare.NewRunner(client, opts...)

	ctx, cancel := signalContext()
	defer cancel()

	infoColor.Printf("🔗 Engine: %s\n", client.IndexURL())

	if !watchMode {
		if !passed(compareOnce(ctx, runner, src, reportPath)) {
			os.Exit(1)
		}
		return
	}

	debounceDuration := parseDebounceDuration(debounceString)

	infoColor.Printf("👀 Watching: %v\n", src.Paths())
	infoColor.Println("📝 Press Ctrl+C to stop watching")

	// Initial run
	compareOnce(ctx, runner, src, reportPath)

	fw, err := watcher.NewFileWatcher()
	if err != nil {
		errorColor.Printf("❌ Failed to create file watcher: %v\n", err)
		os.Exit(1)
	}
	defer fw.Close()

	if err := fw.Watch(src.Paths(), func(path string) {
		fmt.Println()
		infoColor.Printf("🔄 File changed: %s\n", filepath.Base(path))
		compareOnce(ctx, runner, src, reportPath)
	}, debounceDuration); err != nil {
		errorColor.Printf("❌ Failed to watch files: %v\n", err)
		os.Exit(1)
	}

	fw.Start()

	<-ctx.Done()
	fmt.Println()
	infoColor.Println("👋 Stopped watching")
}

// compareOnce loads the pairs, runs them and prints the summary.
// The report is nil when the queries could not be loaded.
func compareOnce(ctx context.Context, runner *compare.Runner, src fixture.Source, reportPath string) (*compare.Report, error) {
	pairs, err := src.Pairs()
	if err != nil {
		errorColor.Printf("❌ Failed to load queries: %v\n", err)
		return nil, err
	}

	report, runErr := runner.Run(ctx, pairs)
	if runErr != nil {
		warningColor.Printf("⚠️  Run interrupted: %v\n", runErr)
	}

	if reportPath != "" {
		if err := report.WriteFile(reportPath); err != nil {
			errorColor.Printf("❌ %v\n", err)
			return report, err
		}
		infoColor.Printf("📝 Report written to %s\n", reportPath)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if passed(report, runErr) {
		successColor.Printf("✅ %s\n", report.Summary())
	} else {
		errorColor.Printf("❌ %s\n", report.Summary())
		for _, o := range report.Failures() {
			fmt.Printf("   • #%d %s\n", o.Index, o.SQL)
		}
	}
	return report, runErr
}

// passed decides the exit status of a compare run
func passed(report *compare.Report, err error) bool {
	return err == nil && report != nil && report.OK()
}

func printOutcome(o compare.Outcome) {
	switch o.Status {
	case compare.StatusPass:
		successColor.Printf("✅ %s\n", o.Message)
	case compare.StatusFail:
		errorColor.Printf("❌ %s\n", o.Message)
	case compare.StatusSkip:
		warningColor.Printf("⚠️  %s\n", o.Message)
	}
	if verbose {
		fmt.Printf("   %s\n", o.SQL)
	}
}

// parseDebounceDuration parses and validates a debounce duration string
func parseDebounceDuration(durationStr string) time.Duration {
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		errorColor.Printf("❌ Invalid debounce duration '%s': %v\n", durationStr, err)
		errorColor.Println("💡 Valid examples: 0s, 500ms, 1s, 5s, 1m")
		os.Exit(1)
	}
	return duration
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	quiet, _ := cmd.Flags().GetBool("quiet")

	var opts []server.Option
	if quiet {
		opts = append(opts, server.WithQuiet())
	}

	srv := server.NewServer(opts...)
	defer srv.Close()

	successColor.Printf("🌐 Mock engine running at http://localhost%s\n", addr)
	infoColor.Println("📝 Press Ctrl+C to stop the server")

	if err := srv.Start(addr); err != nil {
		errorColor.Printf("❌ Server error: %v\n", err)
		os.Exit(1)
	}
}
