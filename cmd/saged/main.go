package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"saged/internal/builder"
	"saged/internal/config"
	"saged/internal/descriptor"
	"saged/internal/embedding"
	"saged/internal/llm"
	"saged/internal/logging"
	"saged/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	// Per-command flags
	buildCSV     string
	exportOut    string
	exportDomain string
	listDomain   string
	listLimit    int
	watchDir     string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "saged",
	Short: "saged - bias benchmark assembly and counterfactual branching",
	Long: `saged builds bias benchmarks from a domain configuration: it collects
source sentences per concept, expands keywords, assembles prompts, and
generates counterfactual branches by substituting concept keywords under
replacement descriptors resolved against an embedding service.

Benchmarks are persisted in SQLite and exportable as CSV.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			if workspace, err = config.FindWorkspaceRoot(); err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}

		// Categorized file logging is driven by .saged/config.json in
		// the workspace and stays silent unless debug_mode is set.
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// buildCmd runs one benchmark build end to end
var buildCmd = &cobra.Command{
	Use:   "build [domain-config]",
	Short: "Build a benchmark from a domain configuration",
	Long: `Runs the full pipeline for one build request:
  1. Collect: gather source sentences per concept
  2. Expand: resolve each concept's keyword list
  3. Assemble: transform sentences into prompts
  4. Branch: substitute keywords under resolved replacement descriptors
  5. Merge: union the surviving concepts into one benchmark

The merged benchmark is stored in SQLite; failed concepts are recorded
as skipped with their error kind.

Example:
  saged build energy.yaml --csv exports/energy.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

// validateCmd dry-runs a domain configuration
var validateCmd = &cobra.Command{
	Use:   "validate [domain-config]",
	Short: "Validate a domain configuration and its descriptor files",
	Long: `Loads the domain configuration, applies defaults, and checks every
structural invariant without building anything. Replacement descriptor
files referenced by the branching config are loaded and validated too.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

// exportCmd writes a stored build as CSV
var exportCmd = &cobra.Command{
	Use:   "export [build-id]",
	Short: "Export a stored benchmark as CSV",
	Long: `Exports one build's records, one row per prompt or branch. Without a
build id the newest stored build is exported.

Example:
  saged export 5e1f... --out exports/energy.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

// listCmd shows stored builds
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored benchmark builds, newest first",
	RunE:  runList,
}

// watchCmd revalidates descriptor files on change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the descriptor directory and revalidate files on change",
	Long: `Watches the replacement descriptor directory and revalidates each
YAML file once its edits settle. Bad files are reported without being
touched; fix them in place and the watcher picks the change up.`,
	RunE: runWatch,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "saged.yaml", "Tool configuration file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	buildCmd.Flags().StringVar(&buildCSV, "csv", "", "Also export the finished build to this CSV path")

	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output CSV path (default: <export_dir>/<build-id>.csv)")
	exportCmd.Flags().StringVar(&exportDomain, "domain", "", "Pick the newest build of this domain")

	listCmd.Flags().StringVar(&listDomain, "domain", "", "Only list builds of this domain")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum builds to list")

	watchCmd.Flags().StringVar(&watchDir, "dir", "", "Descriptor directory (default: from configuration)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runBuild executes one build request end to end
func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	dc, err := config.LoadDomainConfig(args[0])
	if err != nil {
		return fmt.Errorf("failed to load domain config: %w", err)
	}

	logger.Info("Building benchmark",
		zap.String("domain", dc.Domain),
		zap.Int("concepts", len(dc.Concepts)))

	bench, err := builder.NewDomainBuilder(cfg, newLLMClient(cfg), newEmbeddingEngine(cfg)).Build(ctx, dc)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	s, err := store.NewBenchmarkStore(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open benchmark store: %w", err)
	}
	defer s.Close()
	if err := s.SaveBenchmark(bench); err != nil {
		return fmt.Errorf("failed to save build %s: %w", bench.BuildID, err)
	}

	fmt.Printf("Build %s complete\n", bench.BuildID)
	fmt.Printf("  Domain:   %s\n", bench.Domain)
	fmt.Printf("  Prompts:  %d\n", len(bench.Prompts))
	fmt.Printf("  Branches: %d\n", len(bench.Branches))
	if len(bench.SkippedConcepts) > 0 {
		fmt.Printf("  Skipped:  %d\n", len(bench.SkippedConcepts))
		for _, sc := range bench.SkippedConcepts {
			fmt.Printf("    - %s (%s): %s\n", sc.Concept, sc.Kind, sc.Reason)
		}
	}
	for _, diag := range bench.PairDiagnostics {
		if diag.Failed() {
			fmt.Printf("  Pair %s->%s failed: %v\n", diag.Stem, diag.Branch, diag.Err)
		}
	}

	if buildCSV != "" {
		n, err := s.ExportCSV(bench.BuildID, buildCSV)
		if err != nil {
			return fmt.Errorf("failed to export CSV: %w", err)
		}
		fmt.Printf("  CSV:      %s (%d rows)\n", buildCSV, n)
	}
	return nil
}

// runValidate dry-runs a domain configuration
func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	dc, err := config.LoadDomainConfig(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("✓ domain %q: %d concepts\n", dc.Domain, len(dc.Concepts))

	if dc.Branching == nil {
		fmt.Println("  branching: disabled")
		fmt.Println("Configuration is valid")
		return nil
	}

	specs, err := descriptor.CollectSpecs(*dc.Branching, cfg.Build.DescriptorDir)
	if err != nil {
		return fmt.Errorf("descriptor files: %w", err)
	}
	if err := descriptor.ValidateSpecs(specs); err != nil {
		return fmt.Errorf("replacement descriptors: %w", err)
	}
	fmt.Printf("✓ branching: %d descriptor pairs, direction %s\n", len(specs), dc.Branching.Direction)
	fmt.Println("Configuration is valid")
	return nil
}

// runExport writes a stored build as CSV
func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	s, err := store.NewBenchmarkStore(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open benchmark store: %w", err)
	}
	defer s.Close()

	var buildID string
	if len(args) > 0 {
		buildID = args[0]
	} else {
		builds, err := s.ListBuilds(exportDomain, 1)
		if err != nil {
			return fmt.Errorf("failed to list builds: %w", err)
		}
		if len(builds) == 0 {
			return fmt.Errorf("no builds stored")
		}
		buildID = builds[0].BuildID
		logger.Info("Exporting newest build", zap.String("build_id", buildID))
	}

	out := exportOut
	if out == "" {
		out = filepath.Join(cfg.Store.ExportDir, buildID+".csv")
	}
	n, err := s.ExportCSV(buildID, out)
	if err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	fmt.Printf("Exported build %s to %s (%d rows)\n", buildID, out, n)
	return nil
}

// runList shows stored builds
func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	s, err := store.NewBenchmarkStore(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open benchmark store: %w", err)
	}
	defer s.Close()

	builds, err := s.ListBuilds(listDomain, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list builds: %w", err)
	}
	if len(builds) == 0 {
		fmt.Println("No builds stored")
		return nil
	}

	fmt.Printf("%-36s  %-16s  %-19s  %7s  %8s  %7s\n",
		"BUILD", "DOMAIN", "GENERATED", "PROMPTS", "BRANCHES", "SKIPPED")
	for _, b := range builds {
		fmt.Printf("%-36s  %-16s  %-19s  %7d  %8d  %7d\n",
			b.BuildID, b.Domain, b.GeneratedAt.UTC().Format("2006-01-02 15:04:05"),
			b.Prompts, b.Branches, b.Skipped)
	}
	return nil
}

// runWatch revalidates descriptor files until interrupted
func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	dir := watchDir
	if dir == "" {
		dir = cfg.Build.DescriptorDir
	}

	w, err := descriptor.NewWatcher(dir, cfg.GetWatcherDebounce(),
		func(path string, specs []config.DescriptorSpec, err error) {
			if err != nil {
				fmt.Printf("✗ %s: %v\n", path, err)
				return
			}
			fmt.Printf("✓ %s: %d descriptor pairs\n", path, len(specs))
		})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	// Validate what is already there before waiting for changes.
	if err := w.TriggerReload(); err != nil {
		logger.Warn("Initial descriptor scan failed", zap.Error(err))
	}

	fmt.Printf("Watching %s for descriptor changes. Press Ctrl+C to stop.\n", dir)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println()
	logger.Info("Received shutdown signal")
	return nil
}

// newLLMClient builds the configured language model client. A build can
// run without one; concepts whose configuration demands it fail on
// their own.
func newLLMClient(cfg *config.Config) llm.Client {
	client, err := llm.NewClientFromConfig(cfg)
	if err != nil {
		logger.Warn("Continuing without a language model client", zap.Error(err))
		return nil
	}
	return client
}

// newEmbeddingEngine builds the configured embedding engine, wrapped in
// a circuit breaker when enabled. Without an engine, descriptor
// derivation fails closed per pair.
func newEmbeddingEngine(cfg *config.Config) embedding.Engine {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		OllamaURL: cfg.Embedding.OllamaURL,
		Timeout:   cfg.GetEmbeddingTimeout(),
	})
	if err != nil {
		logger.Warn("Continuing without an embedding engine", zap.Error(err))
		return nil
	}
	if cfg.Embedding.Breaker.Enabled {
		engine = embedding.NewBreakerEngine(engine, embedding.BreakerConfig{
			MaxRequests:  uint32(cfg.Embedding.Breaker.MaxRequests),
			Interval:     cfg.GetBreakerInterval(),
			Timeout:      cfg.GetBreakerTimeout(),
			FailureRatio: cfg.Embedding.Breaker.FailureRatio,
			MinRequests:  uint32(cfg.Embedding.Breaker.MinRequests),
		})
	}
	return engine
}
