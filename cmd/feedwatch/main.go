package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/feedwatch/internal/config"
	"github.com/TobiSchelling/feedwatch/internal/database"
	"github.com/TobiSchelling/feedwatch/internal/logging"
	"github.com/TobiSchelling/feedwatch/internal/metrics"
	"github.com/TobiSchelling/feedwatch/internal/pipeline"
	"github.com/TobiSchelling/feedwatch/internal/runlock"
	"github.com/TobiSchelling/feedwatch/internal/scheduler"
	"github.com/TobiSchelling/feedwatch/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "feedwatch",
	Short:   "Feed and web page monitoring",
	Long:    "feedwatch polls RSSHub routes and scraped web pages, scores their content and raises alerts when sources break.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(healthCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("feedwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/feedwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the RSSHub base URL and check interval.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Sources:")
		fmt.Printf("  Total: %d\n", stats.TotalSources)
		fmt.Printf("  Active: %d\n", stats.ActiveSources)
		fmt.Println("\nActivity:")
		fmt.Printf("  Items stored: %d\n", stats.TotalItems)
		fmt.Printf("  Checks recorded: %d\n", stats.TotalOutcomes)
		fmt.Printf("  Unread alerts: %d\n", stats.UnreadAlerts)
		fmt.Println("\nSettings:")
		base := effectiveBaseURL(db)
		if base == "" {
			base = "(not configured)"
		}
		fmt.Printf("  RSSHub base URL: %s\n", base)
		fmt.Printf("  Check interval: %v\n", effectiveInterval(db))
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the periodic checker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, closeLocks, err := newPipeline(ctx, db)
		if err != nil {
			return err
		}
		defer closeLocks()
		runs := metrics.New()
		pipe.Observe(runs)

		sched, err := scheduler.New(effectiveInterval(db), func() {
			n, err := pipe.RunAll(ctx)
			if err != nil {
				logger.Error("scheduled check failed", zap.Error(err))
				return
			}
			logger.Info("scheduled check finished", zap.Int("sources", n))
		}, logger.Named("scheduler"))
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		port := servePort
		if !cmd.Flags().Changed("port") {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		srv := server.New(db, pipe, sched, logger.Named("server"))
		srv.ExposeMetrics(runs)
		return srv.Serve(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- check command ---

var (
	checkAll bool
	dryRun   bool
)

var checkCmd = &cobra.Command{
	Use:   "check [source-id]",
	Short: "Check one source, or all active sources with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkAll == (len(args) == 1) {
			return errors.New("pass either a source ID or --all")
		}
		ctx := cmd.Context()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, closeLocks, err := newPipeline(ctx, db)
		if err != nil {
			return err
		}
		defer closeLocks()

		var sources []database.Source
		if checkAll {
			sources, err = db.ListSources(database.SourceFilter{ActiveOnly: true})
			if err != nil {
				return err
			}
		} else {
			src, err := sourceArg(db, args[0])
			if err != nil {
				return err
			}
			sources = append(sources, *src)
		}

		if len(sources) == 0 {
			fmt.Println("No active sources. Add one with: feedwatch sources add")
			return nil
		}
		for _, src := range sources {
			res := pipe.Check(ctx, src, !dryRun)
			fmt.Printf("[%d] %s: %s (%d items, quality %d)\n", src.ID, src.Name, res.Status, res.ItemCount, res.QualityScore)
			if res.Message != "" {
				fmt.Printf("      %s\n", res.Message)
			}
		}
		if dryRun {
			fmt.Println("\nDry run: items were not saved.")
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "Check every active source")
	checkCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and score without replacing stored items")
}

// --- validate, preview, suggest ---

var validateCmd = &cobra.Command{
	Use:   "validate [route]",
	Short: "Check that a route returns a parseable feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, done, err := standalonePipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		ok, msg := pipe.Validate(cmd.Context(), args[0])
		fmt.Println(msg)
		if !ok {
			return errors.New("route is not valid")
		}
		return nil
	},
}

var previewLimit int

var previewCmd = &cobra.Command{
	Use:   "preview [route]",
	Short: "Show the first entries of a feed without saving them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, done, err := standalonePipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		items, err := pipe.Preview(cmd.Context(), args[0], previewLimit)
		if err != nil {
			return err
		}
		if items == nil {
			fmt.Println("Custom routes have no feed preview.")
			return nil
		}
		for i, it := range items {
			fmt.Printf("%d. %s\n", i+1, it.Title)
			if it.Link != "" {
				fmt.Printf("   %s\n", it.Link)
			}
			fmt.Printf("   %d words", it.WordCount)
			if it.ImageURL != "" {
				fmt.Print(", has image")
			}
			fmt.Println()
			if it.TextContent != "" {
				fmt.Printf("   %s\n", it.TextContent)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().IntVarP(&previewLimit, "limit", "n", 3, "Number of entries to show")
}

var suggestCmd = &cobra.Command{
	Use:   "suggest [url]",
	Short: "Suggest extraction selectors for a web page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, done, err := standalonePipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer done()

		hints, err := pipe.SuggestHints(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if hints.IsEmpty() {
			fmt.Println("No selectors could be suggested for this page.")
			return nil
		}
		fmt.Println(hints.JSON())
		return nil
	},
}

// --- health command ---

var healthLimit int

var healthCmd = &cobra.Command{
	Use:   "health [source-id]",
	Short: "Show recent check health of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		src, err := sourceArg(db, args[0])
		if err != nil {
			return err
		}
		h, err := db.GetSourceHealth(src.ID, healthLimit)
		if err != nil {
			return err
		}

		fmt.Printf("[%d] %s\n", src.ID, src.Name)
		if h.TotalChecks == 0 {
			fmt.Println("  No checks recorded yet.")
			return nil
		}
		fmt.Printf("  Checks: %d\n", h.TotalChecks)
		fmt.Printf("  Success rate: %.1f%%\n", h.SuccessRate)
		fmt.Printf("  Avg quality: %.1f\n", h.AvgQuality)
		fmt.Printf("  Avg items: %.1f\n", h.AvgItems)
		fmt.Printf("  Last status: %s", h.LastStatus)
		if h.LastCheckAt != nil {
			fmt.Printf(" at %s", h.LastCheckAt.Format("2006-01-02 15:04"))
		}
		fmt.Println()
		if h.LastErrorMsg != "" {
			fmt.Printf("  Last error: %s\n", h.LastErrorMsg)
		}

		stats, err := db.GetExtractionStats(src.ID)
		if err != nil {
			return err
		}
		if stats.TotalItems > 0 {
			fmt.Printf("  Items: %d (%d full, %d partial, %.0f words avg)\n",
				stats.TotalItems, stats.FullContent, stats.PartialContent, stats.AvgWordCount)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().IntVarP(&healthLimit, "limit", "n", database.DefaultHealthWindow, "Number of recent checks to consider")
}

// --- helpers ---

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath(), logger.Named("database"))
}

// newPipeline builds the pipeline with settings persisted through the API
// taking precedence over the config file.
func newPipeline(ctx context.Context, db *database.DB) (*pipeline.Pipeline, func(), error) {
	locks, err := runlock.New(ctx, cfg.Lock.RedisAddr, logger.Named("runlock"))
	if err != nil {
		return nil, nil, err
	}
	closeLocks := func() {
		if c, ok := locks.(io.Closer); ok {
			c.Close()
		}
	}

	pipe := pipeline.FromConfig(cfg, db, locks, logger)
	pipe.SetBaseURL(effectiveBaseURL(db))
	return pipe, closeLocks, nil
}

// standalonePipeline opens the store only to read persisted settings.
func standalonePipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	pipe, closeLocks, err := newPipeline(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return pipe, func() {
		closeLocks()
		db.Close()
	}, nil
}

func effectiveBaseURL(db *database.DB) string {
	if v, err := db.GetSetting(database.SettingRSSHubBaseURL); err == nil && v != "" {
		return v
	}
	return cfg.RSSHub.BaseURL
}

func effectiveInterval(db *database.DB) time.Duration {
	if v, err := db.GetSetting(database.SettingCheckInterval); err == nil {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return time.Duration(n) * time.Minute
		}
	}
	return cfg.CheckInterval()
}

func sourceArg(db *database.DB, arg string) (*database.Source, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid source ID: %s", arg)
	}
	src, err := db.GetSource(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("source %d not found", id)
	}
	return src, err
}
