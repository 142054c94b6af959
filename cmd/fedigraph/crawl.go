package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fedigraph/fedigraph/internal/archive"
	"github.com/fedigraph/fedigraph/internal/config"
	"github.com/fedigraph/fedigraph/internal/crawler"
	"github.com/fedigraph/fedigraph/internal/fetch"
	"github.com/fedigraph/fedigraph/internal/report"
	"github.com/fedigraph/fedigraph/internal/seed"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [software]...",
		Short: "Crawl the instances of one or more federated softwares",
		Long: `Crawl discovers the live instances of a federated software, checks each
host's robots.txt, and extracts the instance graph through the public API.

Every crawl subject registered for the software runs in sequence; a
software like lemmy produces both a federation graph and a community
interaction graph. Each run writes its CSV datasets, log, and summary into
its own directory under the output directory.

Examples:
  # Crawl the Lemmy network
  fedigraph crawl lemmy

  # Crawl every supported software
  fedigraph crawl all

  # Crawl with a custom seed list (see the configuration file)
  fedigraph crawl -c myconfig.yaml misskey

Configuration file (.fedigraph) example:
  seeds:
    lemmy:
      - lemmy.ml
      - lemmy.world
  directory: https://api.fediverse.observer`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().Int64P("concurrency", "n", config.DefaultConcurrency,
		"Maximum number of concurrent network operations")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each API request")
	cmd.Flags().StringP("output-dir", "o", ".",
		"Directory under which run directories are created")
	cmd.Flags().String("directory", config.DefaultDirectoryEndpoint,
		"Node discovery service queried for seed host lists")

	// Subject tuning flags
	cmd.Flags().Int("top-users", config.DefaultTopUsers,
		"Users explored per host during user-interaction crawls")
	cmd.Flags().String("activity-scope", config.DefaultActivityScope,
		"Community activity window: "+strings.Join(config.ActivityScopes(), ", "))
	cmd.Flags().Int("min-active-users", config.DefaultMinActiveUsers,
		"Minimum active users for a community to be crawled")

	// Archive flags
	cmd.Flags().Bool("no-archive", false,
		"Do not record the run in the local archive database")
	cmd.Flags().String("archive-dir", "",
		"Archive database directory (default: XDG data directory)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .fedigraph in current or home directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runCrawl(ctx, cfg, logger)
}

// buildConfig assembles the run configuration from flags, arguments, and
// the optional configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	if cfg.Concurrency, err = cmd.Flags().GetInt64("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = cmd.Flags().GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.DirectoryEndpoint, err = cmd.Flags().GetString("directory"); err != nil {
		return nil, err
	}
	if cfg.TopUsers, err = cmd.Flags().GetInt("top-users"); err != nil {
		return nil, err
	}
	if cfg.ActivityScope, err = cmd.Flags().GetString("activity-scope"); err != nil {
		return nil, err
	}
	if cfg.MinActiveUsers, err = cmd.Flags().GetInt("min-active-users"); err != nil {
		return nil, err
	}
	if cfg.NoArchive, err = cmd.Flags().GetBool("no-archive"); err != nil {
		return nil, err
	}
	if cfg.ArchiveDir, err = cmd.Flags().GetString("archive-dir"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	cfg.Softwares, err = resolveSoftwares(args)
	if err != nil {
		return nil, err
	}

	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		overrides, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot load %s: %w", path, err)
		}
		cfg.Overrides = overrides
		if overrides.Directory != "" && !cmd.Flags().Changed("directory") {
			cfg.DirectoryEndpoint = overrides.Directory
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	return cfg, nil
}

// resolveSoftwares maps the positional arguments onto registered software
// names; "all" expands to every registered software.
func resolveSoftwares(args []string) ([]string, error) {
	registered := crawler.Softwares()

	var softwares []string
	seen := make(map[string]bool)
	for _, arg := range args {
		arg = strings.ToLower(strings.TrimSpace(arg))
		if arg == "all" {
			return registered, nil
		}

		known := false
		for _, name := range registered {
			if name == arg {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: %q (available: %s)",
				config.ErrUnknownSoftware, arg, strings.Join(registered, ", "))
		}
		if !seen[arg] {
			seen[arg] = true
			softwares = append(softwares, arg)
		}
	}
	return softwares, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the command-level logger. Each run additionally
// writes its own debug log into the run directory.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runCrawl runs every crawl subject of every selected software. One
// failing run does not stop the others; all failures are reported at the
// end.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var arch *archive.Archive
	if !cfg.NoArchive {
		var err error
		arch, err = archive.Open(cfg.EffectiveArchiveDir(), archive.DefaultOptions())
		if err != nil {
			return fmt.Errorf("cannot open archive: %w", err)
		}
		defer func() { _ = arch.Close() }()
	}

	// A tiny separate limiter: seed discovery happens before any crawl
	// traffic and involves a single service.
	directory := seed.NewDirectory(
		fetch.NewClient(fetch.NewLimiter(4),
			fetch.WithTimeout(cfg.Timeout),
			fetch.WithLogger(logger),
		),
		cfg.DirectoryEndpoint,
	)

	var failures []error
	for _, software := range cfg.Softwares {
		seeds := cfg.Seeds(software)
		if seeds == nil {
			var err error
			seeds, err = directory.Hosts(ctx, software)
			if err != nil {
				failures = append(failures, fmt.Errorf("%s: seed discovery: %w", software, err))
				continue
			}
		}
		logger.Info("starting crawl", "software", software, "seeds", len(seeds))

		constructors, ok := crawler.ForSoftware(software)
		if !ok {
			failures = append(failures, fmt.Errorf("%w: %q", config.ErrUnknownSoftware, software))
			continue
		}
		for _, construct := range constructors {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(failures, err)...)
			}
			inspector := construct(cfg)
			if err := runOne(ctx, cfg, arch, inspector, seeds, logger); err != nil {
				failures = append(failures,
					fmt.Errorf("%s/%s: %w", inspector.Software(), inspector.Subject(), err))
			}
		}
	}
	return errors.Join(failures...)
}

// runOne executes a single crawl subject and records its results.
func runOne(ctx context.Context, cfg *config.Config, arch *archive.Archive, inspector crawler.Inspector, seeds []string, logger *slog.Logger) error {
	opts := []crawler.OrchestratorOption{crawler.WithVersion(getVersion())}
	if cfg.Overrides != nil && cfg.Overrides.UserAgent != "" {
		opts = append(opts, crawler.WithUserAgent(cfg.Overrides.UserAgent))
	}

	stats, err := crawler.NewOrchestrator(inspector, cfg, opts...).Run(ctx, seeds)
	if err != nil {
		return err
	}

	if path, err := report.WriteSummaryFile(stats); err != nil {
		logger.Warn("cannot write run summary", "error", err)
	} else {
		logger.Info("run summary written", "path", path)
	}

	if arch != nil {
		if err := archiveRun(ctx, arch, stats); err != nil {
			logger.Warn("cannot archive run", "error", err)
		}
	}

	logger.Info("crawl finished",
		"software", stats.Software,
		"subject", stats.Subject,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed.Round(time.Second),
	)
	return nil
}

// archiveRun stores the run row and its cleaned node table.
func archiveRun(ctx context.Context, arch *archive.Archive, stats *crawler.Stats) error {
	runID, err := arch.StoreRun(ctx, archive.Run{
		Software:  stats.Software,
		Subject:   stats.Subject,
		RunDir:    stats.RunDir,
		StartedAt: stats.StartedAt,
		Elapsed:   stats.Elapsed,
		Seeds:     stats.Seeds,
		Vetoed:    stats.Vetoed,
		Succeeded: stats.Succeeded,
		Failed:    stats.Failed,
	})
	if err != nil {
		return err
	}

	nodesCSV := filepath.Join(stats.RunDir, crawler.DatasetInstances+".csv")
	if _, err := arch.ImportNodesCSV(ctx, runID, nodesCSV); err != nil {
		return err
	}
	return nil
}
