// Package main is the suggest CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/suggest/internal/changefeed"
	"github.com/hyperjump/suggest/internal/cli"
	"github.com/hyperjump/suggest/internal/config"
	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/server"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/suggest/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	shutdownTimeout   = 10 * time.Second
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "suggest":
		runSuggest()
	case "create":
		runCreate()
	case "get":
		runGet()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("suggest version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`suggest - similar scenario suggestions over a live scenario catalog

Usage:
  suggest <command> [flags] [arguments]

Commands:
  server                 Run the HTTP server, index synchronizer and change log pruner
  suggest <query>        Suggest scenarios similar to the query
  create <title>         Create a scenario
  get <id>               Show a scenario
  status                 Show index and synchronizer status
  version                Print the version
  help                   Show this help

Commands other than server talk to a running server (-server, default ` + defaultServerURL + `).
Pass -server "" to open the database directly instead.
`)
}

// setupLogger loads the config and builds the logger every subcommand shares.
func setupLogger(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger("suggest", debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setupLogger(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	components, err := initializeComponents(cfg, logger, feedSQLite)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, components, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		saveVectorIndex(cfg, components.VectorIndex, logger)
		components.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
	saveVectorIndex(cfg, components.VectorIndex, logger)
}

// serve runs the change feed, the synchronizer, the change log pruner and the HTTP server
// until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	if feed, ok := c.Feed.(*changefeed.SQLiteFeed); ok {
		if err := feed.Start(gctx); err != nil {
			return err
		}
	}

	pruner, err := changefeed.NewPruner(c.Storage.DB(), cfg.Sync.PruneSchedule, cfg.Sync.ChangeRetention, logger)
	if err != nil {
		return err
	}
	if err := pruner.Start(); err != nil {
		return err
	}
	defer pruner.Stop()

	srv := server.NewServer(c.Search, c.Indexer, c.Storage, c.VectorIndex, c.Synchronizer, cfg, logger)

	g.Go(func() error {
		return c.Synchronizer.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	return g.Wait()
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// defaultLimitFromConfig returns search.default_limit from the config at path, or 5 when it
// cannot be loaded.
func defaultLimitFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return 5
	}
	return cfg.Search.DefaultLimit
}

// argsReorder moves any flags (and their values) that appear after the positional arguments
// to the front of the slice so that flag.Parse() sees them. Go's flag package stops at the
// first non-flag argument, so "suggest suggest login -k 3" would otherwise leave -k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSuggestUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: suggest suggest [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  suggest suggest user logs in
  suggest suggest "user logs in" -k 10
  suggest suggest -output compact reset password
`)
}

func runSuggest() {
	args := argsReorder(os.Args[2:])
	configPath := configPathFromArgs(args, defaultConfigPath)

	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the database directly)")
	k := fs.Int("k", defaultLimitFromConfig(configPath), "number of suggestions")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSuggestUsage(fs) }
	_ = fs.Parse(args)

	query := buildQuery(fs.Args())
	if query == "" {
		printSuggestUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var response *models.SuggestResponse
	if *serverURL != "" {
		response, err = newAPIClient(*serverURL).Suggest(context.Background(), query, *k)
	} else {
		response, err = suggestDirect(*configPathFlag, query, *k)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Suggest failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSuggestions(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// suggestDirect loads the index from the database in-process and answers one query.
func suggestDirect(configPath, query string, k int) (*models.SuggestResponse, error) {
	cfg, _, logger := setupLogger(configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, feedLocal)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	stop, err := warmIndex(ctx, components)
	if err != nil {
		return nil, err
	}
	defer stop()
	return components.Search.Suggest(ctx, query, k)
}

func runCreate() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = write to the database directly)")
	description := fs.String("description", "", "scenario description")
	_ = fs.Parse(args)

	title := buildQuery(fs.Args())
	if title == "" {
		fmt.Println("Usage: suggest create [flags] <title>")
		os.Exit(1)
	}
	input := &models.ScenarioInput{Title: title, Description: *description}

	var id int64
	var err error
	if *serverURL != "" {
		id, err = newAPIClient(*serverURL).Create(context.Background(), input)
	} else {
		cfg, _, logger := setupLogger(*configPath, false)
		defer logger.Sync()
		var components *Components
		components, err = initializeComponents(cfg, logger, feedLocal)
		if err == nil {
			defer components.Close()
			var sc *models.Scenario
			sc, err = components.Indexer.CreateScenario(context.Background(), input)
			if sc != nil {
				id = sc.ID
			}
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Scenario created: %d\n", id)
}

func runGet() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the database directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: suggest get [flags] <id>")
		os.Exit(1)
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid scenario id %q\n", fs.Arg(0))
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var sc *models.Scenario
	if *serverURL != "" {
		sc, err = newAPIClient(*serverURL).Get(context.Background(), id)
	} else {
		cfg, _, logger := setupLogger(*configPath, false)
		defer logger.Sync()
		var store *storage.SQLiteStorage
		store, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath, storage.WithChangeChannel(cfg.Sync.Channel))
		if err == nil {
			defer store.Close()
			sc, err = store.GetScenario(context.Background(), id)
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Scenario %d not found\n", id)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Get failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteScenario(os.Stdout, sc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	status, err := newAPIClient(*serverURL).Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}
