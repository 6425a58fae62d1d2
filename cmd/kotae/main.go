// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/query"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, so "kotae server" from a project dir uses that project's config.
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
	// api_key_env variables may live in a .env next to the config
	_ = godotenv.Load()
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "documents":
		runDocuments()
	case "status":
		runStatus()
	case "reset":
		runReset()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if _, err := components.Store.Load(ctx); err != nil {
		logger.Warn("index not loaded; it will be read on first use", zap.Error(err))
	}

	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.RecursiveOrDefault(),
		components.Inbox.Handle,
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Pipeline,
		components.Indexer,
		components.Queue,
		components.Store,
		components.Catalog,
		cfg,
		logger,
		watchSvc,
		resolvedConfigPath,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	watchSvc.Stop()
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = srv.Stop(stopCtx)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument.
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

func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae ask what color is the sky
  kotae ask --output json "what color is the sky?"
  kotae ask --server "" what color is the sky    # no server, use local index directly
`)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	fs.Usage = func() { printAskUsage(fs) }
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL (empty = answer directly from the local index)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	q := buildQuery(fs.Args())
	if q == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	var resp *models.AskResponse
	if *serverURL != "" {
		resp, err = cli.NewClient(*serverURL, 0).Ask(ctx, q)
	} else {
		resp, err = withComponents(*configPath, func(c *Components) (*models.AskResponse, error) {
			return askDirect(ctx, c.Pipeline, q)
		})
	}
	if err != nil {
		fatalf("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// askDirect answers q in-process and shapes the result like the HTTP reply.
func askDirect(ctx context.Context, answerer server.Answerer, q string) (*models.AskResponse, error) {
	req := models.AskRequest{Query: q}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	answer, err := answerer.Answer(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	citations := answer.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	return &models.AskResponse{
		Response:  answer.Response,
		Citations: citations,
		Sources:   answer.Sources(),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL (empty = ingest directly into the local index)")
	wait := fs.Bool("wait", true, "wait for ingestion to finish")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	ctx := context.Background()

	if *serverURL != "" {
		// The upload endpoint accepts PDFs only.
		paths, err := collectFiles(fs.Args(), []string{".pdf"})
		if err != nil {
			fatalf("%v", err)
		}
		client := cli.NewClient(*serverURL, 0)
		res, err := client.Upload(ctx, paths)
		if err != nil {
			fatalf("Upload failed: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Queued %d document(s) as task %s\n", len(res.Documents), res.TaskID)
		if !*wait {
			return
		}
		st, err := client.WaitTask(ctx, res.TaskID, 500*time.Millisecond)
		if err != nil {
			fatalf("Waiting for task failed: %v", err)
		}
		if st.State == indexer.TaskFailed {
			fatalf("Ingestion failed: %s", st.Error)
		}
		if st.Result != nil {
			_ = cli.WriteIngestResult(os.Stdout, st.Result, format)
		}
		return
	}

	paths, err := collectFiles(fs.Args(), nil)
	if err != nil {
		fatalf("%v", err)
	}
	result, err := withComponents(*configPath, func(c *Components) (*models.IngestResult, error) {
		return ingestDirect(ctx, c, paths)
	})
	if err != nil {
		fatalf("Ingestion failed: %v", err)
	}
	if result == nil {
		fmt.Println("Nothing to ingest: every document is already in the catalog")
		return
	}
	if err := cli.WriteIngestResult(os.Stdout, result, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// ingestDirect imports paths through the inbox and waits for the resulting task.
// A nil result means every document was already catalogued.
func ingestDirect(ctx context.Context, c *Components, paths []string) (*models.IngestResult, error) {
	task, _, err := c.Inbox.Submit(ctx, paths)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}
	return task.Wait(ctx)
}

// collectFiles expands directories into the supported files they contain, sorted.
// exts narrows the result further when non-nil. Explicit files are kept as given.
func collectFiles(args []string, exts []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			if !accepts(arg, exts) {
				return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, arg)
			}
			out = append(out, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if accepts(p, exts) {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no supported files found", models.ErrInvalidArgument)
	}
	return out, nil
}

func accepts(path string, exts []string) bool {
	if !extract.Supported(path) {
		return false
	}
	if exts == nil {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL (empty = read the local catalog)")
	offset := fs.Int("offset", 0, "skip this many documents")
	limit := fs.Int("limit", 50, "maximum number of documents")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	ctx := context.Background()
	var docs []*models.DocumentRecord
	if *serverURL != "" {
		docs, err = cli.NewClient(*serverURL, 30*time.Second).Documents(ctx, *offset, *limit)
	} else {
		docs, err = withCatalog(*configPath, func(catalog storage.Catalog) ([]*models.DocumentRecord, error) {
			return catalog.List(ctx, *offset, *limit)
		})
	}
	if err != nil {
		fatalf("Listing documents failed: %v", err)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL (empty = read local state)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	ctx := context.Background()
	var report *models.StatusReport
	if *serverURL != "" {
		report, err = cli.NewClient(*serverURL, 30*time.Second).Status(ctx)
	} else {
		report, err = withComponents(*configPath, func(c *Components) (*models.StatusReport, error) {
			return server.Status(ctx, c.Store, c.Catalog, c.Config)
		})
	}
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, report, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runReset() {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL (empty = reset local state)")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	_ = fs.Parse(os.Args[2:])

	if !*yes && !confirm(os.Stdin, os.Stdout, "This deletes the index, the catalog and every uploaded file. Continue? [y/N] ") {
		fmt.Println("Aborted")
		return
	}
	ctx := context.Background()
	var err error
	if *serverURL != "" {
		err = cli.NewClient(*serverURL, 0).Reset(ctx)
	} else {
		_, err = withComponents(*configPath, func(c *Components) (struct{}, error) {
			return struct{}{}, server.Reset(ctx, c.Store, c.Catalog, c.Config.Storage.UploadDirectory)
		})
	}
	if err != nil {
		fatalf("Reset failed: %v", err)
	}
	fmt.Println("Index reset")
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	var answer string
	if _, err := fmt.Fscanln(in, &answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kotae watch <add|remove|list> [path]")
		fmt.Println("  kotae watch add <path>     Add an inbox directory")
		fmt.Println("  kotae watch remove <path>  Stop watching a directory")
		fmt.Println("  kotae watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	client := cli.NewClient(*serverURL, 30*time.Second)
	ctx := context.Background()
	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fatalf("Usage: kotae watch %s <path>", sub)
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			fatalf("Invalid path: %v", err)
		}
		if sub == "add" {
			err = client.WatchAdd(ctx, path)
		} else {
			err = client.WatchRemove(ctx, path)
		}
		if err != nil {
			fatalf("Watch %s failed: %v", sub, err)
		}
		fmt.Printf("%s: %s\n", map[string]string{"add": "Added", "remove": "Removed"}[sub], path)
	case "list":
		dirs, err := client.WatchList(ctx)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}

// withComponents loads config, builds the components, runs fn and closes everything.
func withComponents[T any](configPath string, fn func(*Components) (T, error)) (T, error) {
	var zero T
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return zero, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return zero, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	if !cfg.Debug {
		logger = zap.NewNop()
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		return zero, err
	}
	defer components.Close()
	return fn(components)
}

// withCatalog opens only the catalog; listing documents needs no providers.
func withCatalog[T any](configPath string, fn func(storage.Catalog) (T, error)) (T, error) {
	var zero T
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return zero, fmt.Errorf("failed to load config: %w", err)
	}
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return zero, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer catalog.Close()
	return fn(catalog)
}

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Catalog   storage.Catalog
	Store     *vector.Store
	Embedder  embedding.Embedder
	Generator generation.Generator
	Indexer   *indexer.Indexer
	Queue     *indexer.Queue
	Pipeline  *query.Pipeline
	Inbox     *watcher.Inbox
}

// Close drains the queue before closing what its jobs use.
func (c *Components) Close() {
	var errs []error
	if c.Queue != nil {
		errs = append(errs, c.Queue.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.Catalog != nil {
		errs = append(errs, c.Catalog.Close())
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "close: %v\n", err)
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := os.MkdirAll(cfg.Storage.UploadDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	c := &Components{Config: cfg, Catalog: catalog}

	backend, err := vector.NewBackend(ctx, cfg.Storage)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize index backend: %w", err)
	}
	policy, err := vector.ParseMergePolicy(cfg.Ingest.MergePolicy)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = vector.NewStore(backend, vector.WithLogger(logger), vector.WithMergePolicy(policy))

	c.Embedder, err = embedding.New(ctx, cfg.Embedding)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Generator, err = generation.New(ctx, cfg.Generation)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	logger.Info("providers initialized",
		zap.String("embedding", cfg.Embedding.Kind),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", c.Embedder.Dimensions()),
		zap.String("generation", cfg.Generation.Kind),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("index", c.Store.Location()),
	)

	c.Indexer = indexer.NewIndexer(c.Store, c.Embedder,
		indexer.WithLogger(logger),
		indexer.WithCatalog(catalog),
		indexer.WithUploadDir(cfg.Storage.UploadDirectory),
		indexer.WithTimeout(cfg.Ingest.Timeout()),
	)
	c.Queue = indexer.NewQueue(cfg.Ingest.Workers, cfg.Ingest.QueueSize, indexer.WithQueueLogger(logger))
	c.Inbox = watcher.NewInbox(c.Indexer, c.Queue, catalog, cfg.Storage.UploadDirectory, watcher.WithInboxLogger(logger))

	answerTimeout := time.Duration(cfg.Embedding.TimeoutSeconds+cfg.Generation.TimeoutSeconds) * time.Second
	c.Pipeline = query.NewPipeline(
		retrieval.NewEngine(c.Store, c.Embedder, retrieval.WithLogger(logger)),
		c.Generator,
		query.Config{
			TopK:      cfg.Retrieval.TopK,
			Threshold: cfg.Retrieval.ThresholdOrDefault(),
			BaseURL:   cfg.Server.BaseURL,
			Timeout:   answerTimeout,
		},
		query.WithLogger(logger),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`kotae - answers questions from your documents, with page citations

Usage:
  kotae server [flags]             Start the HTTP server
  kotae ask [flags] <question>      Ask a question
  kotae ingest [flags] <path>...   Ingest files or directories
  kotae documents [flags]          List catalogued documents
  kotae status [flags]             Show index, catalog and queue status
  kotae reset [flags]              Delete the index, catalog and uploads
  kotae watch <add|remove|list>    Manage inbox directories
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Common Flags (ask, ingest, documents, status, reset):
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8000). Use --server "" to work on local state directly.
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --wait             Wait for the ingestion task to finish (default: true)

Reset Flags:
  --yes              Skip the confirmation prompt

Examples:
  kotae server
  kotae ingest ./papers
  kotae ask what is the boiling point of water
  kotae ask --output json "what is the boiling point of water?"
  kotae status --server ""
  kotae watch add /path/to/inbox`)
}
