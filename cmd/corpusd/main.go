package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/corpusd/corpusd/internal/chunker"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/embedder"
	"github.com/corpusd/corpusd/internal/httpapi"
	"github.com/corpusd/corpusd/internal/ingest"
	"github.com/corpusd/corpusd/internal/jobstore"
	"github.com/corpusd/corpusd/internal/mcp"
	"github.com/corpusd/corpusd/internal/parser"
	"github.com/corpusd/corpusd/internal/searcher"
	"github.com/corpusd/corpusd/internal/storage"
	"github.com/corpusd/corpusd/internal/taskqueue"
	"github.com/corpusd/corpusd/internal/vectorstore"
	"github.com/corpusd/corpusd/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "corpusd.yaml", "path to the configuration file")
		mcpMode     = flag.Bool("mcp", false, "serve the MCP protocol on stdio instead of HTTP")
		showVersion = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("corpusd\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	// Log to stderr; stdout is reserved for the MCP protocol in --mcp mode
	log.SetOutput(os.Stderr)
	log.Printf("corpusd v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s", storage.BuildMode, storage.DriverName)

	// A .env file is optional; deployed environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Sources) == 0 {
		log.Printf("No sources configured; ingestion endpoints will reject every source name")
	}

	app, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Failed to wire services: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if *mcpMode {
			log.Println("MCP server ready, listening on stdio...")
			errChan <- app.mcp.Serve(ctx)
			return
		}
		errChan <- app.run(ctx, cfg)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Shutdown error: %v", err)
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("Server error: %v", err)
		}
	}

	log.Println("Server stopped")
}

// app is the wired service graph behind both serving surfaces.
type app struct {
	db     *storage.DB
	runner *taskqueue.Runner
	http   *httpapi.Server
	mcp    *mcp.Server
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	jobs := jobstore.New(db)
	vectors := vectorstore.NewSQLiteStore(db)
	broker := taskqueue.NewSQLiteBroker(db, taskqueue.Options{
		VisibilityTimeout: time.Duration(cfg.Queue.VisibilityTimeoutSecs) * time.Second,
		MaxAttempts:       cfg.Queue.MaxAttempts,
	})

	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	parsers := parser.NewRegistry()
	ch := chunker.New(chunker.Config{
		TargetTokens:  cfg.Chunker.TargetTokens,
		OverlapTokens: cfg.Chunker.OverlapTokens,
	})

	merger := ingest.NewMerger(jobs, vectors)
	dispatcher := ingest.NewDispatcher(jobs, broker, merger, cfg.Queue.BatchSize)
	worker := ingest.NewWorker(jobs, vectors, parsers, ch, emb, merger)

	sources := make([]ingest.Source, len(cfg.Sources))
	for i, src := range cfg.Sources {
		sources[i] = ingest.Source{Name: src.Name, Root: src.Root}
	}
	pipeline := ingest.NewPipeline(jobs, vectors, dispatcher, parsers, merger, sources)

	search, err := searcher.New(vectors, emb, cfg.Searcher.CacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// A completed run changes collection contents, so cached query
	// results are stale from that point on.
	merger.OnFinalize(func(ctx context.Context, parent *types.Job) {
		if parent.Status == types.JobCompleted {
			search.InvalidateCache()
		}
	})

	runner := taskqueue.NewRunner(broker, cfg.Queue.Concurrency,
		time.Duration(cfg.Queue.PollIntervalMs)*time.Millisecond)
	runner.Register(ingest.QueueBatches, worker.Handle)
	runner.RegisterDeadLetter(ingest.QueueBatches, worker.HandleDead)

	return &app{
		db:     db,
		runner: runner,
		http:   httpapi.NewServer(pipeline, worker, merger, jobs, search),
		mcp:    mcp.NewServer(search, jobs, pipeline.Sources()),
	}, nil
}

func buildEmbedder(cfg config.EmbedderConfig) (embedder.Embedder, error) {
	if cfg.Provider == "" {
		return embedder.NewFromEnv()
	}
	return embedder.New(embedder.Config{
		Provider:  cfg.Provider,
		APIKey:    os.Getenv(embedder.EnvOpenAIAPIKey),
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		CacheSize: cfg.CacheSize,
	})
}

// run serves HTTP and the batch worker pool until ctx is canceled.
func (a *app) run(ctx context.Context, cfg *config.Config) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runner.Run(ctx) })
	g.Go(func() error { return a.http.Serve(ctx, cfg.Server.Addr) })
	return g.Wait()
}

func (a *app) Close() {
	_ = a.db.Close()
}
