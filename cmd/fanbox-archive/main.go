package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/renderinc/fanbox-archive/internal/config"
	"github.com/renderinc/fanbox-archive/internal/creator"
	"github.com/renderinc/fanbox-archive/internal/fanbox"
	"github.com/renderinc/fanbox-archive/internal/search"
	"github.com/renderinc/fanbox-archive/internal/storage"
	"github.com/renderinc/fanbox-archive/internal/sync"
	"github.com/renderinc/fanbox-archive/internal/web"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := "sync", []string(nil)
	if len(cfg.Args) > 0 {
		command, args = cfg.Args[0], cfg.Args[1:]
	}

	switch command {
	case "sync":
		return runSync(ctx, cfg, logger)
	case "creators":
		return runCreators(ctx, cfg, logger)
	case "search":
		if len(args) < 1 {
			return errors.New("search query required\nUsage: fanbox-archive [flags] search <query>")
		}
		return runSearch(cfg, strings.Join(args, " "))
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
		addr := serveFlags.String("addr", "localhost:6893", "address to listen on")
		every := serveFlags.Duration("every", 0, "also sync on this interval (0 disables)")
		if err := serveFlags.Parse(args); err != nil {
			return err
		}
		return runServe(ctx, cfg, logger, *addr, *every)
	case "reindex":
		return runReindex(ctx, cfg)
	case "stats":
		return runStats(ctx, cfg)
	case "get-post":
		if len(args) < 1 {
			return errors.New("post ID required\nUsage: fanbox-archive [flags] get-post <post-id>")
		}
		return runGetPost(ctx, cfg, args[0])
	case "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Println("Fanbox Archive - Archive the fanbox creators you follow and support")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  fanbox-archive [flags] <command> [args]")
	fmt.Println()
	fmt.Println("Flags (see -h for all):")
	fmt.Println("  -session=<cookie>       FANBOXSESSID cookie (or FANBOXSESSID in env / .env)")
	fmt.Println("  -output=<dir>           Archive directory (default: ./archive)")
	fmt.Println("  -save=<type>            following, supporting or all (default: supporting)")
	fmt.Println("  -whitelist, -blacklist  Creator ids to include or exclude")
	fmt.Println("  -skip-free              Skip free creators and posts")
	fmt.Println("  -force, -overwrite      Refetch unchanged posts, rewrite unchanged posts")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sync                    Archive posts of every accepted creator (default)")
	fmt.Println("  creators                Print the creators a sync would archive")
	fmt.Println("  search <query>          Search archived posts")
	fmt.Println("  serve [flags]           Start the read-only web API")
	fmt.Println("  reindex                 Rebuild the search index from the database")
	fmt.Println("  stats                   Show archive statistics")
	fmt.Println("  get-post <id>           Print an archived post as JSON")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -addr=<host:port>       Address to listen on (default: localhost:6893)")
	fmt.Println("  -every=<duration>       Sync on this interval while serving, e.g. 6h")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  fanbox-archive -save=all -blacklist=someone sync")
	fmt.Println("  fanbox-archive creators")
	fmt.Println("  fanbox-archive search \"watercolor\"")
	fmt.Println("  fanbox-archive serve -every=6h")
}

func newClient(cfg *config.Config) (*fanbox.Client, error) {
	if err := cfg.RequireSession(); err != nil {
		return nil, err
	}
	return fanbox.NewClient(cfg.BaseURL, cfg.SessionCookie(), cfg.UserAgent), nil
}

// openArchive opens the database and index under the output directory
func openArchive(cfg *config.Config) (*storage.DB, *search.Index, error) {
	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open search index: %w", err)
	}

	return db, idx, nil
}

func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	db, idx, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer idx.Close()

	worker := sync.NewWorker(client, db, idx, cfg, logger)
	worker.Table = os.Stderr

	stats, err := worker.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Sync Complete ===")
	fmt.Printf("Creators:      %d checked, %d included, %d excluded\n",
		stats.CreatorsTotal, stats.CreatorsIncluded, stats.CreatorsExcluded)
	fmt.Printf("Listed posts:  %d (%d filtered)\n", stats.ListedPosts, stats.FilteredPosts)
	fmt.Printf("New:           %d\n", stats.NewPosts)
	fmt.Printf("Updated:       %d\n", stats.UpdatedPosts)
	fmt.Printf("Skipped:       %d\n", stats.SkippedPosts)
	if stats.DanglingRefs > 0 {
		fmt.Printf("Dangling refs: %d\n", stats.DanglingRefs)
	}
	fmt.Printf("Errors:        %d\n", stats.Errors)
	fmt.Printf("Duration:      %v\n", stats.Duration.Round(time.Millisecond))
	return nil
}

func runCreators(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	worker := sync.NewWorker(client, nil, nil, cfg, logger)
	creators, summary, err := worker.Creators(ctx)
	if err != nil {
		return err
	}

	if err := creator.WriteTable(os.Stdout, creators); err != nil {
		return err
	}
	fmt.Printf("\n%d creators, %d included, %d excluded\n", summary.Total, summary.Included, summary.Excluded)
	return nil
}

func runSearch(cfg *config.Config, query string) error {
	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer idx.Close()

	results, err := idx.Search(query, 10)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, result := range results {
		fmt.Printf("%d. %s\n", i+1, result.Title)
		if result.Author != "" {
			fmt.Printf("   Author: %s\n", result.Author)
		}
		fmt.Printf("   URL: %s\n", result.URL)
		fmt.Printf("   Score: %.3f\n", result.Score)
		if snippets, ok := result.Fragments["Content"]; ok && len(snippets) > 0 {
			fmt.Printf("   Preview: %s\n", snippets[0])
		}
		fmt.Println()
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, addr string, every time.Duration) error {
	db, idx, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer idx.Close()

	if every > 0 {
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		worker := sync.NewWorker(client, db, idx, cfg, logger)
		// Registered after the closes above, so it runs before them.
		defer worker.Start(ctx, every)()
		logger.Info("periodic sync enabled", "every", every)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           web.NewServer(db, idx, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", "http://"+addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runReindex(ctx context.Context, cfg *config.Config) error {
	db, idx, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer idx.Close()

	fmt.Println("Rebuilding search index...")
	startTime := time.Now()

	progressFn := func(current, total int) {
		percent := float64(current) / float64(total) * 100
		fmt.Printf("\rIndexing: %d/%d (%.1f%%)  ", current, total, percent)
	}
	if err := idx.Rebuild(ctx, db, progressFn); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	indexCount, err := idx.Count()
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}

	fmt.Println()
	fmt.Println()
	fmt.Println("=== Reindex Complete ===")
	fmt.Printf("Posts indexed: %d\n", indexCount)
	fmt.Printf("Duration:      %v\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}

func runStats(ctx context.Context, cfg *config.Config) error {
	db, idx, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer idx.Close()

	authors, err := db.CountAuthors(ctx)
	if err != nil {
		return fmt.Errorf("count authors: %w", err)
	}
	posts, err := db.CountPosts(ctx)
	if err != nil {
		return fmt.Errorf("count posts: %w", err)
	}
	indexed, err := idx.Count()
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}

	fmt.Println("=== Archive Statistics ===")
	fmt.Printf("Authors:          %d\n", authors)
	fmt.Printf("Posts in db:      %d\n", posts)
	fmt.Printf("Posts in index:   %d\n", indexed)
	return nil
}

func runGetPost(ctx context.Context, cfg *config.Config, postID string) error {
	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	post, err := db.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	if post == nil {
		return fmt.Errorf("post not found: %s", postID)
	}

	fmt.Printf("# %s\n%s\n\n", post.Title, post.SourceURL)
	fmt.Println(string(post.Content))
	return nil
}
