package sync

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/renderinc/fanbox-archive/internal/config"
	"github.com/renderinc/fanbox-archive/internal/content"
	"github.com/renderinc/fanbox-archive/internal/creator"
	"github.com/renderinc/fanbox-archive/internal/fanbox"
	"github.com/renderinc/fanbox-archive/internal/search"
	"github.com/renderinc/fanbox-archive/internal/storage"
)

// API is the part of the fanbox client a run needs
type API interface {
	creator.Lister
	ListCreatorPosts(ctx context.Context, creatorID string) ([]fanbox.PostListItem, error)
	GetPost(ctx context.Context, postID string) (*fanbox.Post, error)
	ListPostComments(ctx context.Context, postID string) ([]fanbox.Comment, error)
}

// Worker archives the posts of every accepted creator
type Worker struct {
	api    API
	db     *storage.DB
	index  *search.Index
	cfg    *config.Config
	logger *slog.Logger

	// Table receives the creator table of each run; nil disables it.
	Table io.Writer
}

// NewWorker creates a new sync worker
func NewWorker(api API, db *storage.DB, index *search.Index, cfg *config.Config, logger *slog.Logger) *Worker {
	return &Worker{
		api:    api,
		db:     db,
		index:  index,
		cfg:    cfg,
		logger: logger,
	}
}

// Stats holds sync statistics
type Stats struct {
	CreatorsTotal    int
	CreatorsIncluded int
	CreatorsExcluded int
	AuthorsSynced    int
	ListedPosts      int
	FilteredPosts    int
	NewPosts         int
	UpdatedPosts     int
	SkippedPosts     int
	DanglingRefs     int
	Errors           int
	Duration         time.Duration
}

// Creators collects the accepted listings and aggregates them under the
// configured policy.
func (w *Worker) Creators(ctx context.Context) ([]creator.Creator, creator.Summary, error) {
	accepts := w.cfg.Accepts()
	w.logger.Info("checking creators", "accepts", strings.Join(accepts.List(), ","))

	src, err := creator.Collect(ctx, w.api, accepts.Following(), accepts.Supporting())
	if err != nil {
		return nil, creator.Summary{}, fmt.Errorf("collect creators: %w", err)
	}
	if accepts.Following() {
		w.logger.Info("creators found", "source", config.SaveFollowing, "count", len(src.Following))
	}
	if accepts.Supporting() {
		w.logger.Info("creators found", "source", config.SaveSupporting, "count", len(src.Supporting))
	}

	creators, summary := creator.Aggregate(src, w.cfg.Policy())
	w.logger.Info("creators aggregated",
		"total", summary.Total,
		"excluded", summary.Excluded,
		"included", summary.Included,
	)

	return creators, summary, nil
}

// Run performs a full archival run
func (w *Worker) Run(ctx context.Context) (stats *Stats, err error) {
	startTime := time.Now()
	stats = &Stats{}
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		SyncRunsTotal.WithLabelValues(status).Inc()
	}()

	w.logger.Info("starting sync", "output", w.cfg.Output)

	// 1. Creators
	creators, summary, err := w.Creators(ctx)
	if err != nil {
		return nil, err
	}
	stats.CreatorsTotal = summary.Total
	stats.CreatorsIncluded = summary.Included
	stats.CreatorsExcluded = summary.Excluded
	CreatorsTotal.WithLabelValues("checked").Add(float64(summary.Total))
	CreatorsTotal.WithLabelValues("included").Add(float64(summary.Included))
	CreatorsTotal.WithLabelValues("excluded").Add(float64(summary.Excluded))

	if w.Table != nil && w.logger.Enabled(ctx, slog.LevelInfo) {
		if err := creator.WriteTable(w.Table, creators); err != nil {
			w.logger.Warn("write creator table", "error", err)
		}
	}

	// 2. Authors, in one transaction
	records, err := creator.Synchronize(ctx, creator.ArchiveStore(w.db), creators)
	if err != nil {
		return nil, err
	}
	stats.AuthorsSynced = len(records)
	w.logger.Info("authors synced", "count", len(records))

	names := make(map[string]string, len(creators))
	for _, c := range creators {
		names[c.CreatorID] = c.Name
	}

	// 3. Posts, one creator at a time
	var mu sync.Mutex
	for _, record := range records {
		if err := w.archiveCreator(ctx, record, names[record.CreatorID], stats, &mu); err != nil {
			return nil, err
		}
	}

	stats.Duration = time.Since(startTime)
	w.logger.Info("sync complete",
		"new", stats.NewPosts,
		"updated", stats.UpdatedPosts,
		"skipped", stats.SkippedPosts,
		"filtered", stats.FilteredPosts,
		"dangling", stats.DanglingRefs,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

type postJob struct {
	item       fanbox.PostListItem
	authorID   storage.AuthorID
	authorName string
}

func (w *Worker) archiveCreator(ctx context.Context, record creator.AuthorSyncRecord, name string, stats *Stats, mu *sync.Mutex) error {
	items, err := w.api.ListCreatorPosts(ctx, record.CreatorID)
	if err != nil {
		return fmt.Errorf("list posts of %s: %w", record.CreatorID, err)
	}

	var jobs []postJob
	var filtered, skipped int
	for _, item := range items {
		if !w.cfg.FilterPost(item) {
			filtered++
			continue
		}

		state, err := w.db.GetPostState(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("get post state %s: %w", item.ID, err)
		}
		if state != nil && !w.cfg.Force && !state.UpdatedAt.Before(item.UpdatedDatetime) {
			skipped++
			continue
		}

		jobs = append(jobs, postJob{item: item, authorID: record.AuthorID, authorName: name})
	}

	mu.Lock()
	stats.ListedPosts += len(items)
	stats.FilteredPosts += filtered
	stats.SkippedPosts += skipped
	mu.Unlock()
	PostsTotal.WithLabelValues("listed").Add(float64(len(items)))
	PostsTotal.WithLabelValues("filtered").Add(float64(filtered))
	PostsTotal.WithLabelValues("skipped").Add(float64(skipped))

	w.logger.Info("creator posts",
		"creator", record.CreatorID,
		"listed", len(items),
		"filtered", filtered,
		"unchanged", skipped,
		"fetching", len(jobs),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Limit)
	for _, job := range jobs {
		g.Go(func() error {
			return w.archivePost(gctx, job, stats, mu)
		})
	}
	return g.Wait()
}

// archivePost fetches, resolves and stores a single post
func (w *Worker) archivePost(ctx context.Context, job postJob, stats *Stats, mu *sync.Mutex) error {
	// 1. Fetch the full post
	post, err := w.api.GetPost(ctx, job.item.ID)
	if err != nil {
		return err
	}

	// 2. Resolve the body
	nodes := content.Resolve(post.Body)
	dangling := content.Dangling(nodes)
	for _, ref := range dangling {
		w.logger.Warn("dangling reference", "post", post.ID, "block", ref.Block, "id", ref.ID)
		DanglingRefsTotal.WithLabelValues(string(ref.Block)).Inc()
	}

	data, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("marshal post %s: %w", post.ID, err)
	}

	// 3. Comments
	var comments []storage.Comment
	if post.CommentCount > 0 {
		items, err := w.api.ListPostComments(ctx, post.ID)
		if err != nil {
			return err
		}
		comments = archiveComments(items)
	}
	commentData, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("marshal comments of %s: %w", post.ID, err)
	}

	// 4. Check if content has changed
	contentHash := hashContent(post, data, commentData)
	state, err := w.db.GetPostState(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("get post state %s: %w", post.ID, err)
	}
	if state != nil && state.ContentHash == contentHash && !w.cfg.Overwrite {
		mu.Lock()
		stats.SkippedPosts++
		stats.DanglingRefs += len(dangling)
		mu.Unlock()
		PostsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	// 5. Store
	record := &storage.Post{
		ID:           post.ID,
		AuthorID:     job.authorID,
		SourceURL:    fanbox.PostURL(post.CreatorID, post.ID),
		Title:        post.Title,
		Content:      data,
		ContentText:  content.PlainText(nodes),
		ContentHash:  contentHash,
		Tags:         post.Tags,
		Comments:     comments,
		FeeRequired:  post.FeeRequired,
		IsRestricted: post.IsRestricted,
		PublishedAt:  post.PublishedDatetime,
		UpdatedAt:    post.UpdatedDatetime,
		SyncedAt:     time.Now().UTC(),
	}
	if post.CreatorID == "" {
		record.SourceURL = fanbox.PostURL(job.item.CreatorID, post.ID)
	}
	if err := w.db.UpsertPost(ctx, record); err != nil {
		return err
	}

	result := "new"
	if state != nil {
		result = "updated"
	}

	// 6. Index; the store is authoritative and reindex can repair this
	indexErr := w.index.IndexDocument(search.DocumentFromPost(record, job.authorName))
	if indexErr != nil {
		w.logger.Error("index post", "post", post.ID, "error", indexErr)
		PostsTotal.WithLabelValues("index_error").Inc()
	}

	mu.Lock()
	if result == "new" {
		stats.NewPosts++
	} else {
		stats.UpdatedPosts++
	}
	stats.DanglingRefs += len(dangling)
	if indexErr != nil {
		stats.Errors++
	}
	mu.Unlock()
	PostsTotal.WithLabelValues(result).Inc()

	w.logger.Debug("synced post", "post", post.ID, "title", post.Title, "result", result)
	return nil
}

// hashContent covers everything stored from the post, so an unchanged hash
// means the stored row is current.
func hashContent(post *fanbox.Post, body, comments []byte) string {
	h := md5.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%t\x00%s\x00",
		post.Title, post.UpdatedDatetime.UTC().Format(time.RFC3339Nano), post.FeeRequired, post.IsRestricted,
		strings.Join(post.Tags, ","))
	h.Write(body)
	h.Write([]byte{0})
	h.Write(comments)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// archiveComments keeps who said what and when, with replies nested under
// their comment.
func archiveComments(items []fanbox.Comment) []storage.Comment {
	if len(items) == 0 {
		return nil
	}
	out := make([]storage.Comment, 0, len(items))
	for _, c := range items {
		out = append(out, storage.Comment{
			User:      c.User.Name,
			Text:      c.Body,
			CreatedAt: c.CreatedDatetime,
			Replies:   archiveComments(c.Replies),
		})
	}
	return out
}

// RunEvery runs a sync immediately and then once per interval until ctx is
// done. Failed runs are logged and retried on the next tick.
func (w *Worker) RunEvery(ctx context.Context, interval time.Duration) {
	w.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

// Start runs RunEvery in the background. stop cancels the loop and returns
// once any run in flight has finished, after which the worker's database and
// index may be closed.
func (w *Worker) Start(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.RunEvery(ctx, interval)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (w *Worker) runLogged(ctx context.Context) {
	if _, err := w.Run(ctx); err != nil {
		w.logger.Error("sync failed", "error", err)
	}
}
