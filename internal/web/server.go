package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renderinc/fanbox-archive/internal/content"
	"github.com/renderinc/fanbox-archive/internal/creator"
	"github.com/renderinc/fanbox-archive/internal/search"
	"github.com/renderinc/fanbox-archive/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Server exposes the archive read-only over HTTP
type Server struct {
	db     *storage.DB
	idx    *search.Index
	logger *slog.Logger
}

type SearchResponse struct {
	Results []*search.SearchResult `json:"results"`
	Query   string                 `json:"query"`
	Count   int                    `json:"count"`
}

// PostResponse is a stored post with its content decoded back into nodes
type PostResponse struct {
	*storage.Post
	Nodes    []content.Node        `json:"content"` // shadows the raw Post.Content
	Dangling []content.DanglingRef `json:"dangling,omitempty"`
	Media    []content.Media       `json:"media,omitempty"`
}

func NewServer(db *storage.DB, idx *search.Index, logger *slog.Logger) *Server {
	return &Server{
		db:     db,
		idx:    idx,
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/post", s.handleGetPost)
	mux.HandleFunc("GET /api/posts", s.handleListPosts)
	mux.HandleFunc("GET /api/authors", s.handleAuthors)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxLimit {
			limit = l
		}
	}

	results, err := s.idx.Search(query, limit)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("search failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Query:   query,
		Count:   len(results),
	})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	postID := r.URL.Query().Get("id")
	if postID == "" {
		s.writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	post, err := s.db.GetPost(r.Context(), postID)
	if err != nil {
		s.logger.Error("get post", "post", postID, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error retrieving post: %v", err))
		return
	}
	if post == nil {
		s.writeError(w, http.StatusNotFound, "post not found")
		return
	}

	var nodes []content.Node
	if err := json.Unmarshal(post.Content, &nodes); err != nil {
		s.logger.Error("decode post content", "post", postID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "stored post content is corrupt")
		return
	}

	s.writeJSON(w, http.StatusOK, PostResponse{
		Post:     post,
		Nodes:    nodes,
		Dangling: content.Dangling(nodes),
		Media:    content.MediaOf(nodes),
	})
}

// handleListPosts lists posts of an author, picked by archive id (author=)
// or by fanbox creator id (creator=). With neither it lists every post.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	authorID := storage.AuthorID(r.URL.Query().Get("author"))
	if creatorID := r.URL.Query().Get("creator"); creatorID != "" {
		id, err := s.db.AuthorBySource(r.Context(), creator.PlatformFanbox, creatorID)
		if err != nil {
			s.logger.Error("lookup creator", "creator", creatorID, "error", err)
			s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error looking up creator: %v", err))
			return
		}
		if id == "" {
			s.writeError(w, http.StatusNotFound, "creator not archived")
			return
		}
		authorID = id
	}

	posts, err := s.db.ListPosts(r.Context(), authorID)
	if err != nil {
		s.logger.Error("list posts", "author", authorID, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error listing posts: %v", err))
		return
	}

	type summary struct {
		ID          string           `json:"id"`
		AuthorID    storage.AuthorID `json:"authorId"`
		Title       string           `json:"title"`
		SourceURL   string           `json:"sourceUrl"`
		FeeRequired int              `json:"feeRequired"`
		PublishedAt string           `json:"publishedAt"`
	}
	out := make([]summary, 0, len(posts))
	for _, p := range posts {
		out = append(out, summary{
			ID:          p.ID,
			AuthorID:    p.AuthorID,
			Title:       p.Title,
			SourceURL:   p.SourceURL,
			FeeRequired: p.FeeRequired,
			PublishedAt: p.PublishedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.db.ListAuthors(r.Context())
	if err != nil {
		s.logger.Error("list authors", "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error listing authors: %v", err))
		return
	}
	if authors == nil {
		authors = []storage.Author{}
	}
	s.writeJSON(w, http.StatusOK, authors)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbCount, err := s.db.CountPosts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("database: %v", err))
		return
	}
	indexCount, err := s.idx.Count()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("index: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"posts_in_db":    dbCount,
		"posts_in_index": indexCount,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
