package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CreatorsTotal counts creators seen per run by state (checked, included, excluded).
	CreatorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanbox_archive_creators_total",
		Help: "Creators seen by archival runs",
	}, []string{"state"})

	// PostsTotal counts posts by outcome (listed, filtered, new, updated, skipped, index_error).
	PostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanbox_archive_posts_total",
		Help: "Posts handled by archival runs",
	}, []string{"result"})

	// DanglingRefsTotal counts body references missing from their side-table by block kind.
	DanglingRefsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanbox_archive_dangling_refs_total",
		Help: "Unresolved post body references",
	}, []string{"kind"})

	// SyncRunsTotal counts finished runs by status (ok, error).
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanbox_archive_sync_runs_total",
		Help: "Archival runs",
	}, []string{"status"})
)
