package creator

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/renderinc/fanbox-archive/internal/fanbox"
)

// FilterPolicy decides which creators are archived
type FilterPolicy struct {
	SkipFree bool     // drop creators whose fee is 0
	Allow    []string // when non-empty, only these creator ids
	Deny     []string
}

// Accept reports whether c passes every clause of the policy. The skip-free
// clause applies even to allow-listed creators, and the deny list always wins.
func (p FilterPolicy) Accept(c Creator) bool {
	paid := !(p.SkipFree && c.Fee == 0)
	allowed := len(p.Allow) == 0 || slices.Contains(p.Allow, c.CreatorID)
	denied := slices.Contains(p.Deny, c.CreatorID)
	return paid && allowed && !denied
}

// Sources holds the creators gathered per listing. A nil slice means the
// listing was not requested.
type Sources struct {
	Following  []Creator
	Supporting []Creator
}

// Summary counts an aggregation for logging
type Summary struct {
	Total    int
	Included int
	Excluded int
}

// Aggregate unions the enabled sources by identity and applies the policy.
// Supporting creators are added after following ones, so a creator present
// in both keeps the supporting plan's fee.
func Aggregate(src Sources, policy FilterPolicy) ([]Creator, Summary) {
	set := NewSet()
	for _, c := range src.Following {
		set.Add(c)
	}
	for _, c := range src.Supporting {
		set.Add(c)
	}

	total := set.Len()
	set.Retain(policy.Accept)

	summary := Summary{
		Total:    total,
		Included: set.Len(),
	}
	// Counts the union, so identities merged away above are not "excluded".
	summary.Excluded = summary.Total - summary.Included

	return set.Creators(), summary
}

// Lister fetches the creator listings of the session account
type Lister interface {
	ListFollowing(ctx context.Context) ([]fanbox.FollowingCreator, error)
	ListSupporting(ctx context.Context) ([]fanbox.SupportingPlan, error)
}

// Collect fetches the requested listings concurrently. Any fetch error fails
// the whole collection; no partial Sources are returned.
func Collect(ctx context.Context, lister Lister, following, supporting bool) (Sources, error) {
	var src Sources
	g, ctx := errgroup.WithContext(ctx)

	if following {
		g.Go(func() error {
			items, err := lister.ListFollowing(ctx)
			if err != nil {
				return err
			}
			src.Following = make([]Creator, 0, len(items))
			for _, item := range items {
				src.Following = append(src.Following, FromFollowing(item))
			}
			return nil
		})
	}

	if supporting {
		g.Go(func() error {
			plans, err := lister.ListSupporting(ctx)
			if err != nil {
				return err
			}
			src.Supporting = make([]Creator, 0, len(plans))
			for _, plan := range plans {
				src.Supporting = append(src.Supporting, FromSupporting(plan))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Sources{}, err
	}
	return src, nil
}
