package creator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/fanbox-archive/internal/fanbox"
)

func TestAggregateMergesSourcesByIdentity(t *testing.T) {
	src := Sources{
		Following: []Creator{
			{CreatorID: "abc", UserID: "123", Name: "Alice"},
			{CreatorID: "bob", UserID: "456", Name: "Bob"},
		},
		Supporting: []Creator{
			{CreatorID: "abc", UserID: "123", Name: "Alice", Fee: 500},
			{CreatorID: "carol", UserID: "789", Name: "Carol", Fee: 100},
		},
	}

	creators, summary := Aggregate(src, FilterPolicy{})

	assert.Equal(t, []Creator{
		{CreatorID: "abc", UserID: "123", Name: "Alice", Fee: 500},
		{CreatorID: "bob", UserID: "456", Name: "Bob"},
		{CreatorID: "carol", UserID: "789", Name: "Carol", Fee: 100},
	}, creators)
	assert.Equal(t, Summary{Total: 3, Included: 3, Excluded: 0}, summary)
}

func TestAggregateLastSeenDisplayFieldsWin(t *testing.T) {
	src := Sources{Supporting: []Creator{
		{CreatorID: "abc", UserID: "123", Name: "Old name", Fee: 300},
		{CreatorID: "abc", UserID: "123", Name: "New name", Fee: 500},
	}}

	creators, _ := Aggregate(src, FilterPolicy{})

	require.Len(t, creators, 1)
	assert.Equal(t, "New name", creators[0].Name)
	assert.Equal(t, 500, creators[0].Fee)
}

func TestAggregateBothSourcesDisabled(t *testing.T) {
	creators, summary := Aggregate(Sources{}, FilterPolicy{SkipFree: true})

	assert.NotNil(t, creators)
	assert.Empty(t, creators)
	assert.Equal(t, Summary{}, summary)
}

func TestFilterPolicy(t *testing.T) {
	free := Creator{CreatorID: "free", UserID: "1"}
	paid := Creator{CreatorID: "paid", UserID: "2", Fee: 500}

	tests := []struct {
		name    string
		policy  FilterPolicy
		creator Creator
		want    bool
	}{
		{"empty policy accepts", FilterPolicy{}, free, true},
		{"skip free drops free", FilterPolicy{SkipFree: true}, free, false},
		{"skip free keeps paid", FilterPolicy{SkipFree: true}, paid, true},
		{"skip free beats allow list", FilterPolicy{SkipFree: true, Allow: []string{"free"}}, free, false},
		{"allow list excludes others", FilterPolicy{Allow: []string{"paid"}}, free, false},
		{"allow list includes member", FilterPolicy{Allow: []string{"paid"}}, paid, true},
		{"deny list excludes", FilterPolicy{Deny: []string{"paid"}}, paid, false},
		{"deny wins over allow", FilterPolicy{Allow: []string{"paid"}, Deny: []string{"paid"}}, paid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Accept(tt.creator))
		})
	}
}

func TestAggregateFilterIsFixedPoint(t *testing.T) {
	policy := FilterPolicy{SkipFree: true, Deny: []string{"d"}}
	src := Sources{
		Following: []Creator{{CreatorID: "a", UserID: "1"}, {CreatorID: "d", UserID: "4", Fee: 100}},
		Supporting: []Creator{
			{CreatorID: "b", UserID: "2", Fee: 100},
			{CreatorID: "c", UserID: "3", Fee: 1000},
		},
	}

	once, summary := Aggregate(src, policy)
	twice, again := Aggregate(Sources{Supporting: once}, policy)

	assert.Equal(t, once, twice)
	assert.Equal(t, Summary{Total: 4, Included: 2, Excluded: 2}, summary)
	assert.Equal(t, Summary{Total: 2, Included: 2}, again)
}

func TestSetRetainReindexes(t *testing.T) {
	set := NewSet()
	set.Add(Creator{CreatorID: "a", UserID: "1"})
	set.Add(Creator{CreatorID: "b", UserID: "2"})
	set.Add(Creator{CreatorID: "c", UserID: "3"})

	set.Retain(func(c Creator) bool { return c.CreatorID != "a" })
	set.Add(Creator{CreatorID: "c", UserID: "3", Name: "Carol"})

	assert.Equal(t, []Creator{
		{CreatorID: "b", UserID: "2"},
		{CreatorID: "c", UserID: "3", Name: "Carol"},
	}, set.Creators())
}

type fakeLister struct {
	following    []fanbox.FollowingCreator
	supporting   []fanbox.SupportingPlan
	followingErr error

	followingCalls  atomic.Int32
	supportingCalls atomic.Int32
}

func (f *fakeLister) ListFollowing(ctx context.Context) ([]fanbox.FollowingCreator, error) {
	f.followingCalls.Add(1)
	return f.following, f.followingErr
}

func (f *fakeLister) ListSupporting(ctx context.Context) ([]fanbox.SupportingPlan, error) {
	f.supportingCalls.Add(1)
	return f.supporting, nil
}

func TestCollect(t *testing.T) {
	lister := &fakeLister{
		following: []fanbox.FollowingCreator{
			{CreatorID: "abc", User: fanbox.User{UserID: "123", Name: "Alice"}},
		},
		supporting: []fanbox.SupportingPlan{
			{CreatorID: "abc", Fee: 500, User: fanbox.User{UserID: "123", Name: "Alice"}},
		},
	}

	src, err := Collect(context.Background(), lister, true, true)
	require.NoError(t, err)
	assert.Equal(t, []Creator{{CreatorID: "abc", UserID: "123", Name: "Alice"}}, src.Following)
	assert.Equal(t, []Creator{{CreatorID: "abc", UserID: "123", Name: "Alice", Fee: 500}}, src.Supporting)

	creators, _ := Aggregate(src, FilterPolicy{})
	assert.Equal(t, []Creator{{CreatorID: "abc", UserID: "123", Name: "Alice", Fee: 500}}, creators)
}

func TestCollectOnlyRequestedSources(t *testing.T) {
	lister := &fakeLister{}

	src, err := Collect(context.Background(), lister, false, true)
	require.NoError(t, err)
	assert.Nil(t, src.Following)
	assert.NotNil(t, src.Supporting)
	assert.EqualValues(t, 0, lister.followingCalls.Load())
	assert.EqualValues(t, 1, lister.supportingCalls.Load())
}

func TestCollectFailsWithoutPartialResult(t *testing.T) {
	boom := errors.New("boom")
	lister := &fakeLister{
		followingErr: boom,
		supporting:   []fanbox.SupportingPlan{{CreatorID: "abc", Fee: 500}},
	}

	src, err := Collect(context.Background(), lister, true, true)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Sources{}, src)
}
