// Package creator reconciles the creators a fanbox account follows or
// supports into one deduplicated, filtered set and binds each of them to a
// durable author in the archive.
package creator

import (
	"github.com/renderinc/fanbox-archive/internal/fanbox"
)

// Creator is a fanbox creator together with the pixiv account behind it.
// Its identity is Key(); Name and Fee are display fields.
type Creator struct {
	CreatorID string
	UserID    string
	Name      string
	Fee       int // cheapest plan; 0 means a free tier exists or the fee is unknown
}

// Key identifies a creator across listings
type Key struct {
	CreatorID string
	UserID    string
}

func (c Creator) Key() Key {
	return Key{CreatorID: c.CreatorID, UserID: c.UserID}
}

// FromFollowing converts a followed creator. The following listing carries
// no plan prices, so Fee is 0.
func FromFollowing(f fanbox.FollowingCreator) Creator {
	return Creator{
		CreatorID: f.CreatorID,
		UserID:    f.User.UserID,
		Name:      f.User.Name,
	}
}

// FromSupporting converts a supported plan
func FromSupporting(p fanbox.SupportingPlan) Creator {
	return Creator{
		CreatorID: p.CreatorID,
		UserID:    p.User.UserID,
		Name:      p.User.Name,
		Fee:       p.Fee,
	}
}

// Set is a set of creators keyed by identity. Adding a creator that is
// already present replaces its display fields but keeps its position, so
// iteration follows first insertion.
type Set struct {
	index map[Key]int
	items []Creator
}

func NewSet() *Set {
	return &Set{index: make(map[Key]int)}
}

func (s *Set) Add(c Creator) {
	if i, ok := s.index[c.Key()]; ok {
		s.items[i] = c
		return
	}
	s.index[c.Key()] = len(s.items)
	s.items = append(s.items, c)
}

func (s *Set) Len() int {
	return len(s.items)
}

// Retain drops every creator for which keep returns false.
func (s *Set) Retain(keep func(Creator) bool) {
	kept := s.items[:0]
	for _, c := range s.items {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	clear(s.items[len(kept):])
	s.items = kept

	clear(s.index)
	for i, c := range s.items {
		s.index[c.Key()] = i
	}
}

// Creators returns a copy of the set's members in iteration order.
func (s *Set) Creators() []Creator {
	out := make([]Creator, len(s.items))
	copy(out, s.items)
	return out
}
