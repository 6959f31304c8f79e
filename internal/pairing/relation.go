package pairing

import (
	"time"

	"github.com/eldtechnologies/donut/internal/models"
)

type pairKey struct{ a, b string }

func keyOf(u, v string) pairKey {
	if u > v {
		u, v = v, u
	}
	return pairKey{u, v}
}

// AvoidRelation answers whether two users must never be grouped.
// Lookups are symmetric regardless of how entries were stored.
type AvoidRelation struct {
	pairs map[pairKey]struct{}
}

// NewAvoidRelation builds the relation from directed avoid-list entries.
func NewAvoidRelation(entries []models.AvoidEntry) AvoidRelation {
	r := AvoidRelation{pairs: make(map[pairKey]struct{}, len(entries))}
	for _, e := range entries {
		r.Add(e.UserID, e.AvoidUserID)
	}
	return r
}

// Add forbids grouping u with v.
func (r *AvoidRelation) Add(u, v string) {
	if u == v {
		return
	}
	if r.pairs == nil {
		r.pairs = make(map[pairKey]struct{})
	}
	r.pairs[keyOf(u, v)] = struct{}{}
}

// Forbidden reports whether u and v may not share a group.
func (r AvoidRelation) Forbidden(u, v string) bool {
	_, ok := r.pairs[keyOf(u, v)]
	return ok
}

// History holds prior pairings: when each pair last met and each user's
// most recent partners.
type History struct {
	lastPaired map[pairKey]time.Time
	recent     map[string]map[string]struct{}
	recentAt   map[string]time.Time
}

// NewHistory indexes prior matches. Matches may arrive in any order.
func NewHistory(matches []models.Match) History {
	h := History{
		lastPaired: make(map[pairKey]time.Time),
		recent:     make(map[string]map[string]struct{}),
		recentAt:   make(map[string]time.Time),
	}
	for _, m := range matches {
		h.Record(m.CreatedAt, m.ParticipantIDs...)
	}
	return h
}

// Record registers that the given participants were grouped at t.
func (h *History) Record(t time.Time, participants ...string) {
	if h.lastPaired == nil {
		h.lastPaired = make(map[pairKey]time.Time)
		h.recent = make(map[string]map[string]struct{})
		h.recentAt = make(map[string]time.Time)
	}
	for i, u := range participants {
		for _, v := range participants[i+1:] {
			if u == v {
				continue
			}
			k := keyOf(u, v)
			if prev, ok := h.lastPaired[k]; !ok || t.After(prev) {
				h.lastPaired[k] = t
			}
		}
	}
	for _, u := range participants {
		at, seen := h.recentAt[u]
		switch {
		case !seen || t.After(at):
			partners := make(map[string]struct{}, len(participants)-1)
			for _, v := range participants {
				if v != u {
					partners[v] = struct{}{}
				}
			}
			h.recent[u] = partners
			h.recentAt[u] = t
		case t.Equal(at):
			for _, v := range participants {
				if v != u {
					h.recent[u][v] = struct{}{}
				}
			}
		}
	}
}

// LastPaired returns when u and v were last grouped.
func (h History) LastPaired(u, v string) (time.Time, bool) {
	t, ok := h.lastPaired[keyOf(u, v)]
	return t, ok
}

// IsRecentPartner reports whether v was in u's most recent group, or u in v's.
func (h History) IsRecentPartner(u, v string) bool {
	if _, ok := h.recent[u][v]; ok {
		return true
	}
	_, ok := h.recent[v][u]
	return ok
}
