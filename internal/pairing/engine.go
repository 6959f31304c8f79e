// Package pairing groups active users into a round of coffee-chat matches.
//
// Compute is pure: it reads only its Input, never touches the store or the
// network, and returns the same Result for the same Input. Callers build the
// AvoidRelation and History snapshots up front and persist the Result after
// Compute returns.
package pairing

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// Group is one set of users paired together. Order carries no meaning.
type Group []string

// Input is everything the engine needs for one round.
type Input struct {
	Users   []string
	History History
	Avoid   AvoidRelation
	// Seed drives the processing order shuffle.
	Seed int64
	// Order, when set, replaces the seeded shuffle. It receives the
	// de-duplicated, sorted user IDs and may reorder them in place.
	Order func(users []string)
}

// Result is the outcome of a pairing pass.
type Result struct {
	Groups []Group
	// Unplaced lists active users that could not be put in any group.
	Unplaced []string
}

// Compute pairs users greedily. Each user, in processing order, takes the
// best remaining partner: not forbidden, preferably not a most-recent
// partner, then least recently paired, then lowest ID. A single user left
// over joins the newest compatible group. Leftovers only occur through
// avoidance: users avoiding the whole pool are unplaced, and the rest are
// fitted in by splitting an existing pair between two of them.
func Compute(in Input) Result {
	users := dedupe(in.Users)
	if len(users) < 2 {
		return Result{Groups: []Group{}, Unplaced: users}
	}

	if in.Order != nil {
		in.Order(users)
	} else {
		seed := uint64(in.Seed)
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		rng.Shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })
	}

	matched := make(map[string]bool, len(users))
	groups := make([]Group, 0, len(users)/2)
	var stranded []string

	for _, u := range users {
		if matched[u] {
			continue
		}
		v, ok := bestPartner(u, users, matched, in.History, in.Avoid)
		if !ok {
			matched[u] = true
			stranded = append(stranded, u)
			continue
		}
		matched[u] = true
		matched[v] = true
		groups = append(groups, Group{u, v})
	}

	// Users that conflict with everyone else in the pool can never be placed.
	unplaced := []string{}
	var placeable []string
	for _, u := range stranded {
		if isolated(u, users, in.Avoid) {
			unplaced = append(unplaced, u)
		} else {
			placeable = append(placeable, u)
		}
	}

	groups, placeable = regroup(groups, placeable, in.Avoid)
	if len(placeable) > 0 {
		if i := attachTarget(placeable[0], groups, in.Avoid); i >= 0 {
			groups[i] = append(groups[i], placeable[0])
			placeable = placeable[1:]
		}
		unplaced = append(unplaced, placeable...)
	}

	return Result{Groups: groups, Unplaced: unplaced}
}

func bestPartner(u string, users []string, matched map[string]bool, h History, avoid AvoidRelation) (string, bool) {
	var (
		best       string
		bestRecent bool
		bestAt     time.Time
		bestSeen   bool
		found      bool
	)
	for _, v := range users {
		if v == u || matched[v] || avoid.Forbidden(u, v) {
			continue
		}
		recent := h.IsRecentPartner(u, v)
		at, seen := h.LastPaired(u, v)
		if !found || better(recent, at, seen, v, bestRecent, bestAt, bestSeen, best) {
			best, bestRecent, bestAt, bestSeen, found = v, recent, at, seen, true
		}
	}
	return best, found
}

// better reports whether candidate a ranks above candidate b.
func better(aRecent bool, aAt time.Time, aSeen bool, aID string, bRecent bool, bAt time.Time, bSeen bool, bID string) bool {
	if aRecent != bRecent {
		return !aRecent
	}
	if aSeen != bSeen {
		return !aSeen
	}
	if aSeen && !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return aID < bID
}

// isolated reports whether u is forbidden from every other user.
func isolated(u string, users []string, avoid AvoidRelation) bool {
	for _, v := range users {
		if v != u && !avoid.Forbidden(u, v) {
			return false
		}
	}
	return true
}

// regroup places stranded users two at a time by splitting a pair {a, b}
// into {s, a} and {b, t}. It returns the groups and whoever is still left.
func regroup(groups []Group, stranded []string, avoid AvoidRelation) ([]Group, []string) {
	for len(stranded) >= 2 {
		gi, si, ti, ok := findSplit(groups, stranded, avoid)
		if !ok {
			break
		}
		s, t := stranded[si], stranded[ti]
		a, b := groups[gi][0], groups[gi][1]
		groups[gi] = Group{s, a}
		groups = append(groups, Group{b, t})
		stranded = slices.Delete(slices.Clone(stranded), ti, ti+1)
		stranded = slices.Delete(stranded, si, si+1)
	}
	return groups, stranded
}

// findSplit looks for a pair whose members can each take one stranded
// user. The pair is normalized so that groups[gi][0] goes with stranded[si].
func findSplit(groups []Group, stranded []string, avoid AvoidRelation) (gi, si, ti int, ok bool) {
	for gi = range groups {
		g := groups[gi]
		if len(g) != 2 {
			continue
		}
		for si = 0; si < len(stranded); si++ {
			for ti = si + 1; ti < len(stranded); ti++ {
				s, t := stranded[si], stranded[ti]
				switch {
				case !avoid.Forbidden(s, g[0]) && !avoid.Forbidden(t, g[1]):
					return gi, si, ti, true
				case !avoid.Forbidden(s, g[1]) && !avoid.Forbidden(t, g[0]):
					g[0], g[1] = g[1], g[0]
					return gi, si, ti, true
				}
			}
		}
	}
	return 0, 0, 0, false
}

// attachTarget returns the index of the newest group u can join, or -1.
func attachTarget(u string, groups []Group, avoid AvoidRelation) int {
	for i := len(groups) - 1; i >= 0; i-- {
		ok := true
		for _, member := range groups[i] {
			if avoid.Forbidden(u, member) {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ErrInvalidResult is returned by Validate when a Result breaks an engine
// invariant.
var ErrInvalidResult = errors.New("invalid pairing result")

// Validate checks that groups are disjoint subsets of users, contain no
// forbidden pair, have 2 or 3 members with at most one group of 3, and that
// every user is either grouped or unplaced.
func (r Result) Validate(users []string, avoid AvoidRelation) error {
	pool := make(map[string]bool, len(users))
	for _, u := range dedupe(users) {
		pool[u] = true
	}

	seen := make(map[string]bool, len(users))
	triples := 0
	for gi, g := range r.Groups {
		switch len(g) {
		case 2:
		case 3:
			triples++
		default:
			return fmt.Errorf("%w: group %d has %d members", ErrInvalidResult, gi, len(g))
		}
		for i, u := range g {
			if !pool[u] {
				return fmt.Errorf("%w: %s is not an active user", ErrInvalidResult, u)
			}
			if seen[u] {
				return fmt.Errorf("%w: %s appears in more than one group", ErrInvalidResult, u)
			}
			seen[u] = true
			for _, v := range g[i+1:] {
				if avoid.Forbidden(u, v) {
					return fmt.Errorf("%w: %s and %s must not be grouped", ErrInvalidResult, u, v)
				}
			}
		}
	}
	if triples > 1 {
		return fmt.Errorf("%w: %d groups of three", ErrInvalidResult, triples)
	}

	for _, u := range r.Unplaced {
		if seen[u] {
			return fmt.Errorf("%w: %s is both grouped and unplaced", ErrInvalidResult, u)
		}
		seen[u] = true
	}
	for u := range pool {
		if !seen[u] {
			return fmt.Errorf("%w: %s was dropped", ErrInvalidResult, u)
		}
	}
	return nil
}
