package journey

import (
	"fmt"
	"strings"
	"time"
)

// StatusFilterAll disables status filtering on a list query.
const StatusFilterAll = "all"

// Query is the operator's current view onto the journey list.
type Query struct {
	Status string `json:"status,omitempty"`
	SortBy string `json:"sortBy,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// CacheKey identifies the query; equal queries share a key.
func (q Query) CacheKey() string {
	return fmt.Sprintf("journeys|%s|%s|%s|%d|%d",
		q.statusFilter(), q.SortBy, strings.ToLower(strings.TrimSpace(q.Search)), q.Limit, q.Offset)
}

func (q Query) statusFilter() string {
	s := strings.ToLower(strings.TrimSpace(q.Status))
	if s == StatusFilterAll {
		return ""
	}
	return s
}

// Matches reports whether a journey belongs in the filtered view.
func (q Query) Matches(j Journey) bool {
	if f := q.statusFilter(); f != "" && string(j.Status) != f {
		return false
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	if search == "" {
		return true
	}
	for _, field := range []string{j.ID, j.CustomerName, j.CustomerEmail, j.CustomerPhone} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// ListState is the locally held journey page.
type ListState struct {
	Query             Query     `json:"query"`
	Rows              []Journey `json:"rows"`
	Total             int       `json:"total"`
	InactivityMinutes int       `json:"inactivityMinutes"`
	AppliedSeq        uint64    `json:"appliedSeq"`
}

// IndexOf returns the row position of id, or -1.
func (s ListState) IndexOf(id string) int {
	for i := range s.Rows {
		if s.Rows[i].ID == id {
			return i
		}
	}
	return -1
}

// ListAction is one input to Reduce.
type ListAction interface {
	listAction()
}

// UpsertAction merges a real-time journey payload into the page.
type UpsertAction struct {
	Patch Patch
	Now   time.Time
}

// ReplaceAction installs a fetched page issued with sequence Seq.
type ReplaceAction struct {
	Rows  []Journey
	Total int
	Seq   uint64
	Now   time.Time
}

// SetQueryAction switches the view to a new query and clears the rows. Pages
// issued at or before Seq belong to the previous query and are discarded.
type SetQueryAction struct {
	Query Query
	Seq   uint64
}

// SetInactivityAction updates the listing threshold after a policy load.
type SetInactivityAction struct {
	Minutes int
}

func (UpsertAction) listAction()        {}
func (ReplaceAction) listAction()       {}
func (SetQueryAction) listAction()      {}
func (SetInactivityAction) listAction() {}

// ChangeKind describes what a reduction did to the page.
type ChangeKind string

const (
	ChangeNone       ChangeKind = "none"
	ChangeRemoved    ChangeKind = "removed"
	ChangeUpdated    ChangeKind = "updated"
	ChangeInserted   ChangeKind = "inserted"
	ChangeReplaced   ChangeKind = "replaced"
	ChangeQuery      ChangeKind = "query"
	ChangeInactivity ChangeKind = "inactivity"
)

// ListChange is the outcome of one reduction, suitable for broadcasting.
type ListChange struct {
	Kind    ChangeKind `json:"kind"`
	ID      string     `json:"id,omitempty"`
	Index   int        `json:"index"`
	Journey *Journey   `json:"journey,omitempty"`
	Total   int        `json:"total"`
}

// Reduce is the single transition function of the journey list. It never
// mutates the input state; the returned state owns fresh row slices whenever
// rows change.
func Reduce(state ListState, action ListAction) (ListState, ListChange) {
	switch a := action.(type) {
	case UpsertAction:
		return reduceUpsert(state, a)
	case ReplaceAction:
		return reduceReplace(state, a)
	case SetQueryAction:
		next := state
		next.Query = a.Query
		next.Rows = nil
		next.Total = 0
		if a.Seq > next.AppliedSeq {
			next.AppliedSeq = a.Seq
		}
		return next, ListChange{Kind: ChangeQuery, Index: -1}
	case SetInactivityAction:
		next := state
		next.InactivityMinutes = a.Minutes
		return next, ListChange{Kind: ChangeInactivity, Index: -1, Total: next.Total}
	}
	return state, ListChange{Kind: ChangeNone, Index: -1, Total: state.Total}
}

func reduceUpsert(state ListState, a UpsertAction) (ListState, ListChange) {
	none := ListChange{Kind: ChangeNone, ID: a.Patch.ID, Index: -1, Total: state.Total}
	if a.Patch.ID == "" {
		return state, none
	}

	idx := state.IndexOf(a.Patch.ID)
	var merged Journey
	if idx >= 0 {
		merged = Merge(state.Rows[idx], a.Patch)
	} else {
		// a partial payload for an unknown row waits for the next refetch
		if !a.Patch.Status.Valid || !a.Patch.Status.Value.IsKnown() {
			return state, none
		}
		merged = Merge(Journey{}, a.Patch)
		if merged.Status == StatusActive && merged.LastAttemptNo == 0 && merged.LastActivityAt.IsZero() {
			return state, none
		}
	}

	show := IsReadyForListing(merged, state.InactivityMinutes, a.Now) && state.Query.Matches(merged)
	next := state

	switch {
	case !show && idx < 0:
		return state, none

	case !show:
		rows := make([]Journey, 0, len(state.Rows)-1)
		rows = append(rows, state.Rows[:idx]...)
		rows = append(rows, state.Rows[idx+1:]...)
		next.Rows = rows
		if next.Total > 0 {
			next.Total--
		}
		return next, ListChange{Kind: ChangeRemoved, ID: merged.ID, Index: idx, Total: next.Total}

	case idx >= 0:
		rows := make([]Journey, len(state.Rows))
		copy(rows, state.Rows)
		rows[idx] = merged
		next.Rows = rows
		return next, ListChange{Kind: ChangeUpdated, ID: merged.ID, Index: idx, Journey: &merged, Total: next.Total}

	default:
		rows := make([]Journey, 0, len(state.Rows)+1)
		rows = append(rows, merged)
		rows = append(rows, state.Rows...)
		if state.Query.Limit > 0 && len(rows) > state.Query.Limit {
			rows = rows[:state.Query.Limit]
		}
		next.Rows = rows
		next.Total++
		return next, ListChange{Kind: ChangeInserted, ID: merged.ID, Index: 0, Journey: &merged, Total: next.Total}
	}
}

func reduceReplace(state ListState, a ReplaceAction) (ListState, ListChange) {
	if a.Seq <= state.AppliedSeq {
		return state, ListChange{Kind: ChangeNone, Index: -1, Total: state.Total}
	}

	rows := make([]Journey, 0, len(a.Rows))
	dropped := 0
	for _, j := range a.Rows {
		if !IsReadyForListing(j, state.InactivityMinutes, a.Now) {
			dropped++
			continue
		}
		rows = append(rows, j.Clone())
	}

	next := state
	next.Rows = rows
	next.Total = a.Total - dropped
	if next.Total < len(rows) {
		next.Total = len(rows)
	}
	next.AppliedSeq = a.Seq
	return next, ListChange{Kind: ChangeReplaced, Index: -1, Total: next.Total}
}
