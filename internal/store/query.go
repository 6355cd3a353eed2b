package store

import (
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rrnewton/minibeads/internal/depindex"
	"github.com/rrnewton/minibeads/internal/types"
)

// Snapshot is a read-only view of the repository at one point in time,
// composing the loaded issue set with its derived Dependency Index.
// Every Query Engine operation (spec.md §4.6) is a method on Snapshot
// so none of them re-scan the filesystem. Grounded on
// rrnewton-beads/internal/storage/markdown/stubs.go's GetReadyWork /
// GetBlockedIssues / GetStatistics, generalized to use the Dependency
// Index instead of re-walking dependents per call.
type Snapshot struct {
	Issues map[string]*types.Issue
	Index  *depindex.Index
}

// Snapshot loads the full issue set under the lock and builds its
// Dependency Index.
func (r *Repository) Snapshot() (*Snapshot, error) {
	var snap *Snapshot
	err := r.withLock("snapshot", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		snap = &Snapshot{Issues: issues, Index: depindex.Build(issues)}
		return nil
	})
	return snap, err
}

// List returns issues matching filter, intersection-composed, ordered
// priority ascending, then updated_at descending, then id lexicographic.
func (s *Snapshot) List(filter types.Filter) []*types.Issue {
	var out []*types.Issue
	for _, iss := range s.Issues {
		if matches(iss, filter) {
			out = append(out, iss)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func matches(iss *types.Issue, f types.Filter) bool {
	if len(f.Status) > 0 && !containsStatus(f.Status, iss.Status) {
		return false
	}
	if len(f.Priority) > 0 && !containsInt(f.Priority, iss.Priority) {
		return false
	}
	if len(f.IssueType) > 0 && !containsType(f.IssueType, iss.IssueType) {
		return false
	}
	if f.Assignee != nil && iss.Assignee != *f.Assignee {
		return false
	}
	if len(f.Labels) > 0 && !hasAllLabels(iss.Labels, f.Labels) {
		return false
	}
	if len(f.LabelsAny) > 0 && !hasAnyLabel(iss.Labels, f.LabelsAny) {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, iss.ID) {
		return false
	}
	if f.TitleSubstr != "" && !strings.Contains(strings.ToLower(iss.Title), strings.ToLower(f.TitleSubstr)) {
		return false
	}
	return true
}

func containsStatus(set []types.Status, v types.Status) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(set []types.IssueType, v types.IssueType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func hasAllLabels(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, l := range have {
		set[l] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func hasAnyLabel(have, want []string) bool {
	set := make(map[string]bool, len(want))
	for _, w := range want {
		set[w] = true
	}
	for _, l := range have {
		if set[l] {
			return true
		}
	}
	return false
}

// Ready returns open, non-blocked issues, ordered per sort.
func (s *Snapshot) Ready(readySort types.ReadySort) []*types.Issue {
	var out []*types.Issue
	for _, iss := range s.Issues {
		if iss.Status != types.StatusOpen {
			continue
		}
		if s.Index.IsBlocked(iss.ID) {
			continue
		}
		out = append(out, iss)
	}
	switch readySort {
	case types.SortPriority:
		sort.Slice(out, func(i, j int) bool {
			if out[i].Priority != out[j].Priority {
				return out[i].Priority < out[j].Priority
			}
			return out[i].ID < out[j].ID
		})
	case types.SortOldest:
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	default: // hybrid
		sort.Slice(out, func(i, j int) bool {
			if out[i].Priority != out[j].Priority {
				return out[i].Priority < out[j].Priority
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}
	return out
}

// Blocked returns every blocked issue annotated with its blocker ids.
func (s *Snapshot) Blocked() []types.BlockedIssue {
	var out []types.BlockedIssue
	ids := make([]string, 0, len(s.Issues))
	for id := range s.Issues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if blockers := s.Index.Blocking(id); len(blockers) > 0 {
			out = append(out, types.BlockedIssue{Issue: s.Issues[id], BlockedBy: blockers})
		}
	}
	return out
}

// Stats computes counts by status, ready count, and mean lead time over
// closed issues (closed_at - created_at).
func (s *Snapshot) Stats() types.Stats {
	stats := types.Stats{CountByStatus: make(map[types.Status]int)}
	var totalLead time.Duration
	for _, iss := range s.Issues {
		stats.CountByStatus[iss.Status]++
		if iss.Status == types.StatusClosed && iss.ClosedAt != nil {
			stats.ClosedCount++
			totalLead += iss.ClosedAt.Sub(iss.CreatedAt)
		}
	}
	stats.ReadyCount = len(s.Ready(types.SortPriority))
	if stats.ClosedCount > 0 {
		stats.MeanLeadTime = totalLead / time.Duration(stats.ClosedCount)
	}
	return stats
}

// Summary renders stats as an operator-facing one-line string, using
// humanize for the mean-lead-time duration rather than hand-rolling
// duration pretty-printing.
func Summary(stats types.Stats) string {
	if stats.ClosedCount == 0 {
		return "no closed issues yet"
	}
	return "mean lead time " + humanize.RelTime(time.Now().Add(-stats.MeanLeadTime), time.Now(), "", "")
}
