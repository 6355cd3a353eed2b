// Package sync implements the Sync Planner/Applier from spec.md §4.9:
// bidirectional reconciliation between the Markdown store (authoritative
// timestamp: file mtime) and a sibling JSON-lines mirror (authoritative
// timestamp: updated_at). No corpus example implements this merge
// directly; the closest grounding is the always-dirty "every on-disk
// issue is dirty relative to a mirror" posture of
// rrnewton-beads/internal/storage/markdown/stubs.go's GetDirtyIssues,
// and the field-diff machinery from internal/mirror (itself grounded on
// the teacher's fieldComparator/issueDataChanged), reused here to
// classify an in-tolerance pair as no-change vs. Conflict.
package sync

import (
	"sort"
	"time"

	"github.com/rrnewton/minibeads/internal/mirror"
	"github.com/rrnewton/minibeads/internal/types"
)

// Action is the outcome of classifying one id present on either side.
type Action string

const (
	CreateInMirror           Action = "create-in-mirror"
	CreateInMarkdown         Action = "create-in-markdown"
	UpdateMirrorFromMarkdown Action = "update-mirror-from-markdown"
	UpdateMarkdownFromMirror Action = "update-markdown-from-mirror"
	Conflict                 Action = "conflict"
	NoChange                 Action = "no-change"
)

// PlanItem is one id's classification.
type PlanItem struct {
	ID     string
	Action Action
}

// Plan is the ordered (by id) sequence of classifications for one sync
// pass. Producing a Plan never touches either side's data.
type Plan struct {
	Items []PlanItem
}

// DefaultTolerance absorbs filesystem mtime precision loss, per
// spec.md §4.9.
const DefaultTolerance = 1 * time.Second

// Classify plans one sync pass over the union of markdown and mirror
// issue ids. markdownTimes supplies each markdown issue's file mtime;
// mirrorIssues' authoritative timestamp is its own UpdatedAt field.
func Classify(markdown map[string]*types.Issue, markdownTimes map[string]time.Time, mirrorIssues map[string]*types.Issue, tolerance time.Duration) *Plan {
	ids := make(map[string]bool)
	for id := range markdown {
		ids[id] = true
	}
	for id := range mirrorIssues {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	plan := &Plan{}
	for _, id := range sorted {
		mdIss, inMD := markdown[id]
		mirIss, inMirror := mirrorIssues[id]

		switch {
		case inMD && !inMirror:
			plan.Items = append(plan.Items, PlanItem{ID: id, Action: CreateInMirror})
		case !inMD && inMirror:
			plan.Items = append(plan.Items, PlanItem{ID: id, Action: CreateInMarkdown})
		default:
			tM := markdownTimes[id]
			tJ := mirIss.UpdatedAt
			delta := tM.Sub(tJ)
			switch {
			case delta > tolerance:
				plan.Items = append(plan.Items, PlanItem{ID: id, Action: UpdateMirrorFromMarkdown})
			case -delta > tolerance:
				plan.Items = append(plan.Items, PlanItem{ID: id, Action: UpdateMarkdownFromMirror})
			case mirror.IssueChanged(mdIss, mirIss):
				plan.Items = append(plan.Items, PlanItem{ID: id, Action: Conflict})
			default:
				plan.Items = append(plan.Items, PlanItem{ID: id, Action: NoChange})
			}
		}
	}
	return plan
}

// ApplyResult is the outcome of applying a Plan: the issues each side
// needs to write, and the ids skipped as conflicts (Phase 1 policy:
// conflicts are reported, never auto-resolved).
type ApplyResult struct {
	WriteToMarkdown map[string]*types.Issue
	WriteToMirror   map[string]*types.Issue
	Conflicts       []string
}

// Apply resolves a Plan into concrete writes. It performs no I/O itself
// -- the caller (the top-level API) is responsible for persisting
// WriteToMarkdown via Repository.ImportIssue and WriteToMirror via a
// mirror.Export rewrite of the mirror file.
func Apply(plan *Plan, markdown map[string]*types.Issue, mirrorIssues map[string]*types.Issue) ApplyResult {
	result := ApplyResult{
		WriteToMarkdown: make(map[string]*types.Issue),
		WriteToMirror:   make(map[string]*types.Issue),
	}
	for _, item := range plan.Items {
		switch item.Action {
		case CreateInMirror, UpdateMirrorFromMarkdown:
			result.WriteToMirror[item.ID] = markdown[item.ID]
		case CreateInMarkdown:
			result.WriteToMarkdown[item.ID] = mirrorIssues[item.ID]
		case UpdateMarkdownFromMirror:
			// The mirror wire format never carries Description/Design/
			// Acceptance/Notes; merge onto the existing markdown issue
			// so those body fields survive the overwrite.
			result.WriteToMarkdown[item.ID] = mirror.Merge(markdown[item.ID], mirrorIssues[item.ID])
		case Conflict:
			result.Conflicts = append(result.Conflicts, item.ID)
		case NoChange:
			// nothing to do
		}
	}
	return result
}
