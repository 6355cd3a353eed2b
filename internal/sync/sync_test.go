package sync

import (
	"testing"
	"time"

	"github.com/rrnewton/minibeads/internal/types"
)

func TestClassifyMarkdownNewerUpdatesMirror(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	md := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "x"}}
	mdTimes := map[string]time.Time{"p-1": t0.Add(2 * time.Second)}
	mir := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "y", UpdatedAt: t0}}

	plan := Classify(md, mdTimes, mir, DefaultTolerance)
	if len(plan.Items) != 1 || plan.Items[0].Action != UpdateMirrorFromMarkdown {
		t.Fatalf("plan = %+v", plan.Items)
	}
}

func TestClassifyMirrorNewerUpdatesMarkdown(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	md := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "x"}}
	mdTimes := map[string]time.Time{"p-1": t0}
	mir := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "y", UpdatedAt: t0.Add(2 * time.Second)}}

	plan := Classify(md, mdTimes, mir, DefaultTolerance)
	if len(plan.Items) != 1 || plan.Items[0].Action != UpdateMarkdownFromMirror {
		t.Fatalf("plan = %+v", plan.Items)
	}
}

func TestClassifyWithinToleranceSameContentIsNoChange(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issue := &types.Issue{ID: "p-1", Title: "x", UpdatedAt: t0}
	md := map[string]*types.Issue{"p-1": issue}
	mdTimes := map[string]time.Time{"p-1": t0.Add(200 * time.Millisecond)}
	mir := map[string]*types.Issue{"p-1": issue}

	plan := Classify(md, mdTimes, mir, DefaultTolerance)
	if len(plan.Items) != 1 || plan.Items[0].Action != NoChange {
		t.Fatalf("plan = %+v", plan.Items)
	}
}

// TestClassifyEqualMtimesDifferentContentIsConflict reproduces spec.md
// §8's boundary case: equal timestamps, different contents => Conflict.
func TestClassifyEqualMtimesDifferentContentIsConflict(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	md := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "markdown-side", UpdatedAt: t0}}
	mdTimes := map[string]time.Time{"p-1": t0}
	mir := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "mirror-side", UpdatedAt: t0}}

	plan := Classify(md, mdTimes, mir, DefaultTolerance)
	if len(plan.Items) != 1 || plan.Items[0].Action != Conflict {
		t.Fatalf("plan = %+v", plan.Items)
	}

	applied := Apply(plan, md, mir)
	if len(applied.Conflicts) != 1 || applied.Conflicts[0] != "p-1" {
		t.Fatalf("conflicts = %v", applied.Conflicts)
	}
	if len(applied.WriteToMarkdown) != 0 || len(applied.WriteToMirror) != 0 {
		t.Fatalf("conflict must not produce writes on either side")
	}
}

// TestApplyUpdateMarkdownFromMirrorPreservesBodyFields covers the fix
// for the mirror wire format's missing body fields: a mirror-side
// update must not wipe the markdown issue's Description/Design/
// Acceptance/Notes, since the mirror never carried them to begin with.
func TestApplyUpdateMarkdownFromMirrorPreservesBodyFields(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	md := map[string]*types.Issue{"p-1": {
		ID: "p-1", Title: "old title", UpdatedAt: t0,
		Description: "kept description", Design: "kept design",
		Acceptance: "kept acceptance", Notes: "kept notes",
	}}
	mdTimes := map[string]time.Time{"p-1": t0}
	mir := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "new title", UpdatedAt: t0.Add(2 * time.Second)}}

	plan := Classify(md, mdTimes, mir, DefaultTolerance)
	applied := Apply(plan, md, mir)

	written, ok := applied.WriteToMarkdown["p-1"]
	if !ok {
		t.Fatalf("expected p-1 staged for markdown")
	}
	if written.Title != "new title" {
		t.Errorf("expected mirror's title to win, got %q", written.Title)
	}
	if written.Description != "kept description" || written.Design != "kept design" ||
		written.Acceptance != "kept acceptance" || written.Notes != "kept notes" {
		t.Errorf("body fields should survive an update-from-mirror, got %+v", written)
	}
}

func TestApplyCreateInBothDirections(t *testing.T) {
	now := time.Now().UTC()
	md := map[string]*types.Issue{"p-1": {ID: "p-1", Title: "markdown-only", UpdatedAt: now}}
	mir := map[string]*types.Issue{"p-2": {ID: "p-2", Title: "mirror-only", UpdatedAt: now}}
	mdTimes := map[string]time.Time{"p-1": now}

	plan := Classify(md, mdTimes, mir, DefaultTolerance)
	applied := Apply(plan, md, mir)

	if _, ok := applied.WriteToMirror["p-1"]; !ok {
		t.Error("expected p-1 staged for the mirror")
	}
	if _, ok := applied.WriteToMarkdown["p-2"]; !ok {
		t.Error("expected p-2 staged for markdown")
	}
}
