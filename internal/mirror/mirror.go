// Package mirror implements the Export/Import Codec from spec.md §4.8:
// translation between the repository's internal Issue form and a
// line-delimited JSON mirror, one issue per line. Grounded on the
// teacher's cmd/bd/import_shared.go for the field-diff comparison used
// to decide whether an import actually changes an existing issue
// (fieldComparator/issueDataChanged), adapted here from a CLI-import
// helper into the codec's own diffing step.
package mirror

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rrnewton/minibeads/internal/types"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// depRef is the wire shape of one dependency/dependent edge.
type depRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// record is the wire shape of one mirror line, per spec.md §6.
type record struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	Priority     int               `json:"priority"`
	IssueType    string            `json:"issue_type"`
	Assignee     string            `json:"assignee,omitempty"`
	Labels       []string          `json:"labels,omitempty"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
	ClosedAt     string            `json:"closed_at,omitempty"`
	ExternalRef  string            `json:"external_ref,omitempty"`
	Dependencies []depRef          `json:"dependencies,omitempty"`
	Dependents   []depRef          `json:"dependents,omitempty"`
	DependsOn    map[string]string `json:"depends_on,omitempty"` // deprecated read-side shape
}

// Export renders issues (already filtered/ordered by the caller, per
// spec.md §4.8's "export filters like list and writes in a stable
// order") as JSON lines. dependentsOf supplies the materialized
// dependents array for each issue.
func Export(issues []*types.Issue, dependentsOf func(id string) []types.DependentRef) ([]byte, error) {
	var buf bytes.Buffer
	for _, iss := range issues {
		rec := toRecord(iss, dependentsOf(iss.ID))
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, types.NewError(types.ErrIoError, "mirror.Export", iss.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func toRecord(iss *types.Issue, dependents []types.DependentRef) record {
	rec := record{
		ID:        iss.ID,
		Title:     iss.Title,
		Status:    string(iss.Status),
		Priority:  iss.Priority,
		IssueType: string(iss.IssueType),
		Assignee:  iss.Assignee,
		Labels:    iss.Labels,
		CreatedAt: iss.CreatedAt.Format(timeLayout),
		UpdatedAt: iss.UpdatedAt.Format(timeLayout),
	}
	if iss.ExternalRef != nil {
		rec.ExternalRef = *iss.ExternalRef
	}
	if iss.ClosedAt != nil {
		rec.ClosedAt = iss.ClosedAt.Format(timeLayout)
	}
	if len(iss.DependsOn) > 0 {
		targets := make([]string, 0, len(iss.DependsOn))
		for target := range iss.DependsOn {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			rec.Dependencies = append(rec.Dependencies, depRef{ID: target, Type: string(iss.DependsOn[target])})
		}
	}
	for _, d := range dependents {
		rec.Dependents = append(rec.Dependents, depRef{ID: d.ID, Type: string(d.Kind)})
	}
	return rec
}

// Import parses data as JSON lines, skipping malformed lines. Each
// skipped line is reported as an ImportMalformed *types.StoreError, but
// the overall call never fails because of them -- per spec.md §4.8,
// malformed lines are a per-line warning, not a fatal condition.
func Import(data []byte) (issues []*types.Issue, skipped []*types.StoreError) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		iss, err := fromLine(line)
		if err != nil {
			skipped = append(skipped, types.NewError(types.ErrImportMalformed, "mirror.Import", fmt.Sprintf("line %d", lineNo), err))
			continue
		}
		issues = append(issues, iss)
	}
	return issues, skipped
}

func fromLine(line string) (*types.Issue, error) {
	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" || rec.Title == "" {
		return nil, fmt.Errorf("missing required field id/title")
	}

	iss := &types.Issue{
		ID:        rec.ID,
		Title:     rec.Title,
		Status:    types.Status(rec.Status),
		Priority:  rec.Priority,
		IssueType: types.IssueType(rec.IssueType),
		Assignee:  rec.Assignee,
		Labels:    rec.Labels,
	}
	if rec.ExternalRef != "" {
		ref := rec.ExternalRef
		iss.ExternalRef = &ref
	}

	createdAt, err := time.Parse(timeLayout, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	iss.CreatedAt = createdAt
	updatedAt, err := time.Parse(timeLayout, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	iss.UpdatedAt = updatedAt
	if rec.ClosedAt != "" {
		closedAt, err := time.Parse(timeLayout, rec.ClosedAt)
		if err != nil {
			return nil, fmt.Errorf("bad closed_at: %w", err)
		}
		iss.ClosedAt = &closedAt
	}

	deps := make(map[string]types.DependencyKind)
	for _, d := range rec.Dependencies {
		deps[d.ID] = types.DependencyKind(d.Type)
	}
	for id, kind := range rec.DependsOn { // deprecated object shape
		deps[id] = types.DependencyKind(kind)
	}
	if len(deps) > 0 {
		iss.DependsOn = deps
	}

	return iss, nil
}

// IssueChanged reports whether incoming differs from existing in any
// field an import would overwrite, so the caller can skip rewriting
// (and bumping updated_at on) issues the mirror did not actually
// change. Grounded on the teacher's fieldComparator/issueDataChanged:
// type-flexible equality across string/*string and int-family values.
// The wire format carries no Description/Design/Acceptance/Notes (see
// fromLine), so those body fields are never compared here -- incoming
// is always empty on them regardless of whether existing's content
// actually changed.
func IssueChanged(existing, incoming *types.Issue) bool {
	if existing == nil {
		return true
	}
	if existing.Title != incoming.Title ||
		existing.Status != incoming.Status ||
		existing.Priority != incoming.Priority ||
		existing.IssueType != incoming.IssueType ||
		existing.Assignee != incoming.Assignee {
		return true
	}
	if !stringPtrEqual(existing.ExternalRef, incoming.ExternalRef) {
		return true
	}
	if !stringSetEqual(existing.Labels, incoming.Labels) {
		return true
	}
	if !dependsOnEqual(existing.DependsOn, incoming.DependsOn) {
		return true
	}
	return false
}

// Merge overlays incoming's wire-carried fields onto a clone of
// existing, preserving existing's Description/Design/Acceptance/Notes
// -- fields the wire format never carries (see fromLine) and which an
// overwrite-in-place would otherwise silently wipe to "". If existing
// is nil, incoming is returned as-is: there is nothing to preserve.
func Merge(existing, incoming *types.Issue) *types.Issue {
	if existing == nil {
		return incoming
	}
	merged := existing.Clone()
	merged.ID = incoming.ID
	merged.Title = incoming.Title
	merged.Status = incoming.Status
	merged.Priority = incoming.Priority
	merged.IssueType = incoming.IssueType
	merged.Assignee = incoming.Assignee
	merged.Labels = incoming.Labels
	merged.ExternalRef = incoming.ExternalRef
	merged.CreatedAt = incoming.CreatedAt
	merged.UpdatedAt = incoming.UpdatedAt
	merged.ClosedAt = incoming.ClosedAt
	merged.DependsOn = incoming.DependsOn
	return merged
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func dependsOnEqual(a, b map[string]types.DependencyKind) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
