package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/rrnewton/minibeads/internal/types"
)

func sampleIssue() *types.Issue {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &types.Issue{
		ID:        "test-1",
		Title:     "A",
		Status:    types.StatusOpen,
		Priority:  2,
		IssueType: types.TypeTask,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRoundtrip(t *testing.T) {
	iss := sampleIssue()
	iss.Description = "hello"
	iss.DependsOn = map[string]types.DependencyKind{"test-2": types.DepBlocks}

	data, err := Encode(iss)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode("test-1", data, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Title != iss.Title || got.Status != iss.Status || got.Priority != iss.Priority {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.Description != "hello" {
		t.Errorf("Description = %q", got.Description)
	}
	if got.DependsOn["test-2"] != types.DepBlocks {
		t.Errorf("DependsOn = %v", got.DependsOn)
	}
	if !got.CreatedAt.Equal(iss.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, iss.CreatedAt)
	}
}

func TestDescriptionAlwaysEmitted(t *testing.T) {
	iss := sampleIssue()
	data, err := Encode(iss)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "# Description") {
		t.Errorf("expected Description section even when empty, got:\n%s", data)
	}
}

func TestDesignOmittedWhenEmpty(t *testing.T) {
	iss := sampleIssue()
	data, err := Encode(iss)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "# Design") {
		t.Errorf("expected Design section to be omitted, got:\n%s", data)
	}
}

func TestSanitizeDemotesH1ThroughH5(t *testing.T) {
	got, err := Sanitize("# Big\n## Little\ntext")
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	want := "## Big\n### Little\ntext"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeRejectsH6(t *testing.T) {
	_, err := Sanitize("##### almost\n###### too deep")
	if err == nil {
		t.Fatal("expected HeaderDepthExceeded error")
	}
	se, ok := err.(*types.StoreError)
	if !ok || se.Kind != types.ErrHeaderDepthExceeded {
		t.Errorf("got %v, want HeaderDepthExceeded", err)
	}
}

func TestDecodeUnexpectedHeaderFoldsIntoNotesAndWarns(t *testing.T) {
	data := []byte("---\ntitle: A\nstatus: open\npriority: 2\nissue_type: task\ncreated_at: \"2026-01-01T00:00:00Z\"\nupdated_at: \"2026-01-01T00:00:00Z\"\n---\n# Random\nsurprise content\n")
	var warned []types.Warning
	iss, err := Decode("test-1", data, func(w types.Warning) { warned = append(warned, w) })
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if iss.Notes != "surprise content" {
		t.Errorf("Notes = %q", iss.Notes)
	}
	if len(warned) != 1 || warned[0].Kind != types.WarnUnexpectedHeader {
		t.Errorf("warnings = %v", warned)
	}
}

func TestDecodeAcceptsLegacyDependsOnObjectShape(t *testing.T) {
	data := []byte("---\ntitle: A\nstatus: open\npriority: 2\nissue_type: task\ndepends_on:\n  test-2:\n    type: blocks\ncreated_at: \"2026-01-01T00:00:00Z\"\nupdated_at: \"2026-01-01T00:00:00Z\"\n---\n# Description\n\n")
	iss, err := Decode("test-1", data, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if iss.DependsOn["test-2"] != types.DepBlocks {
		t.Errorf("DependsOn = %v", iss.DependsOn)
	}
}

func TestDecodeMissingFrontmatterDelimiters(t *testing.T) {
	_, err := Decode("test-1", []byte("no frontmatter here"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodePreservesUnknownKeysInExtra(t *testing.T) {
	data := []byte("---\ntitle: A\nstatus: open\npriority: 2\nissue_type: task\nfuture_field: surprise\ncreated_at: \"2026-01-01T00:00:00Z\"\nupdated_at: \"2026-01-01T00:00:00Z\"\n---\n# Description\n\n")
	iss, err := Decode("test-1", data, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if iss.Extra["future_field"] != "surprise" {
		t.Errorf("Extra = %v", iss.Extra)
	}
}
