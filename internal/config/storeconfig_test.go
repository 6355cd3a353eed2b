package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPublicConfigPreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("issue-prefix: bd\ncustom-key: keep-me\n"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	doc, err := LoadPublic(dir)
	if err != nil {
		t.Fatalf("LoadPublic: %v", err)
	}
	prefix, ok := doc.IssuePrefix()
	if !ok || prefix != "bd" {
		t.Fatalf("IssuePrefix = %q, %v", prefix, ok)
	}

	doc.SetIssuePrefix("bd2")
	if err := doc.SavePublic(dir); err != nil {
		t.Fatalf("SavePublic: %v", err)
	}

	reloaded, err := LoadPublic(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	prefix, _ = reloaded.IssuePrefix()
	if prefix != "bd2" {
		t.Errorf("prefix after rewrite = %q", prefix)
	}
	if v, _ := reloaded.getString("custom-key"); v != "keep-me" {
		t.Errorf("custom-key was not preserved: %q", v)
	}
}

func TestPrivateConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	doc, err := LoadPrivate(dir)
	if err != nil {
		t.Fatalf("LoadPrivate: %v", err)
	}
	if doc.HashIDs() {
		t.Error("expected mb-hash-ids to default false")
	}
	doc.SetHashIDs(true)
	if err := doc.SavePrivate(dir); err != nil {
		t.Fatalf("SavePrivate: %v", err)
	}
	reloaded, err := LoadPrivate(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.HashIDs() {
		t.Error("expected mb-hash-ids true after reload")
	}
}
