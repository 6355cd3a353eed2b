// Package minibeads is the public surface: it composes the Repository
// (internal/store), the Export/Import Codec (internal/mirror), and the
// Sync Planner/Applier (internal/sync) into the operations a caller
// needs without reaching into internal packages directly. Grounded on
// the shape of the teacher's deleted beads.go facade, rebuilt here over
// the new internal layout rather than copied from it.
package minibeads

import (
	"log/slog"
	"os"
	"time"

	"github.com/rrnewton/minibeads/internal/logging"
	"github.com/rrnewton/minibeads/internal/mirror"
	"github.com/rrnewton/minibeads/internal/settings"
	"github.com/rrnewton/minibeads/internal/store"
	"github.com/rrnewton/minibeads/internal/sync"
	"github.com/rrnewton/minibeads/internal/types"
)

// Re-exported so callers never need to import internal/types directly
// for the common vocabulary.
type (
	Issue          = types.Issue
	Draft          = types.Draft
	Patch          = types.Patch
	Filter         = types.Filter
	Stats          = types.Stats
	BlockedIssue   = types.BlockedIssue
	DependentRef   = types.DependentRef
	Status         = types.Status
	IssueType      = types.IssueType
	DependencyKind = types.DependencyKind
	ValidationMode = types.ValidationMode
	ReadySort      = types.ReadySort
	StoreError     = types.StoreError
	Snapshot       = store.Snapshot
)

const (
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusBlocked    = types.StatusBlocked
	StatusClosed     = types.StatusClosed
)

// Store is the opened handle callers drive every operation through. It
// owns a Repository and the operator Settings it was opened with.
type Store struct {
	repo     *store.Repository
	settings settings.Settings
	log      *slog.Logger
}

// Init creates a brand-new store rooted at dir.
func Init(dir, prefix string, hashIDs bool) error {
	return store.Init(dir, prefix, hashIDs)
}

// Open loads operator settings from dir (falling back to built-in
// defaults if none are present) and opens the Repository rooted there,
// wiring its logger and default ValidationMode from those settings.
func Open(dir string) (*Store, error) {
	s, err := settings.Load(dir)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Options{FilePath: s.LogFile, Level: s.LogLevel})
	warnSink := func(w types.Warning) {
		log.Warn(w.Message, "kind", w.Kind, "op", w.Op, "id", w.ID)
	}

	repo, err := store.Open(dir, store.Options{
		Validation: types.ValidationMode(s.DefaultValidation),
		WarnSink:   warnSink,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	return &Store{repo: repo, settings: s, log: log}, nil
}

func (st *Store) Create(draft types.Draft) (string, error) { return st.repo.Create(draft) }

func (st *Store) Update(id string, patch types.Patch) (*types.Issue, error) {
	return st.repo.Update(id, patch)
}

func (st *Store) Close(id, reason string) error  { return st.repo.Close(id, reason) }
func (st *Store) Reopen(id, reason string) error { return st.repo.Reopen(id, reason) }

func (st *Store) DepAdd(src, dst string, kind types.DependencyKind) error {
	return st.repo.DepAdd(src, dst, kind)
}
func (st *Store) DepRemove(src, dst string) error { return st.repo.DepRemove(src, dst) }

func (st *Store) Show(id string) (*types.Issue, []types.DependentRef, error) {
	return st.repo.Show(id)
}
func (st *Store) List(filter types.Filter) ([]*types.Issue, error) { return st.repo.List(filter) }

// Rename reports the rename plan (the id change plus every dependent
// that would be rewritten) when dryRun is true, or executes it when
// dryRun is false.
func (st *Store) Rename(oldID, newID string, dryRun bool) ([]string, error) {
	return st.repo.Rename(oldID, newID, dryRun)
}

// RenamePrefix reports or executes a store-wide prefix rename; see
// Rename for the dryRun convention.
func (st *Store) RenamePrefix(newPrefix string, force, dryRun bool) ([]string, error) {
	return st.repo.RenamePrefix(newPrefix, force, dryRun)
}

// Migrate reports or executes a store-wide id-scheme migration; see
// Rename for the dryRun convention.
func (st *Store) Migrate(direction types.MigrationDirection, dryRun bool) ([]string, error) {
	return st.repo.Migrate(direction, dryRun)
}
func (st *Store) Repair(dryRun bool) ([]string, error) { return st.repo.Repair(dryRun) }

// Snapshot exposes the Query Engine: Ready/Blocked/Stats/List all read
// from one consistent point-in-time view.
func (st *Store) Snapshot() (*Snapshot, error) { return st.repo.Snapshot() }

// Export renders every issue matching filter as a JSON-lines mirror,
// with each issue's dependents populated from the current Dependency
// Index.
func (st *Store) Export(filter types.Filter) ([]byte, error) {
	snap, err := st.repo.Snapshot()
	if err != nil {
		return nil, err
	}
	issues := snap.List(filter)
	return mirror.Export(issues, func(id string) []types.DependentRef {
		return snap.Index.Dependents(id)
	})
}

// Import reads a JSON-lines mirror and writes every issue whose content
// actually changed (per mirror.IssueChanged) into the Markdown store,
// leaving issues the mirror left unchanged untouched. It never fails on
// a malformed line -- those are returned in skipped instead.
func (st *Store) Import(data []byte) (imported []string, skipped []*types.StoreError, err error) {
	incoming, skipped := mirror.Import(data)
	snap, err := st.repo.Snapshot()
	if err != nil {
		return nil, skipped, err
	}
	for _, iss := range incoming {
		existing, exists := snap.Issues[iss.ID]
		if exists && !mirror.IssueChanged(existing, iss) {
			continue
		}
		if err := st.repo.ImportIssue(mirror.Merge(existing, iss)); err != nil {
			return imported, skipped, err
		}
		imported = append(imported, iss.ID)
	}
	return imported, skipped, nil
}

// SyncResult reports what a Sync call did.
type SyncResult struct {
	UpdatedMarkdown []string
	UpdatedMirror   []string
	Conflicts       []string
}

// Sync reconciles the Markdown store against mirrorPath, a JSON-lines
// file maintained alongside it. The Markdown side's authoritative
// timestamp is each issue file's mtime; the mirror side's is its own
// updated_at, per internal/sync's Classify/Apply.
func (st *Store) Sync(mirrorPath string) (SyncResult, error) {
	snap, err := st.repo.Snapshot()
	if err != nil {
		return SyncResult{}, err
	}

	fileModTimes := make(map[string]time.Time, len(snap.Issues))
	for id := range snap.Issues {
		mt, err := st.repo.FileModTime(id)
		if err != nil {
			return SyncResult{}, err
		}
		fileModTimes[id] = mt
	}

	mirrorData, err := os.ReadFile(mirrorPath)
	var mirrorIssues []*types.Issue
	if err == nil {
		mirrorIssues, _ = mirror.Import(mirrorData)
	} else if !os.IsNotExist(err) {
		return SyncResult{}, types.NewError(types.ErrIoError, "minibeads.Sync", "", err)
	}
	mirrorByID := make(map[string]*types.Issue, len(mirrorIssues))
	for _, iss := range mirrorIssues {
		mirrorByID[iss.ID] = iss
	}

	tolerance := st.settings.SyncTolerance
	plan := sync.Classify(snap.Issues, fileModTimes, mirrorByID, tolerance)
	applied := sync.Apply(plan, snap.Issues, mirrorByID)

	result := SyncResult{Conflicts: applied.Conflicts}
	for _, id := range applied.Conflicts {
		st.log.Warn("sync conflict", "id", id)
	}
	for id, iss := range applied.WriteToMarkdown {
		if err := st.repo.ImportIssue(iss); err != nil {
			return result, err
		}
		result.UpdatedMarkdown = append(result.UpdatedMarkdown, id)
	}

	if len(applied.WriteToMirror) > 0 {
		for id, iss := range applied.WriteToMirror {
			mirrorByID[id] = iss
			result.UpdatedMirror = append(result.UpdatedMirror, id)
		}
		merged := make([]*types.Issue, 0, len(mirrorByID))
		for _, iss := range mirrorByID {
			merged = append(merged, iss)
		}
		out, err := mirror.Export(merged, func(id string) []types.DependentRef {
			return snap.Index.Dependents(id)
		})
		if err != nil {
			return result, err
		}
		if err := os.WriteFile(mirrorPath, out, 0644); err != nil {
			return result, types.NewError(types.ErrIoError, "minibeads.Sync", "", err)
		}
	}

	return result, nil
}
