package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rrnewton/minibeads/internal/codec"
	"github.com/rrnewton/minibeads/internal/config"
	"github.com/rrnewton/minibeads/internal/idalloc"
	"github.com/rrnewton/minibeads/internal/types"
)

// staging is a subdirectory under the store root that the Rewriter
// writes every affected file to before committing any of them. This
// diverges deliberately from the teacher's UpdateIssueID, which commits
// the primary rename immediately and best-effort-patches dependents
// afterward: here, nothing touches issues/ until every write in the
// transformation has already succeeded once, staged.
type staging struct {
	dir string
}

func newStaging(root string) (*staging, error) {
	dir := filepath.Join(root, ".mb-staging-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, types.NewError(types.ErrIoError, "store.newStaging", "", err)
	}
	return &staging{dir: dir}, nil
}

func (s *staging) write(id string, iss *types.Issue) error {
	data, err := codec.Encode(iss)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, id+".md"), data, 0644); err != nil {
		return types.NewError(types.ErrIoError, "store.staging.write", id, err)
	}
	return nil
}

// commit renames every staged "<id>.md" into issuesDir, then removes
// the (now-empty) staging directory. Must only be called after every
// write this transformation needs has already succeeded.
func (s *staging) commit(issuesDir string) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return types.NewError(types.ErrIoError, "store.staging.commit", "", err)
	}
	for _, e := range entries {
		src := filepath.Join(s.dir, e.Name())
		dst := filepath.Join(issuesDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return types.NewError(types.ErrIoError, "store.staging.commit", e.Name(), err)
		}
	}
	return os.RemoveAll(s.dir)
}

func (s *staging) abort() {
	_ = os.RemoveAll(s.dir)
}

// Rename implements spec.md §4.7's Rename(old, new): old and new share
// this repository's single configured prefix by construction (resolveID
// normalizes both), so the "new.prefix == old.prefix" check that matters
// for cross-prefix moves is RenamePrefix's job, not Rename's. When
// dryRun is true, Rename computes and reports the plan (the rename
// itself plus every dependent that would be rewritten) without staging
// or writing anything, mirroring how internal/sync.Classify is split
// from Apply.
func (r *Repository) Rename(oldID, newID string, dryRun bool) ([]string, error) {
	oldID = r.resolveID(oldID)
	newID = r.resolveID(newID)
	var reports []string
	err := r.withLock("rename", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		oldIss, ok := issues[oldID]
		if !ok {
			return types.NewError(types.ErrNotFound, "store.Rename", oldID, nil)
		}
		if _, exists := issues[newID]; exists {
			return types.NewError(types.ErrAlreadyExists, "store.Rename", newID, nil)
		}

		renamed := oldIss.Clone()
		renamed.ID = newID
		reports = append(reports, fmt.Sprintf("rename %s -> %s", oldID, newID))

		now := time.Now().UTC()
		dependents := make(map[string]*types.Issue)
		depIDs := make([]string, 0, len(issues))
		for id := range issues {
			depIDs = append(depIDs, id)
		}
		sort.Strings(depIDs)
		for _, id := range depIDs {
			iss := issues[id]
			if id == oldID || !iss.HasDependency(oldID) {
				continue
			}
			dependent := iss.Clone()
			kind := dependent.DependsOn[oldID]
			delete(dependent.DependsOn, oldID)
			dependent.DependsOn[newID] = kind
			dependent.UpdatedAt = now
			dependents[id] = dependent
			reports = append(reports, fmt.Sprintf("update dependent %s: depends_on %s -> %s", id, oldID, newID))
		}

		if dryRun {
			return nil
		}

		st, err := newStaging(r.root)
		if err != nil {
			return err
		}
		if err := st.write(newID, renamed); err != nil {
			st.abort()
			return err
		}
		for id, dependent := range dependents {
			if err := st.write(id, dependent); err != nil {
				st.abort()
				return err
			}
		}

		if err := st.commit(issuesDir(r.root)); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(issuesDir(r.root), oldID+".md")); err != nil && !os.IsNotExist(err) {
			return types.NewError(types.ErrIoError, "store.Rename", oldID, err)
		}
		return nil
	})
	return reports, err
}

// RenamePrefix implements spec.md §4.7's Rename-prefix: every issue's id
// (and every reference to it) moves to newPrefix, preserving tails.
// Collisions are only possible if force is false and the computation
// below ever produces two issues sharing a new id, which cannot happen
// under this store's single-prefix invariant but is still checked. When
// dryRun is true, RenamePrefix reports the full rename plan without
// staging, writing, or touching config.yaml's issue-prefix.
func (r *Repository) RenamePrefix(newPrefix string, force, dryRun bool) ([]string, error) {
	var reports []string
	err := r.withLock("rename-prefix", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		if newPrefix == r.prefix {
			return nil
		}

		ids := make([]string, 0, len(issues))
		for id := range issues {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rename := make(map[string]string, len(issues))
		seen := make(map[string]bool, len(issues))
		for _, id := range ids {
			tail := r.tailOf(id, nil)
			newID := newPrefix + "-" + tail
			if seen[newID] && !force {
				return types.NewError(types.ErrPrefixRenameConflict, "store.RenamePrefix", newID, nil)
			}
			seen[newID] = true
			rename[id] = newID
			reports = append(reports, fmt.Sprintf("rename %s -> %s", id, newID))
		}

		if dryRun {
			return nil
		}

		st, err := newStaging(r.root)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for id, iss := range issues {
			clone := iss.Clone()
			clone.ID = rename[id]
			if len(clone.DependsOn) > 0 {
				newDeps := make(map[string]types.DependencyKind, len(clone.DependsOn))
				for target, kind := range clone.DependsOn {
					if mapped, ok := rename[target]; ok {
						newDeps[mapped] = kind
					} else {
						newDeps[target] = kind
					}
				}
				clone.DependsOn = newDeps
			}
			clone.UpdatedAt = now
			if err := st.write(rename[id], clone); err != nil {
				st.abort()
				return err
			}
		}

		if err := st.commit(issuesDir(r.root)); err != nil {
			return err
		}
		for id := range issues {
			if err := os.Remove(filepath.Join(issuesDir(r.root), id+".md")); err != nil && !os.IsNotExist(err) {
				return types.NewError(types.ErrIoError, "store.RenamePrefix", id, err)
			}
		}

		pub, err := config.LoadPublic(r.root)
		if err != nil {
			return err
		}
		pub.SetIssuePrefix(newPrefix)
		if err := pub.SavePublic(r.root); err != nil {
			return err
		}
		r.prefix = newPrefix
		return nil
	})
	return reports, err
}

// Migrate implements spec.md §4.7's Migrate: every issue's tail is
// reallocated under the target scheme, preserving the prefix. When
// dryRun is true, Migrate reports the full rename plan without staging,
// writing, or flipping config-minibeads.yaml's mb-hash-ids. Hashed tails
// are drawn fresh on every call, so a dry run's plan shows different
// tails from the ones a later real migration writes.
func (r *Repository) Migrate(direction types.MigrationDirection, dryRun bool) ([]string, error) {
	var reports []string
	err := r.withLock("migrate", func() error {
		targetScheme := types.SchemeSequential
		if direction == types.ToHashed {
			targetScheme = types.SchemeHashed
		}
		if r.scheme == targetScheme {
			return types.NewError(types.ErrAlreadyMigrated, "store.Migrate", "", nil)
		}

		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(issues))
		for id := range issues {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rename := make(map[string]string, len(ids))
		if targetScheme == types.SchemeSequential {
			for i, id := range ids {
				rename[id] = r.prefix + "-" + formatSeq(uint64(i+1))
			}
		} else {
			taken := make(map[string]bool, len(ids))
			for _, id := range ids {
				tail, err := idalloc.NextHashed(taken, nil)
				if err != nil {
					return err
				}
				taken[tail] = true
				rename[id] = r.prefix + "-" + tail
			}
		}
		for _, id := range ids {
			reports = append(reports, fmt.Sprintf("rename %s -> %s", id, rename[id]))
		}

		if dryRun {
			return nil
		}

		st, err := newStaging(r.root)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for id, iss := range issues {
			clone := iss.Clone()
			clone.ID = rename[id]
			if len(clone.DependsOn) > 0 {
				newDeps := make(map[string]types.DependencyKind, len(clone.DependsOn))
				for target, kind := range clone.DependsOn {
					if mapped, ok := rename[target]; ok {
						newDeps[mapped] = kind
					} else {
						newDeps[target] = kind
					}
				}
				clone.DependsOn = newDeps
			}
			clone.UpdatedAt = now
			if err := st.write(rename[id], clone); err != nil {
				st.abort()
				return err
			}
		}

		if err := st.commit(issuesDir(r.root)); err != nil {
			return err
		}
		for id := range issues {
			if err := os.Remove(filepath.Join(issuesDir(r.root), id+".md")); err != nil && !os.IsNotExist(err) {
				return types.NewError(types.ErrIoError, "store.Migrate", id, err)
			}
		}

		priv, err := config.LoadPrivate(r.root)
		if err != nil {
			return err
		}
		priv.SetHashIDs(targetScheme == types.SchemeHashed)
		if err := priv.SavePrivate(r.root); err != nil {
			return err
		}
		r.scheme = targetScheme
		return nil
	})
	return reports, err
}

// Repair scans every issue for dangling depends_on references (targets
// that do not exist) and, unless dryRun, removes them and rewrites the
// affected issues. Per spec.md §9's Open Question resolution, repair
// only acts when explicitly requested; this call IS that explicit
// request (the Repository never repairs implicitly on open() or list()).
func (r *Repository) Repair(dryRun bool) ([]string, error) {
	var reports []string
	err := r.withLock("repair", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}

		affected := make(map[string]*types.Issue)
		ids := make([]string, 0, len(issues))
		for id := range issues {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			iss := issues[id]
			for target := range iss.DependsOn {
				if _, ok := issues[target]; !ok {
					reports = append(reports, fmt.Sprintf("%s depends_on missing target %s", id, target))
					affected[id] = iss
				}
			}
		}
		if dryRun || len(affected) == 0 {
			return nil
		}

		st, err := newStaging(r.root)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for id, iss := range affected {
			clone := iss.Clone()
			for target := range clone.DependsOn {
				if _, ok := issues[target]; !ok {
					delete(clone.DependsOn, target)
				}
			}
			clone.UpdatedAt = now
			if err := st.write(id, clone); err != nil {
				st.abort()
				return err
			}
		}
		return st.commit(issuesDir(r.root))
	})
	return reports, err
}
