package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rrnewton/minibeads/internal/codec"
	"github.com/rrnewton/minibeads/internal/idalloc"
	"github.com/rrnewton/minibeads/internal/types"
)

// ImportIssue writes iss verbatim (used by the Export/Import Codec and
// the Sync Applier, not by ordinary create/update) and sets the file's
// mtime to iss.UpdatedAt, per spec.md §4.8's "import sets file
// modification time to updated_at" and §4.9's "sets file mtime to the
// written updated_at to maintain authority".
func (r *Repository) ImportIssue(iss *types.Issue) error {
	return r.withLock("import", func() error {
		if err := r.writeIssue(iss); err != nil {
			return err
		}
		path := filepath.Join(issuesDir(r.root), iss.ID+".md")
		if err := os.Chtimes(path, iss.UpdatedAt, iss.UpdatedAt); err != nil {
			return types.NewError(types.ErrIoError, "store.ImportIssue", iss.ID, err)
		}
		return nil
	})
}

// FileModTime returns the on-disk mtime of one issue's file, the
// Markdown side's authoritative timestamp per spec.md §4.9.
func (r *Repository) FileModTime(id string) (time.Time, error) {
	id = r.resolveID(id)
	info, err := os.Stat(filepath.Join(issuesDir(r.root), id+".md"))
	if err != nil {
		return time.Time{}, types.NewError(types.ErrNotFound, "store.FileModTime", id, err)
	}
	return info.ModTime(), nil
}

// Create allocates an id, stamps timestamps, sanitizes body text, and
// writes the new issue file, per spec.md §4.4's create. Forward
// references in draft.DependsOn are warned (not fatal) unless
// ValidationMode is error.
func (r *Repository) Create(draft types.Draft) (string, error) {
	var newID string
	err := r.withLock("create", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}

		id, err := r.allocateID(issues)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		iss := &types.Issue{
			ID:          id,
			Title:       draft.Title,
			Status:      types.StatusOpen,
			Priority:    draft.Priority,
			IssueType:   draft.IssueType,
			Assignee:    draft.Assignee,
			Labels:      draft.Labels,
			ExternalRef: draft.ExternalRef,
			DependsOn:   draft.DependsOn,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.sanitizeBody(iss, draft.Description, draft.Design, draft.Acceptance, draft.Notes); err != nil {
			return err
		}

		for target := range iss.DependsOn {
			if target == id {
				return types.NewError(types.ErrSelfDependency, "store.Create", id, nil)
			}
			if _, ok := issues[target]; !ok {
				if err := types.Emit(r.validation, r.warn, types.Warning{
					Kind:    types.WarnForwardReference,
					Op:      "store.Create",
					ID:      id,
					Message: "depends_on target " + target + " does not exist yet",
				}); err != nil {
					return err
				}
			}
		}

		if err := r.writeIssue(iss); err != nil {
			return err
		}
		newID = id
		return nil
	})
	return newID, err
}

// allocateID picks a fresh id under the store's configured scheme.
func (r *Repository) allocateID(issues map[string]*types.Issue) (string, error) {
	switch r.scheme {
	case types.SchemeHashed:
		taken := make(map[string]bool, len(issues))
		for id, iss := range issues {
			taken[r.tailOf(id, iss)] = true
		}
		tail, err := idalloc.NextHashed(taken, nil)
		if err != nil {
			return "", err
		}
		return r.prefix + "-" + tail, nil
	default:
		taken := make(map[uint64]bool, len(issues))
		for id, iss := range issues {
			if n, ok := parseSeqTail(r.tailOf(id, iss)); ok {
				taken[n] = true
			}
		}
		n, err := idalloc.NextSequential(taken)
		if err != nil {
			return "", err
		}
		return r.prefix + "-" + formatSeq(n), nil
	}
}

func (r *Repository) tailOf(id string, _ *types.Issue) string {
	prefix := r.prefix + "-"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		return id[len(prefix):]
	}
	return id
}

func parseSeqTail(tail string) (uint64, bool) {
	if tail == "" {
		return 0, false
	}
	var n uint64
	for _, c := range tail {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	return n, true
}

func formatSeq(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// sanitizeBody runs the Frontmatter Codec's Sanitize over every supplied
// body field and assigns the results onto iss.
func (r *Repository) sanitizeBody(iss *types.Issue, description, design, acceptance, notes string) error {
	fields := []*string{&description, &design, &acceptance, &notes}
	for _, f := range fields {
		s, err := sanitize(*f)
		if err != nil {
			return err
		}
		*f = s
	}
	iss.Description = description
	iss.Design = design
	iss.Acceptance = acceptance
	iss.Notes = notes
	return nil
}

// Update applies a field-wise patch: only non-nil fields in patch
// overwrite the stored issue. Any supplied body text is re-sanitized.
func (r *Repository) Update(id string, patch types.Patch) (*types.Issue, error) {
	id = r.resolveID(id)
	var result *types.Issue
	err := r.withLock("update", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		iss, ok := issues[id]
		if !ok {
			return types.NewError(types.ErrNotFound, "store.Update", id, nil)
		}

		if patch.Title != nil {
			iss.Title = *patch.Title
		}
		if patch.Status != nil {
			iss.Status = *patch.Status
		}
		if patch.Priority != nil {
			iss.Priority = *patch.Priority
		}
		if patch.IssueType != nil {
			iss.IssueType = *patch.IssueType
		}
		if patch.Assignee != nil {
			iss.Assignee = *patch.Assignee
		}
		if patch.Labels != nil {
			iss.Labels = *patch.Labels
		}
		if patch.ExternalRef != nil {
			iss.ExternalRef = patch.ExternalRef
		}
		if patch.Description != nil {
			s, err := sanitize(*patch.Description)
			if err != nil {
				return err
			}
			iss.Description = s
		}
		if patch.Design != nil {
			s, err := sanitize(*patch.Design)
			if err != nil {
				return err
			}
			iss.Design = s
		}
		if patch.Acceptance != nil {
			s, err := sanitize(*patch.Acceptance)
			if err != nil {
				return err
			}
			iss.Acceptance = s
		}
		if patch.Notes != nil {
			s, err := sanitize(*patch.Notes)
			if err != nil {
				return err
			}
			iss.Notes = s
		}

		iss.UpdatedAt = time.Now().UTC()
		if err := r.writeIssue(iss); err != nil {
			return err
		}
		result = iss
		return nil
	})
	return result, err
}

// Close sets status=closed, stamps closed_at, and optionally appends
// reason to Notes.
func (r *Repository) Close(id, reason string) error {
	id = r.resolveID(id)
	return r.withLock("close", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		iss, ok := issues[id]
		if !ok {
			return types.NewError(types.ErrNotFound, "store.Close", id, nil)
		}
		if iss.Status == types.StatusClosed {
			return types.NewError(types.ErrAlreadyClosed, "store.Close", id, nil)
		}
		now := time.Now().UTC()
		iss.Status = types.StatusClosed
		iss.ClosedAt = &now
		appendNote(iss, reason)
		iss.UpdatedAt = now
		return r.writeIssue(iss)
	})
}

// Reopen sets status=open and clears closed_at.
func (r *Repository) Reopen(id, reason string) error {
	id = r.resolveID(id)
	return r.withLock("reopen", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		iss, ok := issues[id]
		if !ok {
			return types.NewError(types.ErrNotFound, "store.Reopen", id, nil)
		}
		if iss.Status != types.StatusClosed {
			return types.NewError(types.ErrNotClosed, "store.Reopen", id, nil)
		}
		iss.Status = types.StatusOpen
		iss.ClosedAt = nil
		appendNote(iss, reason)
		iss.UpdatedAt = time.Now().UTC()
		return r.writeIssue(iss)
	})
}

func appendNote(iss *types.Issue, reason string) {
	if reason == "" {
		return
	}
	if iss.Notes == "" {
		iss.Notes = reason
		return
	}
	iss.Notes = iss.Notes + "\n\n" + reason
}

// DepAdd records depends_on[src][dst] = kind.
func (r *Repository) DepAdd(src, dst string, kind types.DependencyKind) error {
	src = r.resolveID(src)
	dst = r.resolveID(dst)
	return r.withLock("dep_add", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		iss, ok := issues[src]
		if !ok {
			return types.NewError(types.ErrNotFound, "store.DepAdd", src, nil)
		}
		if src == dst {
			return types.NewError(types.ErrSelfDependency, "store.DepAdd", src, nil)
		}
		if iss.DependsOn == nil {
			iss.DependsOn = make(map[string]types.DependencyKind)
		}
		iss.DependsOn[dst] = kind
		if _, ok := issues[dst]; !ok {
			if err := types.Emit(r.validation, r.warn, types.Warning{
				Kind:    types.WarnForwardReference,
				Op:      "store.DepAdd",
				ID:      src,
				Message: "depends_on target " + dst + " does not exist yet",
			}); err != nil {
				return err
			}
		}
		iss.UpdatedAt = time.Now().UTC()
		return r.writeIssue(iss)
	})
}

// DepRemove removes depends_on[src][dst].
func (r *Repository) DepRemove(src, dst string) error {
	src = r.resolveID(src)
	dst = r.resolveID(dst)
	return r.withLock("dep_remove", func() error {
		issues, err := r.loadAll()
		if err != nil {
			return err
		}
		iss, ok := issues[src]
		if !ok {
			return types.NewError(types.ErrNotFound, "store.DepRemove", src, nil)
		}
		if !iss.HasDependency(dst) {
			return types.NewError(types.ErrDependencyAbsent, "store.DepRemove", src, nil)
		}
		delete(iss.DependsOn, dst)
		iss.UpdatedAt = time.Now().UTC()
		return r.writeIssue(iss)
	})
}

// Show returns one issue with its dependents populated.
func (r *Repository) Show(id string) (*types.Issue, []types.DependentRef, error) {
	id = r.resolveID(id)
	snap, err := r.Snapshot()
	if err != nil {
		return nil, nil, err
	}
	iss, ok := snap.Issues[id]
	if !ok {
		return nil, nil, types.NewError(types.ErrNotFound, "store.Show", id, nil)
	}
	return iss, snap.Index.Dependents(id), nil
}

// List returns issues matching filter, ordered per spec.md §4.6.
func (r *Repository) List(filter types.Filter) ([]*types.Issue, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.List(filter), nil
}

func sanitize(body string) (string, error) {
	return codec.Sanitize(body)
}
