// Package store implements the Repository and its composed Query Engine
// and Rewriter (spec.md §4.4, §4.6, §4.7): the filesystem-backed issue
// store that owns all I/O and invariants. Every operation follows the
// teacher's "open lock -> load -> mutate -> write -> release lock" shape
// from rrnewton-beads/internal/storage/markdown/storage.go, generalized
// to the two id schemes and the typed error/warning model.
package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rrnewton/minibeads/internal/codec"
	"github.com/rrnewton/minibeads/internal/config"
	"github.com/rrnewton/minibeads/internal/lock"
	"github.com/rrnewton/minibeads/internal/types"
)

const issuesDirName = "issues"

// Options configures how a Repository is opened. The zero value uses
// ValidationWarn with no WarnSink, so warnings are dropped, and logs to
// slog.Default().
type Options struct {
	Validation types.ValidationMode
	WarnSink   types.WarningSink
	Log        *slog.Logger
}

// Repository is the sole custodian of one store's on-disk state. It
// holds no cached issue data between calls: every operation re-reads
// whatever is on disk under the lock, per spec.md §9's "Global state:
// none".
type Repository struct {
	root       string
	prefix     string
	scheme     types.TailScheme
	validation types.ValidationMode
	warn       types.WarningSink
	log        *slog.Logger
}

func issuesDir(root string) string { return filepath.Join(root, issuesDirName) }

// Init creates a brand-new store: config.yaml (issue-prefix), a default
// config-minibeads.yaml (mb-hash-ids), and an empty issues/ directory.
// Unlike open(), init never infers a prefix from existing files (there
// are none yet), so prefix must be supplied.
func Init(root, prefix string, hashIDs bool) error {
	publicPath := filepath.Join(root, config.FileName)
	if _, err := os.Stat(publicPath); err == nil {
		return types.NewError(types.ErrAlreadyInitialized, "store.Init", "", nil)
	}

	if err := os.MkdirAll(issuesDir(root), 0755); err != nil {
		return types.NewError(types.ErrIoError, "store.Init", "", err)
	}

	pub, err := config.LoadPublic(root)
	if err != nil {
		return err
	}
	pub.SetIssuePrefix(prefix)
	if err := pub.SavePublic(root); err != nil {
		return err
	}

	priv, err := config.LoadPrivate(root)
	if err != nil {
		return err
	}
	priv.SetHashIDs(hashIDs)
	if err := priv.SavePrivate(root); err != nil {
		return err
	}
	return nil
}

// Open loads an existing store's configuration, reconciling a missing
// issue-prefix by inference from file stems (emitting PrefixInferred)
// and creating config-minibeads.yaml with defaults if absent.
func Open(root string, opts Options) (*Repository, error) {
	if opts.Validation == "" {
		opts.Validation = types.ValidationWarn
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	publicPath := filepath.Join(root, config.FileName)
	if _, err := os.Stat(publicPath); err != nil {
		return nil, types.NewError(types.ErrNotInitialized, "store.Open", "", nil)
	}

	pub, err := config.LoadPublic(root)
	if err != nil {
		return nil, err
	}

	prefix, ok := pub.IssuePrefix()
	if !ok || prefix == "" {
		inferred, ierr := inferPrefix(issuesDir(root))
		if ierr != nil {
			return nil, ierr
		}
		prefix = inferred
		pub.SetIssuePrefix(prefix)
		if err := pub.SavePublic(root); err != nil {
			return nil, err
		}
		if err := types.Emit(opts.Validation, opts.WarnSink, types.Warning{
			Kind:    types.WarnPrefixInferred,
			Op:      "store.Open",
			Message: "issue-prefix inferred from existing file stems: " + prefix,
		}); err != nil {
			return nil, err
		}
	}

	priv, err := config.LoadPrivate(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(root, config.PrivateFileName)); err != nil {
		if err := priv.SavePrivate(root); err != nil {
			return nil, err
		}
	}

	scheme := types.SchemeSequential
	if priv.HashIDs() {
		scheme = types.SchemeHashed
	}

	sweepStaleTmp(issuesDir(root), opts.Log)

	return &Repository{
		root:       root,
		prefix:     prefix,
		scheme:     scheme,
		validation: opts.Validation,
		warn:       opts.WarnSink,
		log:        opts.Log,
	}, nil
}

// sweepStaleTmp best-effort removes ".tmp-*" files left behind by a
// writeIssue that crashed between its WriteFile and its Rename, per
// spec.md §5's "a complete set of .tmp-* files (cleaned on next
// open)". Failures are logged and otherwise ignored: a leftover temp
// file is harmless clutter, not a correctness problem worth failing
// Open over.
func sweepStaleTmp(dir string, log *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && log != nil {
			log.Warn("failed to sweep stale tmp file", "path", path, "error", err)
		}
	}
}

// inferPrefix derives the common prefix from every "<prefix>-<tail>.md"
// file stem under dir. Fails PrefixAmbiguous if stems disagree, or if
// there are none to infer from.
func inferPrefix(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", types.NewError(types.ErrPrefixAmbiguous, "store.inferPrefix", "", err)
	}
	var prefix string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".md")
		idx := strings.LastIndex(stem, "-")
		if idx <= 0 {
			continue
		}
		p := stem[:idx]
		if prefix == "" {
			prefix = p
		} else if prefix != p {
			return "", types.NewError(types.ErrPrefixAmbiguous, "store.inferPrefix", "", nil)
		}
	}
	if prefix == "" {
		return "", types.NewError(types.ErrPrefixAmbiguous, "store.inferPrefix", "", nil)
	}
	return prefix, nil
}

// withLock acquires the store lock, runs fn, and releases it regardless
// of outcome -- the single suspension point per spec.md §5.
func (r *Repository) withLock(op string, fn func() error) error {
	l, err := lock.Acquire(r.root, r.log)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			r.log.Warn("lock release failed", "op", op, "error", rerr)
		}
	}()
	return fn()
}

// loadAll reads and decodes every issue file in the store.
func (r *Repository) loadAll() (map[string]*types.Issue, error) {
	dir := issuesDir(r.root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*types.Issue{}, nil
		}
		return nil, types.NewError(types.ErrIoError, "store.loadAll", "", err)
	}

	issues := make(map[string]*types.Issue, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		id := strings.TrimSuffix(name, ".md")
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, types.NewError(types.ErrIoError, "store.loadAll", id, err)
		}
		var warnErr error
		iss, err := codec.Decode(id, data, func(w types.Warning) {
			if warnErr == nil {
				warnErr = types.Emit(r.validation, r.warn, w)
			}
		})
		if err != nil {
			return nil, err
		}
		if warnErr != nil {
			return nil, warnErr
		}
		issues[id] = iss
	}
	return issues, nil
}

// writeIssue performs the tmp+rename single-file atomicity from
// spec.md §4.4, using a uuid-suffixed temp name to make concurrent
// writers' temp files collision-free even before the lock is held.
func (r *Repository) writeIssue(iss *types.Issue) error {
	data, err := codec.Encode(iss)
	if err != nil {
		return err
	}
	dir := issuesDir(r.root)
	final := filepath.Join(dir, iss.ID+".md")
	tmp := filepath.Join(dir, ".tmp-"+uuid.New().String()+"-"+iss.ID+".md")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return types.NewError(types.ErrIoError, "store.writeIssue", iss.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return types.NewError(types.ErrIoError, "store.writeIssue", iss.ID, err)
	}
	return nil
}

// resolveID expands a bare short form ("42" or a bare hashed tail) to
// the store's full "<prefix>-<tail>" id. Ids already bearing the
// store's prefix pass through unchanged.
func (r *Repository) resolveID(input string) string {
	if strings.HasPrefix(input, r.prefix+"-") {
		return input
	}
	return r.prefix + "-" + input
}
