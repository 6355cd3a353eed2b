// Scripted end-to-end coverage over the public Store API, grounded on
// the teacher's direct (but unwired in the retrieved file set)
// dependency on rsc.io/script: each testdata/*.txt file drives init,
// create, close, and sync as a black-box sequence of operations, the
// way cmd/go's own script tests exercise the go command.
package minibeads_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"

	"github.com/rrnewton/minibeads"
	"github.com/rrnewton/minibeads/internal/types"
)

var (
	storesMu sync.Mutex
	stores   = map[string]*minibeads.Store{}
)

func storeFor(dir string) *minibeads.Store {
	storesMu.Lock()
	defer storesMu.Unlock()
	return stores[dir]
}

func setStore(dir string, st *minibeads.Store) {
	storesMu.Lock()
	defer storesMu.Unlock()
	stores[dir] = st
}

func mbCmds() map[string]script.Cmd {
	cmds := script.DefaultCmds()

	cmds["mbinit"] = script.Command(
		script.CmdUsage{Summary: "initialize a minibeads store in the current directory", Args: "prefix [hash]"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("usage: mbinit prefix [hash]")
			}
			hashIDs := len(args) > 1 && args[1] == "hash"
			dir := s.Getwd()
			if err := minibeads.Init(dir, args[0], hashIDs); err != nil {
				return nil, err
			}
			return nil, nil
		},
	)

	cmds["mbopen"] = script.Command(
		script.CmdUsage{Summary: "open the minibeads store in the current directory"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			dir := s.Getwd()
			st, err := minibeads.Open(dir)
			if err != nil {
				return nil, err
			}
			setStore(dir, st)
			return nil, nil
		},
	)

	cmds["mbcreate"] = script.Command(
		script.CmdUsage{Summary: "create an issue, printing its new id", Args: "title [depends-on-id]"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("usage: mbcreate title [depends-on-id]")
			}
			st := storeFor(s.Getwd())
			if st == nil {
				return nil, fmt.Errorf("store not open; run mbopen first")
			}
			draft := types.Draft{Title: args[0], IssueType: types.TypeTask}
			if len(args) > 1 {
				draft.DependsOn = map[string]types.DependencyKind{args[1]: types.DepBlocks}
			}
			id, err := st.Create(draft)
			if err != nil {
				return nil, err
			}
			return func(*script.State) (stdout, stderr string, err error) {
				return id + "\n", "", nil
			}, nil
		},
	)

	cmds["mbclose"] = script.Command(
		script.CmdUsage{Summary: "close an issue", Args: "id"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("usage: mbclose id")
			}
			st := storeFor(s.Getwd())
			if st == nil {
				return nil, fmt.Errorf("store not open; run mbopen first")
			}
			return nil, st.Close(args[0], "")
		},
	)

	cmds["mbready"] = script.Command(
		script.CmdUsage{Summary: "print the ready ids, one per line"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			st := storeFor(s.Getwd())
			if st == nil {
				return nil, fmt.Errorf("store not open; run mbopen first")
			}
			snap, err := st.Snapshot()
			if err != nil {
				return nil, err
			}
			var out string
			for _, iss := range snap.Ready(types.SortHybrid) {
				out += iss.ID + "\n"
			}
			return func(*script.State) (stdout, stderr string, err error) {
				return out, "", nil
			}, nil
		},
	)

	cmds["mbupdate"] = script.Command(
		script.CmdUsage{Summary: "set an issue's design field", Args: "id design"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("usage: mbupdate id design")
			}
			st := storeFor(s.Getwd())
			if st == nil {
				return nil, fmt.Errorf("store not open; run mbopen first")
			}
			design := args[1]
			_, err := st.Update(args[0], types.Patch{Design: &design})
			return nil, err
		},
	)

	cmds["mbshow"] = script.Command(
		script.CmdUsage{Summary: "print an issue's title and design field", Args: "id"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("usage: mbshow id")
			}
			st := storeFor(s.Getwd())
			if st == nil {
				return nil, fmt.Errorf("store not open; run mbopen first")
			}
			iss, _, err := st.Show(args[0])
			if err != nil {
				return nil, err
			}
			out := iss.Title + "\n" + iss.Design + "\n"
			return func(*script.State) (stdout, stderr string, err error) {
				return out, "", nil
			}, nil
		},
	)

	cmds["mbsync"] = script.Command(
		script.CmdUsage{Summary: "sync the store against a mirror file", Args: "mirror-path"},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("usage: mbsync mirror-path")
			}
			st := storeFor(s.Getwd())
			if st == nil {
				return nil, fmt.Errorf("store not open; run mbopen first")
			}
			_, err := st.Sync(s.Path(args[0]))
			return nil, err
		},
	)

	return cmds
}

func TestScripts(t *testing.T) {
	ctx := context.Background()
	engine := &script.Engine{
		Cmds:  mbCmds(),
		Conds: script.DefaultConds(),
	}
	scripttest.Test(t, ctx, engine, nil, "testdata/*.txt")
}
