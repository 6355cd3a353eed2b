package depindex

import (
	"testing"

	"github.com/rrnewton/minibeads/internal/types"
)

func issue(id string, status types.Status, deps map[string]types.DependencyKind) *types.Issue {
	return &types.Issue{ID: id, Status: status, DependsOn: deps}
}

func TestDependentsAndBlocking(t *testing.T) {
	issues := map[string]*types.Issue{
		"a": issue("a", types.StatusOpen, nil),
		"b": issue("b", types.StatusOpen, map[string]types.DependencyKind{"a": types.DepBlocks}),
	}
	idx := Build(issues)

	deps := idx.Dependents("a")
	if len(deps) != 1 || deps[0].ID != "b" || deps[0].Kind != types.DepBlocks {
		t.Fatalf("Dependents(a) = %v", deps)
	}
	if !idx.IsBlocked("b") {
		t.Error("b should be blocked by open a")
	}
	if idx.IsBlocked("a") {
		t.Error("a should not be blocked")
	}
}

func TestBlockingIgnoresClosedAndNonBlocksKinds(t *testing.T) {
	issues := map[string]*types.Issue{
		"a": issue("a", types.StatusClosed, nil),
		"b": issue("b", types.StatusOpen, map[string]types.DependencyKind{"a": types.DepBlocks}),
		"c": issue("c", types.StatusOpen, nil),
		"d": issue("d", types.StatusOpen, map[string]types.DependencyKind{"c": types.DepRelated}),
	}
	idx := Build(issues)
	if idx.IsBlocked("b") {
		t.Error("b should not be blocked: its blocker is closed")
	}
	if idx.IsBlocked("d") {
		t.Error("d should not be blocked: related is not a blocking kind")
	}
}

func TestForwardReferenceIsNotABlocker(t *testing.T) {
	issues := map[string]*types.Issue{
		"b": issue("b", types.StatusOpen, map[string]types.DependencyKind{"missing": types.DepBlocks}),
	}
	idx := Build(issues)
	if idx.IsBlocked("b") {
		t.Error("forward reference to a nonexistent issue should not block")
	}
}

func TestCyclesDetectsSelfEdge(t *testing.T) {
	issues := map[string]*types.Issue{
		"a": issue("a", types.StatusOpen, map[string]types.DependencyKind{"a": types.DepBlocks}),
	}
	idx := Build(issues)
	cycles := idx.Cycles()
	if len(cycles) != 1 || len(cycles[0]) != 1 || cycles[0][0] != "a" {
		t.Fatalf("Cycles() = %v", cycles)
	}
}

func TestCyclesDetectsTwoCycle(t *testing.T) {
	issues := map[string]*types.Issue{
		"a": issue("a", types.StatusOpen, map[string]types.DependencyKind{"b": types.DepBlocks}),
		"b": issue("b", types.StatusOpen, map[string]types.DependencyKind{"a": types.DepBlocks}),
	}
	idx := Build(issues)
	cycles := idx.Cycles()
	if len(cycles) != 1 || len(cycles[0]) != 2 {
		t.Fatalf("Cycles() = %v", cycles)
	}
	if cycles[0][0] != "a" {
		t.Errorf("expected canonical rotation to start at lexicographically smallest id, got %v", cycles[0])
	}
}

func TestCyclesIgnoresNonBlocksEdges(t *testing.T) {
	issues := map[string]*types.Issue{
		"a": issue("a", types.StatusOpen, map[string]types.DependencyKind{"b": types.DepRelated}),
		"b": issue("b", types.StatusOpen, map[string]types.DependencyKind{"a": types.DepRelated}),
	}
	idx := Build(issues)
	if cycles := idx.Cycles(); len(cycles) != 0 {
		t.Fatalf("expected no cycles over non-blocks edges, got %v", cycles)
	}
}

func TestCyclesDetectsThreeCycle(t *testing.T) {
	issues := map[string]*types.Issue{
		"a": issue("a", types.StatusOpen, map[string]types.DependencyKind{"b": types.DepBlocks}),
		"b": issue("b", types.StatusOpen, map[string]types.DependencyKind{"c": types.DepBlocks}),
		"c": issue("c", types.StatusOpen, map[string]types.DependencyKind{"a": types.DepBlocks}),
	}
	idx := Build(issues)
	cycles := idx.Cycles()
	if len(cycles) != 1 || len(cycles[0]) != 3 {
		t.Fatalf("Cycles() = %v", cycles)
	}
}
