// Package types defines the domain model shared across the store: issues,
// their identifiers, dependency kinds, and the small closed enumerations
// the core API uses instead of free-form strings.
package types

import "time"

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// IssueType categorizes an issue.
type IssueType string

const (
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeTask    IssueType = "task"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
)

// DependencyKind is the relationship an issue has with a dependency target.
// Only DepBlocks contributes to the blocking set.
type DependencyKind string

const (
	DepBlocks         DependencyKind = "blocks"
	DepRelated        DependencyKind = "related"
	DepParentChild    DependencyKind = "parent-child"
	DepDiscoveredFrom DependencyKind = "discovered-from"
)

// ValidDependencyKinds is the closed set of recognized dependency kinds.
var ValidDependencyKinds = map[DependencyKind]bool{
	DepBlocks:         true,
	DepRelated:        true,
	DepParentChild:    true,
	DepDiscoveredFrom: true,
}

// ValidationMode controls how non-fatal warnings are surfaced.
type ValidationMode string

const (
	ValidationSilent ValidationMode = "silent"
	ValidationWarn   ValidationMode = "warn"
	ValidationError  ValidationMode = "error"
)

// ReadySort orders the result of the ready() query.
type ReadySort string

const (
	SortHybrid   ReadySort = "hybrid"
	SortPriority ReadySort = "priority"
	SortOldest   ReadySort = "oldest"
)

// MigrationDirection names the target scheme for a migrate rewrite.
type MigrationDirection string

const (
	ToSequential MigrationDirection = "to_sequential"
	ToHashed     MigrationDirection = "to_hashed"
)

// TailScheme names the two disjoint id-tail variants.
type TailScheme string

const (
	SchemeSequential TailScheme = "sequential"
	SchemeHashed     TailScheme = "hashed"
)

// IssueID is a parsed, totally-unique identifier: a store-wide prefix and a
// per-issue tail. Exactly one of SeqTail/HashTail is meaningful, selected by
// Scheme; this mirrors the sum-type IdTail from the design notes even though
// Go has no native sum types.
type IssueID struct {
	Prefix   string
	Scheme   TailScheme
	SeqTail  uint64 // valid iff Scheme == SchemeSequential
	HashTail string // valid iff Scheme == SchemeHashed, base-36, length 3..8
}

// String renders the canonical on-wire form "<prefix>-<tail>".
func (id IssueID) String() string {
	switch id.Scheme {
	case SchemeHashed:
		return id.Prefix + "-" + id.HashTail
	default:
		return id.Prefix + "-" + formatUint(id.SeqTail)
	}
}

func formatUint(n uint64) string {
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

// Dependency is one outgoing edge: Target depends on the kind of relation.
type Dependency struct {
	Target string         `json:"id"`
	Kind   DependencyKind `json:"type"`
}

// Issue is the unit of storage, matching spec.md §3's data model.
type Issue struct {
	ID          string
	Title       string
	Status      Status
	Priority    int // 0..=4, 0 = highest
	IssueType   IssueType
	Assignee    string
	Labels      []string
	ExternalRef *string

	// DependsOn maps target issue id -> relationship kind. Keys unique.
	DependsOn map[string]DependencyKind

	Description string
	Design      string
	Acceptance  string
	Notes       string

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time

	// Extra carries unrecognized frontmatter keys verbatim for round-trip.
	Extra map[string]interface{}
}

// HasDependency reports whether the issue already depends on target.
func (iss *Issue) HasDependency(target string) bool {
	if iss.DependsOn == nil {
		return false
	}
	_, ok := iss.DependsOn[target]
	return ok
}

// Clone returns a deep-enough copy safe for mutation independent of iss.
func (iss *Issue) Clone() *Issue {
	out := *iss
	if iss.Labels != nil {
		out.Labels = append([]string(nil), iss.Labels...)
	}
	if iss.DependsOn != nil {
		out.DependsOn = make(map[string]DependencyKind, len(iss.DependsOn))
		for k, v := range iss.DependsOn {
			out.DependsOn[k] = v
		}
	}
	if iss.ExternalRef != nil {
		ref := *iss.ExternalRef
		out.ExternalRef = &ref
	}
	if iss.ClosedAt != nil {
		t := *iss.ClosedAt
		out.ClosedAt = &t
	}
	if iss.Extra != nil {
		out.Extra = make(map[string]interface{}, len(iss.Extra))
		for k, v := range iss.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// DependentRef is one entry of a derived dependents() result: the id of an
// issue that depends on the subject, and the relationship kind it uses.
type DependentRef struct {
	ID   string
	Kind DependencyKind
}

// Draft is the input to Repository.create: everything the caller supplies
// before the allocator and timestamp stamping run.
type Draft struct {
	Title       string
	Priority    int
	IssueType   IssueType
	Assignee    string
	Labels      []string
	ExternalRef *string
	DependsOn   map[string]DependencyKind
	Description string
	Design      string
	Acceptance  string
	Notes       string
}

// Patch is the input to Repository.update: only non-nil fields overwrite.
type Patch struct {
	Title       *string
	Status      *Status
	Priority    *int
	IssueType   *IssueType
	Assignee    *string
	Labels      *[]string
	ExternalRef *string
	Description *string
	Design      *string
	Acceptance  *string
	Notes       *string
}

// Filter composes as an intersection of the supplied fields; nil/empty
// fields mean "unconstrained" along that axis.
type Filter struct {
	Status      []Status
	Priority    []int
	IssueType   []IssueType
	Assignee    *string  // "" means assignee == "" (no assignee); nil means any
	Labels      []string // AND: issue must have all
	LabelsAny   []string // OR: issue must have at least one
	IDs         []string
	TitleSubstr string
	Limit       int
}

// Stats is the result of the Query Engine's stats() operation.
type Stats struct {
	CountByStatus map[Status]int
	ReadyCount    int
	MeanLeadTime  time.Duration // over closed issues: closed_at - created_at
	ClosedCount   int
}

// BlockedIssue annotates an issue with the ids blocking it.
type BlockedIssue struct {
	Issue     *Issue
	BlockedBy []string
}
