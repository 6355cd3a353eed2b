// Package codec implements the Frontmatter Codec (spec.md §4.2): pure,
// I/O-free serialization and parsing of one issue file (YAML frontmatter
// plus sectioned Markdown body).
package codec

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rrnewton/minibeads/internal/types"
	"gopkg.in/yaml.v3"
)

// canonical section headers, in emission order.
const (
	sectionDescription = "Description"
	sectionDesign      = "Design"
	sectionAcceptance  = "Acceptance Criteria"
	sectionNotes       = "Notes"
)

var canonicalSections = map[string]bool{
	sectionDescription: true,
	sectionDesign:      true,
	sectionAcceptance:  true,
	sectionNotes:       true,
}

// renderFrontmatter is the write-side shape: canonical field order, the
// canonical depends_on mapping shape, omitted-if-empty everywhere the
// spec allows it. Kept distinct from parseFrontmatter (below) so decode
// can stay tolerant of legacy shapes without the encoder ever emitting
// them, mirroring the corpus's frontMatter/renderFrontMatter split.
type renderFrontmatter struct {
	Title       string            `yaml:"title"`
	Status      string            `yaml:"status"`
	Priority    int               `yaml:"priority"`
	IssueType   string            `yaml:"issue_type"`
	Assignee    string            `yaml:"assignee,omitempty"`
	Labels      []string          `yaml:"labels,omitempty"`
	DependsOn   map[string]string `yaml:"depends_on,omitempty"`
	ExternalRef string            `yaml:"external_ref,omitempty"`
	CreatedAt   string            `yaml:"created_at"`
	UpdatedAt   string            `yaml:"updated_at"`
	ClosedAt    string            `yaml:"closed_at,omitempty"`

	// Extra re-emits unrecognized keys preserved by Decode.
	Extra map[string]interface{} `yaml:",inline"`
}

// parseFrontmatter is the read-side shape. DependsOn is read tolerantly:
// either the canonical id->kind mapping, or the deprecated object shape
// (id -> {type: kind}), by keeping it as a raw yaml.Node that
// parseDependsOn resolves.
type parseFrontmatter struct {
	Title       string    `yaml:"title"`
	Status      string    `yaml:"status"`
	Priority    int       `yaml:"priority"`
	IssueType   string    `yaml:"issue_type"`
	Assignee    string    `yaml:"assignee"`
	Labels      []string  `yaml:"labels"`
	DependsOn   yaml.Node `yaml:"depends_on"`
	ExternalRef string    `yaml:"external_ref"`
	CreatedAt   string    `yaml:"created_at"`
	UpdatedAt   string    `yaml:"updated_at"`
	ClosedAt    string    `yaml:"closed_at"`
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

var headerLineRE = regexp.MustCompile(`^(#{1,6})(\s.*)?$`)

// Sanitize demotes any H1-H5 Markdown header line in body by one level.
// An H6 line fails with HeaderDepthExceeded.
func Sanitize(body string) (string, error) {
	if body == "" {
		return body, nil
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		m := headerLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		hashes := m[1]
		if len(hashes) >= 6 {
			return "", types.NewError(types.ErrHeaderDepthExceeded, "codec.Sanitize", "", fmt.Errorf("line %d has an H6 header", i+1))
		}
		lines[i] = "#" + line
	}
	return strings.Join(lines, "\n"), nil
}

// Encode serializes iss into the canonical on-disk form.
func Encode(iss *types.Issue) ([]byte, error) {
	var buf bytes.Buffer

	fm := renderFrontmatter{
		Title:     iss.Title,
		Status:    string(iss.Status),
		Priority:  iss.Priority,
		IssueType: string(iss.IssueType),
		Assignee:  iss.Assignee,
		Labels:    sortedLabels(iss.Labels),
		CreatedAt: iss.CreatedAt.Format(timeLayout),
		UpdatedAt: iss.UpdatedAt.Format(timeLayout),
		Extra:     iss.Extra,
	}
	if iss.ExternalRef != nil {
		fm.ExternalRef = *iss.ExternalRef
	}
	if iss.ClosedAt != nil {
		fm.ClosedAt = iss.ClosedAt.Format(timeLayout)
	}
	if len(iss.DependsOn) > 0 {
		fm.DependsOn = make(map[string]string, len(iss.DependsOn))
		for target, kind := range iss.DependsOn {
			fm.DependsOn[target] = string(kind)
		}
	}

	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&fm); err != nil {
		return nil, types.NewError(types.ErrIoError, "codec.Encode", iss.ID, err)
	}
	_ = enc.Close()
	buf.WriteString("---\n")

	writeSection(&buf, sectionDescription, iss.Description, true)
	writeSection(&buf, sectionDesign, iss.Design, false)
	writeSection(&buf, sectionAcceptance, iss.Acceptance, false)
	writeSection(&buf, sectionNotes, iss.Notes, false)

	return buf.Bytes(), nil
}

func sortedLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := append([]string(nil), labels...)
	sort.Strings(out)
	return out
}

func writeSection(buf *bytes.Buffer, name, content string, always bool) {
	if content == "" && !always {
		return
	}
	buf.WriteString("\n# ")
	buf.WriteString(name)
	buf.WriteString("\n\n")
	buf.WriteString(content)
	buf.WriteString("\n")
}

// Decode parses on-disk bytes into an Issue. id is the file stem, used
// to populate Issue.ID directly (the frontmatter carries no id field of
// its own; it is implied by the filename per spec.md §4.4 invariant P1).
// warn receives any UnexpectedHeader warnings encountered.
func Decode(id string, data []byte, warn func(types.Warning)) (*types.Issue, error) {
	parts := bytes.SplitN(data, []byte("---\n"), 3)
	if len(parts) < 3 {
		return nil, types.NewError(types.ErrIoError, "codec.Decode", id, fmt.Errorf("missing frontmatter delimiters"))
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(parts[1], &raw); err != nil {
		return nil, types.NewError(types.ErrConfigMalformed, "codec.Decode", id, err)
	}
	var fm parseFrontmatter
	if err := yaml.Unmarshal(parts[1], &fm); err != nil {
		return nil, types.NewError(types.ErrConfigMalformed, "codec.Decode", id, err)
	}

	iss := &types.Issue{
		ID:        id,
		Title:     fm.Title,
		Status:    types.Status(fm.Status),
		Priority:  fm.Priority,
		IssueType: types.IssueType(fm.IssueType),
		Assignee:  fm.Assignee,
		Labels:    fm.Labels,
	}
	if fm.ExternalRef != "" {
		ref := fm.ExternalRef
		iss.ExternalRef = &ref
	}

	if t, err := time.Parse(timeLayout, fm.CreatedAt); err == nil {
		iss.CreatedAt = t
	} else if fm.CreatedAt != "" {
		return nil, types.NewError(types.ErrConfigMalformed, "codec.Decode", id, fmt.Errorf("bad created_at: %w", err))
	}
	if t, err := time.Parse(timeLayout, fm.UpdatedAt); err == nil {
		iss.UpdatedAt = t
	} else if fm.UpdatedAt != "" {
		return nil, types.NewError(types.ErrConfigMalformed, "codec.Decode", id, fmt.Errorf("bad updated_at: %w", err))
	}
	if fm.ClosedAt != "" {
		t, err := time.Parse(timeLayout, fm.ClosedAt)
		if err != nil {
			return nil, types.NewError(types.ErrConfigMalformed, "codec.Decode", id, fmt.Errorf("bad closed_at: %w", err))
		}
		iss.ClosedAt = &t
	}

	deps, err := parseDependsOn(&fm.DependsOn)
	if err != nil {
		return nil, types.NewError(types.ErrConfigMalformed, "codec.Decode", id, err)
	}
	iss.DependsOn = deps

	iss.Extra = extraKeys(raw)

	sections, err := parseSections(string(parts[2]), id, warn)
	if err != nil {
		return nil, err
	}
	iss.Description = sections[sectionDescription]
	iss.Design = sections[sectionDesign]
	iss.Acceptance = sections[sectionAcceptance]
	iss.Notes = sections[sectionNotes]

	return iss, nil
}

var knownFrontmatterKeys = map[string]bool{
	"title": true, "status": true, "priority": true, "issue_type": true,
	"assignee": true, "labels": true, "depends_on": true,
	"external_ref": true, "created_at": true, "updated_at": true, "closed_at": true,
}

func extraKeys(raw map[string]interface{}) map[string]interface{} {
	var extra map[string]interface{}
	for k, v := range raw {
		if knownFrontmatterKeys[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]interface{})
		}
		extra[k] = v
	}
	return extra
}

// parseDependsOn accepts both the canonical mapping (id -> kind string)
// and the deprecated object shape (id -> {type: kind}), per spec.md §6.
func parseDependsOn(node *yaml.Node) (map[string]types.DependencyKind, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("depends_on: expected a mapping")
	}
	out := make(map[string]types.DependencyKind)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		key := keyNode.Value

		switch valNode.Kind {
		case yaml.ScalarNode:
			out[key] = types.DependencyKind(valNode.Value)
		case yaml.MappingNode:
			// deprecated shape: { type: kind, ... }
			for j := 0; j+1 < len(valNode.Content); j += 2 {
				if valNode.Content[j].Value == "type" {
					out[key] = types.DependencyKind(valNode.Content[j+1].Value)
				}
			}
		default:
			return nil, fmt.Errorf("depends_on[%s]: unsupported shape", key)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseSections(body, id string, warn func(types.Warning)) (map[string]string, error) {
	result := map[string]string{}
	lines := strings.Split(body, "\n")

	var current string
	var buf strings.Builder
	flush := func() {
		if current == "" {
			return
		}
		content := strings.TrimSpace(buf.String())
		if existing, ok := result[current]; ok && existing != "" && content != "" {
			result[current] = existing + "\n\n" + content
		} else if content != "" || !ok {
			result[current] = content
		}
		buf.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			flush()
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			if !canonicalSections[name] {
				if warn != nil {
					warn(types.Warning{
						Kind:    types.WarnUnexpectedHeader,
						Op:      "codec.Decode",
						ID:      id,
						Message: fmt.Sprintf("unexpected H1 header %q folded into Notes", name),
					})
				}
				current = sectionNotes
			} else {
				current = name
			}
			continue
		}
		if current == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
	}
	flush()
	return result, nil
}
