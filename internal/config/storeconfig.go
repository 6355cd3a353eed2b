// Package config loads and persists the two store-contract configuration
// files from spec.md §3/§6: config.yaml (issue-prefix) and
// config-minibeads.yaml (mb-hash-ids, mb-no-cmd-logging). Both round-trip
// as map[string]interface{} so unrecognized keys survive a rewrite
// untouched, grounded on the teacher's GetAllConfig/SetIssuePrefix
// read-modify-write pattern.
package config

import (
	"os"
	"path/filepath"

	"github.com/rrnewton/minibeads/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	FileName        = "config.yaml"
	PrivateFileName = "config-minibeads.yaml"
	KeyIssuePrefix  = "issue-prefix"
	KeyHashIDs      = "mb-hash-ids"
	KeyNoCmdLogging = "mb-no-cmd-logging"
)

// Doc is a loaded config file: its recognized fields plus every other key
// preserved verbatim for rewrite.
type Doc struct {
	raw map[string]interface{}
}

func loadDoc(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Doc{raw: map[string]interface{}{}}, nil
		}
		return nil, types.NewError(types.ErrIoError, "config.loadDoc", "", err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, types.NewError(types.ErrConfigMalformed, "config.loadDoc", "", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return &Doc{raw: raw}, nil
}

func (d *Doc) save(path string) error {
	data, err := yaml.Marshal(d.raw)
	if err != nil {
		return types.NewError(types.ErrIoError, "config.save", "", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.NewError(types.ErrIoError, "config.save", "", err)
	}
	return nil
}

func (d *Doc) getString(key string) (string, bool) {
	v, ok := d.raw[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (d *Doc) getBool(key string, def bool) bool {
	v, ok := d.raw[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (d *Doc) set(key string, value interface{}) {
	d.raw[key] = value
}

// LoadPublic loads config.yaml from the store root directory.
func LoadPublic(root string) (*Doc, error) {
	return loadDoc(filepath.Join(root, FileName))
}

// LoadPrivate loads config-minibeads.yaml from the store root directory.
func LoadPrivate(root string) (*Doc, error) {
	return loadDoc(filepath.Join(root, PrivateFileName))
}

// IssuePrefix returns the configured issue-prefix, or "" if unset.
func (d *Doc) IssuePrefix() (string, bool) { return d.getString(KeyIssuePrefix) }

// SetIssuePrefix sets issue-prefix, preserving every other key.
func (d *Doc) SetIssuePrefix(prefix string) { d.set(KeyIssuePrefix, prefix) }

// SavePublic writes config.yaml back to root.
func (d *Doc) SavePublic(root string) error { return d.save(filepath.Join(root, FileName)) }

// HashIDs returns mb-hash-ids, defaulting to false (sequential scheme).
func (d *Doc) HashIDs() bool { return d.getBool(KeyHashIDs, false) }

// SetHashIDs sets mb-hash-ids, preserving every other key.
func (d *Doc) SetHashIDs(v bool) { d.set(KeyHashIDs, v) }

// NoCmdLogging returns mb-no-cmd-logging, defaulting to false.
func (d *Doc) NoCmdLogging() bool { return d.getBool(KeyNoCmdLogging, false) }

// SavePrivate writes config-minibeads.yaml back to root.
func (d *Doc) SavePrivate(root string) error { return d.save(filepath.Join(root, PrivateFileName)) }
