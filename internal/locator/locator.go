// Package locator resolves dataset references to snapshot file paths.
//
// A reference names a dataset either by an explicit path or by an alias
// from a table configured at startup. Resolution does not touch the
// filesystem; ResolveExisting adds the existence check for callers that
// are about to read the file.
package locator

import (
	"os"
	"sort"

	"github.com/robert-malhotra/swiftserve/apierr"
)

// Reference names a dataset by alias or by explicit path. Path wins when
// both are set.
type Reference struct {
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
}

// String returns the path if set, else the alias.
func (r Reference) String() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Alias
}

// Table is an immutable alias to path mapping, safe for concurrent use.
type Table struct {
	aliases map[string]string
}

// NewTable copies aliases into a new Table.
func NewTable(aliases map[string]string) *Table {
	m := make(map[string]string, len(aliases))
	for k, v := range aliases {
		m[k] = v
	}
	return &Table{aliases: m}
}

// Resolve returns the path a reference points at. An explicit path is
// returned as-is, even if nothing exists there.
func (t *Table) Resolve(ref Reference) (string, error) {
	if ref.Path != "" {
		return ref.Path, nil
	}
	if t != nil && ref.Alias != "" {
		if p, ok := t.aliases[ref.Alias]; ok {
			return p, nil
		}
	}
	return "", apierr.NewDatasetNotFound(ref.Alias)
}

// ResolveExisting resolves ref and checks that the path exists.
func (t *Table) ResolveExisting(ref Reference) (string, error) {
	p, err := t.Resolve(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", apierr.NewDatasetPathInvalid(p, err)
	}
	return p, nil
}

// Aliases returns the configured alias names in sorted order.
func (t *Table) Aliases() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.aliases))
	for k := range t.aliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the path configured for alias.
func (t *Table) Lookup(alias string) (string, bool) {
	if t == nil {
		return "", false
	}
	p, ok := t.aliases[alias]
	return p, ok
}
