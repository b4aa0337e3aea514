package sanitize

import (
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gonkalabs/piiscan/patterns"
)

// NameTable is an immutable set of known first and last names. Lookups are
// case-insensitive. A NameTable is safe for concurrent use.
type NameTable struct {
	first map[string]struct{}
	last  map[string]struct{}
}

type nameFile struct {
	FirstNames []string `yaml:"first_names"`
	LastNames  []string `yaml:"last_names"`
}

// ParseNameTable decodes names.yaml.
func ParseNameTable(data []byte) (*NameTable, error) {
	var nf nameFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return nil, fmt.Errorf("parsing name YAML: %w", err)
	}
	return NewNameTable(nf.FirstNames, nf.LastNames), nil
}

// NewNameTable builds a table from the given lists.
func NewNameTable(first, last []string) *NameTable {
	return &NameTable{first: toSet(first), last: toSet(last)}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

var (
	defaultNamesOnce sync.Once
	defaultNames     *NameTable
)

// DefaultNameTable returns the embedded name lists, parsed on first use and
// shared afterwards.
func DefaultNameTable() *NameTable {
	defaultNamesOnce.Do(func() {
		t, err := ParseNameTable(patterns.NamesYAML())
		if err != nil {
			panic(fmt.Sprintf("loading embedded name lists: %v", err))
		}
		defaultNames = t
	})
	return defaultNames
}

func (t *NameTable) IsFirst(s string) bool {
	_, ok := t.first[strings.ToLower(s)]
	return ok
}

func (t *NameTable) IsLast(s string) bool {
	_, ok := t.last[strings.ToLower(s)]
	return ok
}

// Sizes returns the number of first and last names.
func (t *NameTable) Sizes() (first, last int) {
	return len(t.first), len(t.last)
}
