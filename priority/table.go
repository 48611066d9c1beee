package priority

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// prefixRule assigns a level to every entity whose name starts with prefix.
type prefixRule struct {
	prefix string
	level  Level
}

// Table is a read-only mapping from entity name to Level. Entities that are
// not listed resolve to Normal.
//
// Exact entries beat prefix rules; among prefix rules the longest match wins
// and, on equal length, the rule registered first.
type Table struct {
	exact    map[string]Level
	prefixes []prefixRule
}

// NewTable builds a Table from exact entity assignments.
func NewTable(levels map[string]Level) *Table {
	t := &Table{exact: make(map[string]Level, len(levels))}
	for name, l := range levels {
		t.exact[name] = l
	}
	return t
}

// WithPrefix returns a copy of t that additionally maps every entity whose
// name starts with prefix to level.
func (t *Table) WithPrefix(prefix string, level Level) *Table {
	c := &Table{
		exact:    t.exact,
		prefixes: append(append([]prefixRule(nil), t.prefixes...), prefixRule{prefix: prefix, level: level}),
	}
	return c
}

// Lookup returns the level assigned to entity and whether an explicit rule
// matched.
func (t *Table) Lookup(entity string) (Level, bool) {
	if t == nil {
		return Normal, false
	}
	if l, ok := t.exact[entity]; ok {
		return l, true
	}
	best, bestLen, found := Normal, -1, false
	for _, r := range t.prefixes {
		if strings.HasPrefix(entity, r.prefix) && len(r.prefix) > bestLen {
			best, bestLen, found = r.level, len(r.prefix), true
		}
	}
	return best, found
}

// Of returns the level for entity, defaulting to Normal.
func (t *Table) Of(entity string) Level {
	l, _ := t.Lookup(entity)
	return l
}

// Len returns the number of exact entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.exact)
}

// Default returns the built-in table: site-wide configuration is Critical,
// primary categorisation is High, core listings are Normal and auxiliary
// social entities are Low.
func Default() *Table {
	return NewTable(map[string]Level{
		"SiteConfig": Critical,
		"Settings":   Critical,
		"City":       High,
		"Category":   High,
		"Region":     High,
		"Property":   Normal,
		"Tour":       Normal,
		"Event":      Normal,
		"Attraction": Normal,
		"Review":     Low,
		"Comment":    Low,
		"Like":       Low,
		"Favorite":   Low,
	})
}

// fileFormat is the YAML layout accepted by Load:
//
//	entities:
//	  SiteConfig: critical
//	  Review: low
//	prefixes:
//	  Admin: high
type fileFormat struct {
	Entities map[string]Level `yaml:"entities"`
	Prefixes map[string]Level `yaml:"prefixes"`
}

// Load decodes a YAML priority table from r.
func Load(r io.Reader) (*Table, error) {
	var f fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("priority: decode table: %w", err)
	}
	t := NewTable(f.Entities)
	for _, p := range slices.Sorted(maps.Keys(f.Prefixes)) {
		t = t.WithPrefix(p, f.Prefixes[p])
	}
	return t, nil
}

// LoadFile reads a YAML priority table from path.
func LoadFile(path string) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("priority: open table: %w", err)
	}
	defer fh.Close()
	return Load(fh)
}
