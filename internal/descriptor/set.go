// Package descriptor models keyword-replacement descriptors: the
// ordered stem->branch substitution rules that counterfactual branching
// applies to prompts. Descriptors come from manual config, from YAML
// descriptor files, or are derived by embedding similarity against a
// distance threshold.
package descriptor

import (
	"strings"
)

// PairKey identifies one stem->branch descriptor set.
type PairKey struct {
	Stem   string
	Branch string
}

func (k PairKey) String() string {
	return k.Stem + "->" + k.Branch
}

// Entry is one keyword -> replacement rule. Distance is only meaningful
// for derived entries.
type Entry struct {
	Keyword     string  `json:"keyword"`
	Replacement string  `json:"replacement"`
	Derived     bool    `json:"derived,omitempty"`
	Distance    float64 `json:"distance,omitempty"`
}

// Set holds the ordered replacement rules for one (stem, branch) pair.
// Entry order is substitution priority: the first rule whose keyword
// matches wins.
type Set struct {
	Stem    string
	Branch  string
	Entries []Entry
}

// Key returns the set's pair key.
func (s *Set) Key() PairKey {
	return PairKey{Stem: s.Stem, Branch: s.Branch}
}

// Has reports whether the set already rules on keyword,
// case-insensitively.
func (s *Set) Has(keyword string) bool {
	for _, e := range s.Entries {
		if strings.EqualFold(e.Keyword, keyword) {
			return true
		}
	}
	return false
}

// Add appends a rule unless its keyword is already ruled on.
func (s *Set) Add(e Entry) bool {
	if e.Keyword == "" || e.Replacement == "" || s.Has(e.Keyword) {
		return false
	}
	s.Entries = append(s.Entries, e)
	return true
}

// Replacement returns the replacement for keyword, if the set rules on it.
func (s *Set) Replacement(keyword string) (string, bool) {
	for _, e := range s.Entries {
		if strings.EqualFold(e.Keyword, keyword) {
			return e.Replacement, true
		}
	}
	return "", false
}

// Reversed returns the set with the pair flipped: branch becomes stem
// and every rule swaps keyword and replacement. Rule order is kept, so
// substitution priority survives the flip.
func (s *Set) Reversed() *Set {
	rev := &Set{Stem: s.Branch, Branch: s.Stem, Entries: make([]Entry, 0, len(s.Entries))}
	for _, e := range s.Entries {
		rev.Entries = append(rev.Entries, Entry{
			Keyword:     e.Replacement,
			Replacement: e.Keyword,
			Derived:     e.Derived,
			Distance:    e.Distance,
		})
	}
	return rev
}

// Clean drops rules that collide with the pair's own terms and puts
// the stem->branch identity rule first. A rule collides when its
// keyword and the stem term contain one another, or its replacement and
// the branch term contain one another: such rules would fight the
// identity rule over the same text.
func (s *Set) Clean() {
	kept := s.Entries[:0]
	for _, e := range s.Entries {
		if overlaps(e.Keyword, s.Stem) || overlaps(e.Replacement, s.Branch) {
			continue
		}
		kept = append(kept, e)
	}
	s.Entries = append([]Entry{{Keyword: s.Stem, Replacement: s.Branch}}, kept...)
}

func overlaps(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// Catalog is an ordered collection of descriptor sets keyed by pair.
type Catalog struct {
	sets  []*Set
	index map[PairKey]*Set
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{index: make(map[PairKey]*Set)}
}

// Add inserts a set, replacing any existing set for the same pair while
// keeping the original position.
func (c *Catalog) Add(set *Set) {
	key := set.Key()
	if existing, ok := c.index[key]; ok {
		for i, s := range c.sets {
			if s == existing {
				c.sets[i] = set
				break
			}
		}
	} else {
		c.sets = append(c.sets, set)
	}
	c.index[key] = set
}

// Remove drops the set for the given pair, if present.
func (c *Catalog) Remove(key PairKey) {
	existing, ok := c.index[key]
	if !ok {
		return
	}
	delete(c.index, key)
	for i, s := range c.sets {
		if s == existing {
			c.sets = append(c.sets[:i], c.sets[i+1:]...)
			break
		}
	}
}

// Get returns the set for a pair.
func (c *Catalog) Get(stem, branch string) (*Set, bool) {
	s, ok := c.index[PairKey{Stem: stem, Branch: branch}]
	return s, ok
}

// Pairs returns the sets in insertion order.
func (c *Catalog) Pairs() []*Set {
	return c.sets
}

// Len returns the number of pairs.
func (c *Catalog) Len() int {
	return len(c.sets)
}

// ForStem returns the sets whose stem is the given concept, in order.
func (c *Catalog) ForStem(concept string) []*Set {
	var out []*Set
	for _, s := range c.sets {
		if strings.EqualFold(s.Stem, concept) {
			out = append(out, s)
		}
	}
	return out
}

// ForBranch returns the sets whose branch is the given concept, in order.
func (c *Catalog) ForBranch(concept string) []*Set {
	var out []*Set
	for _, s := range c.sets {
		if strings.EqualFold(s.Branch, concept) {
			out = append(out, s)
		}
	}
	return out
}
