package domain

// Unbounded marks a category without a selection cap.
const Unbounded = 0

// Category is a taxonomy entry. Aliases are raw flair labels accepted for it.
type Category struct {
	Key     string
	Aliases []string
	Label   string
	Icon    string
	Cap     int
}

// Bounded reports whether the category truncates its section.
func (c Category) Bounded() bool {
	return c.Cap > Unbounded
}

// Sections maps a category key to its ranked, capped candidates.
type Sections map[string][]Candidate

// Section is one category's finalized list.
type Section struct {
	Key   string
	Items []Candidate
}

// Ordered returns the sections following the given key order. Missing keys yield empty sections.
func (s Sections) Ordered(keys []string) []Section {
	out := make([]Section, 0, len(keys))
	for _, key := range keys {
		out = append(out, Section{Key: key, Items: s[key]})
	}
	return out
}

// Total counts all selected candidates.
func (s Sections) Total() int {
	n := 0
	for _, items := range s {
		n += len(items)
	}
	return n
}
