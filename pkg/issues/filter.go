package issues

import (
	"path/filepath"
	"strings"
)

// Predicate selects issues.
type Predicate func(Issue) bool

// CategoryPrefix selects issues whose category starts with prefix.
func CategoryPrefix(prefix string) Predicate {
	return func(i Issue) bool {
		return strings.HasPrefix(i.Category, prefix)
	}
}

// InFile selects issues reported against path.
func InFile(path string) Predicate {
	want := filepath.Clean(path)
	return func(i Issue) bool {
		return filepath.Clean(i.File) == want
	}
}

// Filter returns the issues matching every predicate, in input order.
func Filter(list []Issue, preds ...Predicate) []Issue {
	var out []Issue
next:
	for _, issue := range list {
		for _, p := range preds {
			if !p(issue) {
				continue next
			}
		}
		out = append(out, issue)
	}
	return out
}
