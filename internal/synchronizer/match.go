package synchronizer

import (
	"strings"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// templateSuffixes are stripped (at most one) by NormalizeName.
var templateSuffixes = []string{"-template", "_template", " template", "-tmpl", "_tmpl"}

// NormalizeName folds case, trims and collapses whitespace and strips one
// trailing template suffix: "AI POD  Template" and "ai pod-tmpl" both
// normalize to "ai pod".
func NormalizeName(name string) string {
	s := strings.ToLower(strings.Join(strings.Fields(name), " "))
	for _, suffix := range templateSuffixes {
		if len(s) > len(suffix) && strings.HasSuffix(s, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(s, suffix))
		}
	}
	return s
}

// MatchName picks the candidate referred to by name. An exact match wins;
// otherwise the candidate with the same normalized name and the
// lexicographically smallest original name.
func MatchName(name string, candidates []models.RemoteObject) (models.RemoteObject, bool) {
	for _, c := range candidates {
		if c.Name == name {
			return c, true
		}
	}
	want := NormalizeName(name)
	var (
		best  models.RemoteObject
		found bool
	)
	for _, c := range candidates {
		if NormalizeName(c.Name) != want {
			continue
		}
		if !found || c.Name < best.Name {
			best, found = c, true
		}
	}
	return best, found
}
