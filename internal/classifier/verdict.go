package classifier

import "strings"

// Verdict decides whether a label counts as fresh.
type Verdict struct {
	fresh map[string]struct{}
}

// NewVerdict builds a verdict from the set of labels considered fresh.
// Labels are compared case-insensitively after trimming.
func NewVerdict(freshLabels []string) Verdict {
	v := Verdict{fresh: make(map[string]struct{}, len(freshLabels))}
	for _, label := range freshLabels {
		if key := normalizeLabel(label); key != "" {
			v.fresh[key] = struct{}{}
		}
	}
	return v
}

// IsFresh reports whether the result's label is one of the fresh labels.
func (v Verdict) IsFresh(r *Result) bool {
	if r == nil {
		return false
	}
	_, ok := v.fresh[normalizeLabel(r.Label)]
	return ok
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
