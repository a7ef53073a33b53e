package scoring

import (
	"math"

	"github.com/okian/panelscore/internal/domain/model"
)

// ApplyExpert merges the present fields of r into entry. A present zero
// overwrites. It reports whether anything changed.
func ApplyExpert(entry *model.ExpertScore, r Result) bool {
	changed := false
	if r.ProfileScore != nil && entry.ProfileScore != *r.ProfileScore {
		entry.ProfileScore = *r.ProfileScore
		changed = true
	}
	if r.RelevancyScore != nil && entry.RelevancyScore != *r.RelevancyScore {
		entry.RelevancyScore = *r.RelevancyScore
		changed = true
	}
	return changed
}

// ApplyCandidate merges the relevancy score of r into entry. ProfileScore is ignored.
func ApplyCandidate(entry *model.CandidateScore, r Result) bool {
	if r.RelevancyScore == nil || entry.RelevancyScore == *r.RelevancyScore {
		return false
	}
	entry.RelevancyScore = *r.RelevancyScore
	return true
}

// Empty reports whether r carries no score at all.
func (r Result) Empty() bool {
	return r.ProfileScore == nil && r.RelevancyScore == nil
}

// Valid reports whether every present score is a finite, non-negative number.
func (r Result) Valid() bool {
	return validScore(r.ProfileScore) && validScore(r.RelevancyScore)
}

func validScore(v *float64) bool {
	return v == nil || (*v >= 0 && !math.IsNaN(*v) && !math.IsInf(*v, 0))
}
