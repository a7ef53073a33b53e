// Package scoring defines the contract between the recompute engine and an
// external scorer, plus the partial-update merge applied to its responses.
package scoring

import (
	"context"

	"github.com/okian/panelscore/internal/domain/model"
)

// Profile is the scorer's view of an expert or candidate.
type Profile struct {
	Name   string        `json:"name"`
	Skills []model.Skill `json:"skills"`
}

// SubjectProfile is the scorer's view of a subject.
type SubjectProfile struct {
	Title             string        `json:"title"`
	RecommendedSkills []model.Skill `json:"recommendedSkills"`
}

// Request carries one profile triple. ExpertData is nil for candidate scoring.
type Request struct {
	CandidateData []Profile      `json:"candidateData"`
	ExpertData    *Profile       `json:"expertData,omitempty"`
	SubjectData   SubjectProfile `json:"subjectData"`
}

// Result holds the scores a scorer returned. A nil field was absent from the
// response and must not overwrite the stored value.
type Result struct {
	ProfileScore   *float64 `json:"profileScore,omitempty"`
	RelevancyScore *float64 `json:"relevancyScore,omitempty"`
}

// Scorer computes scores for a profile triple. Implementations apply their own
// deadline and report every failure as ErrScoreUnavailable. They never retry.
type Scorer interface {
	Score(ctx context.Context, req Request) (Result, error)
}

// ExpertProfile projects an expert.
func ExpertProfile(e model.Expert) Profile {
	return Profile{Name: e.Name, Skills: e.Skills}
}

// CandidateProfile projects a candidate.
func CandidateProfile(c model.Candidate) Profile {
	return Profile{Name: c.Name, Skills: c.Skills}
}

// SubjectProfileOf projects a subject.
func SubjectProfileOf(s model.Subject) SubjectProfile {
	return SubjectProfile{Title: s.Title, RecommendedSkills: s.RecommendedSkills}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
