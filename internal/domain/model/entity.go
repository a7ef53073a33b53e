// Package model contains domain models passed between layers.
package model

import (
	"cmp"
	"slices"
	"time"
)

// SubjectStatus tracks whether a subject still accepts applications.
type SubjectStatus string

// Subject statuses.
const (
	SubjectOpen   SubjectStatus = "open"
	SubjectClosed SubjectStatus = "closed"
)

// Skill is the atomic comparison unit between profiles and subjects.
type Skill struct {
	Name   string   `json:"name" bson:"name" validate:"required"`
	Weight *float64 `json:"weight,omitempty" bson:"weight,omitempty" validate:"omitempty,gte=0"`
}

// ExpertScore is a subject's embedded score record for one panel expert.
type ExpertScore struct {
	ExpertID       string  `json:"expertId" bson:"expertId"`
	ProfileScore   float64 `json:"profileScore" bson:"profileScore"`
	RelevancyScore float64 `json:"relevancyScore" bson:"relevancyScore"`
}

// CandidateScore is a subject's embedded score record for one applicant.
type CandidateScore struct {
	CandidateID    string  `json:"candidateId" bson:"candidateId"`
	RelevancyScore float64 `json:"relevancyScore" bson:"relevancyScore"`
}

// Subject owns the per-association scores of its experts and candidates.
// Version increases on every persisted write.
type Subject struct {
	ID                string           `json:"id" bson:"_id"`
	Title             string           `json:"title" bson:"title"`
	Description       string           `json:"description,omitempty" bson:"description,omitempty"`
	Department        string           `json:"department,omitempty" bson:"department,omitempty"`
	Status            SubjectStatus    `json:"status" bson:"status"`
	RecommendedSkills []Skill          `json:"recommendedSkills" bson:"recommendedSkills"`
	Experts           []ExpertScore    `json:"experts" bson:"experts"`
	Candidates        []CandidateScore `json:"candidates" bson:"candidates"`
	Version           int64            `json:"version" bson:"version"`
	CreatedAt         time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// ExpertIndex returns the position of expertID in s.Experts or -1.
func (s *Subject) ExpertIndex(expertID string) int {
	for i := range s.Experts {
		if s.Experts[i].ExpertID == expertID {
			return i
		}
	}
	return -1
}

// CandidateIndex returns the position of candidateID in s.Candidates or -1.
func (s *Subject) CandidateIndex(candidateID string) int {
	for i := range s.Candidates {
		if s.Candidates[i].CandidateID == candidateID {
			return i
		}
	}
	return -1
}

// ExpertIDs lists the panel experts in stored order.
func (s *Subject) ExpertIDs() []string {
	ids := make([]string, len(s.Experts))
	for i, e := range s.Experts {
		ids[i] = e.ExpertID
	}
	return ids
}

// CandidateIDs lists the applicants in stored order.
func (s *Subject) CandidateIDs() []string {
	ids := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		ids[i] = c.CandidateID
	}
	return ids
}

// RankedExperts returns the panel ordered by profile score, then relevancy score,
// both descending. Ties fall back to the expert id.
func (s *Subject) RankedExperts() []ExpertScore {
	ranked := slices.Clone(s.Experts)
	slices.SortStableFunc(ranked, func(a, b ExpertScore) int {
		if c := cmp.Compare(b.ProfileScore, a.ProfileScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.RelevancyScore, a.RelevancyScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ExpertID, b.ExpertID)
	})
	return ranked
}

// Clone returns a deep copy of s.
func (s Subject) Clone() Subject {
	s.RecommendedSkills = cloneSkills(s.RecommendedSkills)
	s.Experts = slices.Clone(s.Experts)
	s.Candidates = slices.Clone(s.Candidates)
	return s
}

// Expert is a panel member. Averages are derived from the subjects' embedded scores.
type Expert struct {
	ID                    string    `json:"id" bson:"_id"`
	Name                  string    `json:"name" bson:"name"`
	Email                 string    `json:"email,omitempty" bson:"email,omitempty"`
	Skills                []Skill   `json:"skills" bson:"skills"`
	Subjects              []string  `json:"subjects" bson:"subjects"`
	AverageProfileScore   float64   `json:"averageProfileScore" bson:"averageProfileScore"`
	AverageRelevancyScore float64   `json:"averageRelevancyScore" bson:"averageRelevancyScore"`
	CreatedAt             time.Time `json:"createdAt" bson:"createdAt"`
}

// Clone returns a deep copy of e.
func (e Expert) Clone() Expert {
	e.Skills = cloneSkills(e.Skills)
	e.Subjects = slices.Clone(e.Subjects)
	return e
}

// Candidate is an applicant. AverageRelevancyScore is derived.
type Candidate struct {
	ID                    string    `json:"id" bson:"_id"`
	Name                  string    `json:"name" bson:"name"`
	Email                 string    `json:"email,omitempty" bson:"email,omitempty"`
	Skills                []Skill   `json:"skills" bson:"skills"`
	Subjects              []string  `json:"subjects" bson:"subjects"`
	AverageRelevancyScore float64   `json:"averageRelevancyScore" bson:"averageRelevancyScore"`
	CreatedAt             time.Time `json:"createdAt" bson:"createdAt"`
}

// Clone returns a deep copy of c.
func (c Candidate) Clone() Candidate {
	c.Skills = cloneSkills(c.Skills)
	c.Subjects = slices.Clone(c.Subjects)
	return c
}

func cloneSkills(in []Skill) []Skill {
	if in == nil {
		return nil
	}
	out := make([]Skill, len(in))
	for i, s := range in {
		out[i] = Skill{Name: s.Name}
		if s.Weight != nil {
			w := *s.Weight
			out[i].Weight = &w
		}
	}
	return out
}
