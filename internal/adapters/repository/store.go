// Package repository defines the entity store interface and its implementations.
package repository

import (
	"context"

	"github.com/okian/panelscore/internal/domain/model"
)

// Counts summarizes collection sizes.
type Counts struct {
	Subjects   int64 `json:"subjects"`
	Experts    int64 `json:"experts"`
	Candidates int64 `json:"candidates"`
}

// Store provides read/write access to subjects, experts and candidates.
//
// Subject writes are versioned: every write that touches a subject increments
// its Version, and SaveSubject only succeeds when the caller's copy carries
// the stored version.
type Store interface {
	// GetSubject returns ErrNotFound when the subject is unknown. Same for the other getters.
	GetSubject(ctx context.Context, id string) (model.Subject, error)
	GetExpert(ctx context.Context, id string) (model.Expert, error)
	GetCandidate(ctx context.Context, id string) (model.Candidate, error)

	// ListSubjects returns the subjects with the given ids, or all of them when ids is empty.
	// Unknown ids are skipped.
	ListSubjects(ctx context.Context, ids []string) ([]model.Subject, error)
	ListExperts(ctx context.Context) ([]model.Expert, error)
	ListCandidates(ctx context.Context) ([]model.Candidate, error)

	CreateSubject(ctx context.Context, s model.Subject) (model.Subject, error)
	CreateExpert(ctx context.Context, e model.Expert) (model.Expert, error)
	CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error)

	// SaveSubject replaces the stored subject if its version equals s.Version.
	// Returns ErrVersionConflict otherwise. The returned subject carries the new version.
	SaveSubject(ctx context.Context, s model.Subject) (model.Subject, error)

	// SetExpertAverages and SetCandidateAverage write only the aggregate fields.
	SetExpertAverages(ctx context.Context, id string, profile, relevancy float64) error
	SetCandidateAverage(ctx context.Context, id string, relevancy float64) error

	// Association mutations keep both sides of the reference in step.
	// New embedded entries start with zero scores.
	AddCandidateToSubject(ctx context.Context, subjectID, candidateID string) error
	RemoveCandidateFromSubject(ctx context.Context, subjectID, candidateID string) error
	AddExpertToSubject(ctx context.Context, subjectID, expertID string) error
	RemoveExpertFromSubject(ctx context.Context, subjectID, expertID string) error

	UpdateSubjectSkills(ctx context.Context, id string, skills []model.Skill) error
	UpdateExpertSkills(ctx context.Context, id string, skills []model.Skill) error
	UpdateCandidateSkills(ctx context.Context, id string, skills []model.Skill) error

	// DeleteCandidate removes the candidate and its embedded entries, returning the affected subject ids.
	DeleteCandidate(ctx context.Context, id string) ([]string, error)
	// DeleteAllCandidates removes every candidate, returning the subjects that had applicants.
	DeleteAllCandidates(ctx context.Context) ([]string, error)
	// DeleteExpert removes the expert and its panel entries, returning the affected subject ids.
	DeleteExpert(ctx context.Context, id string) ([]string, error)
	// DeleteSubject removes the subject and its references, returning the deleted document.
	DeleteSubject(ctx context.Context, id string) (model.Subject, error)

	Counts(ctx context.Context) (Counts, error)
	Close(ctx context.Context) error
}
