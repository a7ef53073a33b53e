package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names the event that invalidated scores.
type Kind string

// Trigger kinds raised by entity mutations.
const (
	KindApplicationCreated     Kind = "application_created"
	KindApplicationRemoved     Kind = "application_removed"
	KindSubjectSkillsChanged   Kind = "subject_skills_changed"
	KindCandidateSkillsChanged Kind = "candidate_skills_changed"
	KindCandidatesDeleted      Kind = "candidates_deleted"
	KindExpertSkillsChanged    Kind = "expert_skills_changed"
	KindExpertAdded            Kind = "expert_added"
	KindExpertRemoved          Kind = "expert_removed"
	KindSubjectDeleted         Kind = "subject_deleted"
)

// Direct kinds, one per recompute entry point.
const (
	KindRecomputeExpertSubject     Kind = "recompute_expert_subject"
	KindRecomputeCandidateSubject  Kind = "recompute_candidate_subject"
	KindRecomputeSubjectExperts    Kind = "recompute_subject_experts"
	KindRecomputeSubjectCandidates Kind = "recompute_subject_candidates"
	KindRecomputeExpertsAcross     Kind = "recompute_experts_across"
	KindRecomputeCandidatesAcross  Kind = "recompute_candidates_across"
	KindRecomputeExpert            Kind = "recompute_expert"
	KindRecomputeCandidate         Kind = "recompute_candidate"
	KindRecomputeExpertAverages    Kind = "recompute_expert_averages"
	KindRecomputeCandidateAverages Kind = "recompute_candidate_averages"
)

type requirement uint8

const (
	needSubject requirement = 1 << iota
	needExpert
	needCandidate
)

var kindRequirements = map[Kind]requirement{ //nolint:gochecknoglobals // static lookup table
	KindApplicationCreated:     needSubject | needCandidate,
	KindApplicationRemoved:     needSubject | needCandidate,
	KindSubjectSkillsChanged:   needSubject,
	KindCandidateSkillsChanged: needCandidate,
	KindCandidatesDeleted:      0,
	KindExpertSkillsChanged:    needExpert,
	KindExpertAdded:            needSubject | needExpert,
	KindExpertRemoved:          needSubject | needExpert,
	KindSubjectDeleted:         0,

	KindRecomputeExpertSubject:     needSubject | needExpert,
	KindRecomputeCandidateSubject:  needSubject | needCandidate,
	KindRecomputeSubjectExperts:    needSubject,
	KindRecomputeSubjectCandidates: needSubject,
	KindRecomputeExpertsAcross:     0,
	KindRecomputeCandidatesAcross:  0,
	KindRecomputeExpert:            needExpert,
	KindRecomputeCandidate:         needCandidate,
	KindRecomputeExpertAverages:    0,
	KindRecomputeCandidateAverages: 0,
}

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindRequirements))
	for k := range kindRequirements {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if _, ok := kindRequirements[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Job is one unit of recompute work. Only the identifiers the kind needs are set.
type Job struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	SubjectID    string    `json:"subjectId,omitempty"`
	ExpertID     string    `json:"expertId,omitempty"`
	CandidateID  string    `json:"candidateId,omitempty"`
	SubjectIDs   []string  `json:"subjectIds,omitempty"`
	ExpertIDs    []string  `json:"expertIds,omitempty"`
	CandidateIDs []string  `json:"candidateIds,omitempty"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
}

// NewJob returns a job of kind k stamped with a fresh run id.
func NewJob(k Kind) Job {
	return Job{ID: uuid.NewString(), Kind: k, EnqueuedAt: time.Now()}
}

// Validate checks that the identifiers required by the kind are present.
func (j Job) Validate() error {
	req, ok := kindRequirements[j.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, j.Kind)
	}
	if req&needSubject != 0 && j.SubjectID == "" {
		return fmt.Errorf("%w: %s requires subjectId", ErrInvalidJob, j.Kind)
	}
	if req&needExpert != 0 && j.ExpertID == "" {
		return fmt.Errorf("%w: %s requires expertId", ErrInvalidJob, j.Kind)
	}
	if req&needCandidate != 0 && j.CandidateID == "" {
		return fmt.Errorf("%w: %s requires candidateId", ErrInvalidJob, j.Kind)
	}
	return nil
}

// Key identifies the work a job performs. Two pending jobs with equal keys
// would produce the same result, so one of them can be dropped.
func (j Job) Key() string {
	var b strings.Builder
	b.WriteString(string(j.Kind))
	for _, part := range []string{j.SubjectID, j.ExpertID, j.CandidateID} {
		b.WriteByte('|')
		b.WriteString(part)
	}
	for _, ids := range [][]string{j.SubjectIDs, j.ExpertIDs, j.CandidateIDs} {
		b.WriteByte('|')
		b.WriteString(strings.Join(sortedCopy(ids), ","))
	}
	return b.String()
}

func sortedCopy(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
