package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/panelscore/internal/domain/model"
)

// MemoryStore is a mutex-guarded Store that hands out deep copies.
// It backs dev mode and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	subjects   map[string]model.Subject
	experts    map[string]model.Expert
	candidates map[string]model.Candidate
	now        func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		subjects:   make(map[string]model.Subject),
		experts:    make(map[string]model.Expert),
		candidates: make(map[string]model.Candidate),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSubject implements Store.
func (s *MemoryStore) GetSubject(_ context.Context, id string) (model.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	if !ok {
		return model.Subject{}, fmt.Errorf("subject %s: %w", id, ErrNotFound)
	}
	return sub.Clone(), nil
}

// GetExpert implements Store.
func (s *MemoryStore) GetExpert(_ context.Context, id string) (model.Expert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experts[id]
	if !ok {
		return model.Expert{}, fmt.Errorf("expert %s: %w", id, ErrNotFound)
	}
	return e.Clone(), nil
}

// GetCandidate implements Store.
func (s *MemoryStore) GetCandidate(_ context.Context, id string) (model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return model.Candidate{}, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

// ListSubjects implements Store. Results are ordered by creation time, then id.
func (s *MemoryStore) ListSubjects(_ context.Context, ids []string) ([]model.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Subject, 0, len(s.subjects))
	if len(ids) == 0 {
		for _, sub := range s.subjects {
			out = append(out, sub.Clone())
		}
	} else {
		for _, id := range dedupeIDs(ids) {
			if sub, ok := s.subjects[id]; ok {
				out = append(out, sub.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListExperts implements Store.
func (s *MemoryStore) ListExperts(_ context.Context) ([]model.Expert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Expert, 0, len(s.experts))
	for _, e := range s.experts {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCandidates implements Store.
func (s *MemoryStore) ListCandidates(_ context.Context) ([]model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateSubject implements Store. Embedded score lists are ignored; associations
// are made through AddExpertToSubject and AddCandidateToSubject.
func (s *MemoryStore) CreateSubject(_ context.Context, sub model.Subject) (model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub = prepareSubject(sub, s.now())
	if _, ok := s.subjects[sub.ID]; ok {
		return model.Subject{}, fmt.Errorf("subject %s: %w", sub.ID, ErrDuplicateID)
	}
	s.subjects[sub.ID] = sub.Clone()
	return sub, nil
}

// CreateExpert implements Store.
func (s *MemoryStore) CreateExpert(_ context.Context, e model.Expert) (model.Expert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e = prepareExpert(e, s.now())
	if _, ok := s.experts[e.ID]; ok {
		return model.Expert{}, fmt.Errorf("expert %s: %w", e.ID, ErrDuplicateID)
	}
	s.experts[e.ID] = e.Clone()
	return e, nil
}

// CreateCandidate implements Store.
func (s *MemoryStore) CreateCandidate(_ context.Context, c model.Candidate) (model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c = prepareCandidate(c, s.now())
	if _, ok := s.candidates[c.ID]; ok {
		return model.Candidate{}, fmt.Errorf("candidate %s: %w", c.ID, ErrDuplicateID)
	}
	s.candidates[c.ID] = c.Clone()
	return c, nil
}

// SaveSubject implements Store.
func (s *MemoryStore) SaveSubject(_ context.Context, sub model.Subject) (model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subjects[sub.ID]
	if !ok {
		return model.Subject{}, fmt.Errorf("subject %s: %w", sub.ID, ErrNotFound)
	}
	if cur.Version != sub.Version {
		return model.Subject{}, fmt.Errorf("subject %s at version %d, have %d: %w", sub.ID, cur.Version, sub.Version, ErrVersionConflict)
	}
	sub.Version++
	sub.CreatedAt = cur.CreatedAt
	sub.UpdatedAt = s.now()
	s.subjects[sub.ID] = sub.Clone()
	return sub, nil
}

// SetExpertAverages implements Store.
func (s *MemoryStore) SetExpertAverages(_ context.Context, id string, profile, relevancy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experts[id]
	if !ok {
		return fmt.Errorf("expert %s: %w", id, ErrNotFound)
	}
	e.AverageProfileScore = profile
	e.AverageRelevancyScore = relevancy
	s.experts[id] = e
	return nil
}

// SetCandidateAverage implements Store.
func (s *MemoryStore) SetCandidateAverage(_ context.Context, id string, relevancy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	c.AverageRelevancyScore = relevancy
	s.candidates[id] = c
	return nil
}

// AddCandidateToSubject implements Store.
func (s *MemoryStore) AddCandidateToSubject(_ context.Context, subjectID, candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, c, err := s.subjectAndCandidate(subjectID, candidateID)
	if err != nil {
		return err
	}
	if sub.Status == model.SubjectClosed {
		return fmt.Errorf("subject %s: %w", subjectID, ErrSubjectClosed)
	}
	if sub.CandidateIndex(candidateID) >= 0 {
		return fmt.Errorf("candidate %s on subject %s: %w", candidateID, subjectID, ErrAlreadyAssociated)
	}
	sub = sub.Clone()
	sub.Candidates = append(sub.Candidates, model.CandidateScore{CandidateID: candidateID})
	s.touch(&sub)
	c = c.Clone()
	c.Subjects = appendUnique(c.Subjects, subjectID)
	s.subjects[subjectID] = sub
	s.candidates[candidateID] = c
	return nil
}

// RemoveCandidateFromSubject implements Store.
func (s *MemoryStore) RemoveCandidateFromSubject(_ context.Context, subjectID, candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, c, err := s.subjectAndCandidate(subjectID, candidateID)
	if err != nil {
		return err
	}
	idx := sub.CandidateIndex(candidateID)
	if idx < 0 {
		return fmt.Errorf("candidate %s on subject %s: %w", candidateID, subjectID, ErrNotAssociated)
	}
	sub = sub.Clone()
	sub.Candidates = slices.Delete(sub.Candidates, idx, idx+1)
	s.touch(&sub)
	c = c.Clone()
	c.Subjects = removeID(c.Subjects, subjectID)
	s.subjects[subjectID] = sub
	s.candidates[candidateID] = c
	return nil
}

// AddExpertToSubject implements Store.
func (s *MemoryStore) AddExpertToSubject(_ context.Context, subjectID, expertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, e, err := s.subjectAndExpert(subjectID, expertID)
	if err != nil {
		return err
	}
	if sub.ExpertIndex(expertID) >= 0 {
		return fmt.Errorf("expert %s on subject %s: %w", expertID, subjectID, ErrAlreadyAssociated)
	}
	sub = sub.Clone()
	sub.Experts = append(sub.Experts, model.ExpertScore{ExpertID: expertID})
	s.touch(&sub)
	e = e.Clone()
	e.Subjects = appendUnique(e.Subjects, subjectID)
	s.subjects[subjectID] = sub
	s.experts[expertID] = e
	return nil
}

// RemoveExpertFromSubject implements Store.
func (s *MemoryStore) RemoveExpertFromSubject(_ context.Context, subjectID, expertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, e, err := s.subjectAndExpert(subjectID, expertID)
	if err != nil {
		return err
	}
	idx := sub.ExpertIndex(expertID)
	if idx < 0 {
		return fmt.Errorf("expert %s on subject %s: %w", expertID, subjectID, ErrNotAssociated)
	}
	sub = sub.Clone()
	sub.Experts = slices.Delete(sub.Experts, idx, idx+1)
	s.touch(&sub)
	e = e.Clone()
	e.Subjects = removeID(e.Subjects, subjectID)
	s.subjects[subjectID] = sub
	s.experts[expertID] = e
	return nil
}

// UpdateSubjectSkills implements Store.
func (s *MemoryStore) UpdateSubjectSkills(_ context.Context, id string, skills []model.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subjects[id]
	if !ok {
		return fmt.Errorf("subject %s: %w", id, ErrNotFound)
	}
	sub = sub.Clone()
	sub.RecommendedSkills = model.Subject{RecommendedSkills: skills}.Clone().RecommendedSkills
	s.touch(&sub)
	s.subjects[id] = sub
	return nil
}

// UpdateExpertSkills implements Store.
func (s *MemoryStore) UpdateExpertSkills(_ context.Context, id string, skills []model.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experts[id]
	if !ok {
		return fmt.Errorf("expert %s: %w", id, ErrNotFound)
	}
	e = e.Clone()
	e.Skills = model.Expert{Skills: skills}.Clone().Skills
	s.experts[id] = e
	return nil
}

// UpdateCandidateSkills implements Store.
func (s *MemoryStore) UpdateCandidateSkills(_ context.Context, id string, skills []model.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	c = c.Clone()
	c.Skills = model.Candidate{Skills: skills}.Clone().Skills
	s.candidates[id] = c
	return nil
}

// DeleteCandidate implements Store.
func (s *MemoryStore) DeleteCandidate(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	affected := s.pullCandidate(id, c.Subjects)
	delete(s.candidates, id)
	return affected, nil
}

// DeleteAllCandidates implements Store.
func (s *MemoryStore) DeleteAllCandidates(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []string
	for id, sub := range s.subjects {
		if len(sub.Candidates) == 0 {
			continue
		}
		sub = sub.Clone()
		sub.Candidates = []model.CandidateScore{}
		s.touch(&sub)
		s.subjects[id] = sub
		affected = append(affected, id)
	}
	clear(s.candidates)
	slices.Sort(affected)
	return affected, nil
}

// DeleteExpert implements Store.
func (s *MemoryStore) DeleteExpert(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experts[id]
	if !ok {
		return nil, fmt.Errorf("expert %s: %w", id, ErrNotFound)
	}
	var affected []string
	for _, sid := range e.Subjects {
		sub, ok := s.subjects[sid]
		if !ok {
			continue
		}
		idx := sub.ExpertIndex(id)
		if idx < 0 {
			continue
		}
		sub = sub.Clone()
		sub.Experts = slices.Delete(sub.Experts, idx, idx+1)
		s.touch(&sub)
		s.subjects[sid] = sub
		affected = append(affected, sid)
	}
	delete(s.experts, id)
	return affected, nil
}

// DeleteSubject implements Store.
func (s *MemoryStore) DeleteSubject(_ context.Context, id string) (model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subjects[id]
	if !ok {
		return model.Subject{}, fmt.Errorf("subject %s: %w", id, ErrNotFound)
	}
	for _, es := range sub.Experts {
		if e, ok := s.experts[es.ExpertID]; ok {
			e = e.Clone()
			e.Subjects = removeID(e.Subjects, id)
			s.experts[es.ExpertID] = e
		}
	}
	for _, cs := range sub.Candidates {
		if c, ok := s.candidates[cs.CandidateID]; ok {
			c = c.Clone()
			c.Subjects = removeID(c.Subjects, id)
			s.candidates[cs.CandidateID] = c
		}
	}
	delete(s.subjects, id)
	return sub.Clone(), nil
}

// Counts implements Store.
func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Subjects:   int64(len(s.subjects)),
		Experts:    int64(len(s.experts)),
		Candidates: int64(len(s.candidates)),
	}, nil
}

// Close implements Store.
func (s *MemoryStore) Close(_ context.Context) error { return nil }

// pullCandidate removes id from the listed subjects. Caller holds the lock.
func (s *MemoryStore) pullCandidate(id string, subjectIDs []string) []string {
	var affected []string
	for _, sid := range subjectIDs {
		sub, ok := s.subjects[sid]
		if !ok {
			continue
		}
		idx := sub.CandidateIndex(id)
		if idx < 0 {
			continue
		}
		sub = sub.Clone()
		sub.Candidates = slices.Delete(sub.Candidates, idx, idx+1)
		s.touch(&sub)
		s.subjects[sid] = sub
		affected = append(affected, sid)
	}
	return affected
}

func (s *MemoryStore) subjectAndCandidate(subjectID, candidateID string) (model.Subject, model.Candidate, error) {
	sub, ok := s.subjects[subjectID]
	if !ok {
		return model.Subject{}, model.Candidate{}, fmt.Errorf("subject %s: %w", subjectID, ErrNotFound)
	}
	c, ok := s.candidates[candidateID]
	if !ok {
		return model.Subject{}, model.Candidate{}, fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
	}
	return sub, c, nil
}

func (s *MemoryStore) subjectAndExpert(subjectID, expertID string) (model.Subject, model.Expert, error) {
	sub, ok := s.subjects[subjectID]
	if !ok {
		return model.Subject{}, model.Expert{}, fmt.Errorf("subject %s: %w", subjectID, ErrNotFound)
	}
	e, ok := s.experts[expertID]
	if !ok {
		return model.Subject{}, model.Expert{}, fmt.Errorf("expert %s: %w", expertID, ErrNotFound)
	}
	return sub, e, nil
}

func (s *MemoryStore) touch(sub *model.Subject) {
	sub.Version++
	sub.UpdatedAt = s.now()
}

func prepareSubject(sub model.Subject, now time.Time) model.Subject {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = model.SubjectOpen
	}
	sub = sub.Clone()
	sub.Experts = []model.ExpertScore{}
	sub.Candidates = []model.CandidateScore{}
	if sub.RecommendedSkills == nil {
		sub.RecommendedSkills = []model.Skill{}
	}
	sub.Version = 1
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return sub
}

func prepareExpert(e model.Expert, now time.Time) model.Expert {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e = e.Clone()
	e.Subjects = []string{}
	if e.Skills == nil {
		e.Skills = []model.Skill{}
	}
	e.AverageProfileScore = 0
	e.AverageRelevancyScore = 0
	e.CreatedAt = now
	return e
}

func prepareCandidate(c model.Candidate, now time.Time) model.Candidate {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c = c.Clone()
	c.Subjects = []string{}
	if c.Skills == nil {
		c.Skills = []model.Skill{}
	}
	c.AverageRelevancyScore = 0
	c.CreatedAt = now
	return c
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
