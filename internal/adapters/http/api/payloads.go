package api

import "github.com/okian/panelscore/internal/domain/model"

type subjectRequest struct {
	ID                string              `json:"id" validate:"omitempty,max=64"`
	Title             string              `json:"title" validate:"required,max=200"`
	Description       string              `json:"description"`
	Department        string              `json:"department" validate:"max=120"`
	Status            model.SubjectStatus `json:"status" validate:"omitempty,oneof=open closed"`
	RecommendedSkills []model.Skill       `json:"recommendedSkills" validate:"dive"`
}

func (p subjectRequest) subject() model.Subject {
	return model.Subject{
		ID:                p.ID,
		Title:             p.Title,
		Description:       p.Description,
		Department:        p.Department,
		Status:            p.Status,
		RecommendedSkills: p.RecommendedSkills,
	}
}

type personRequest struct {
	ID     string        `json:"id" validate:"omitempty,max=64"`
	Name   string        `json:"name" validate:"required,max=200"`
	Email  string        `json:"email" validate:"omitempty,email"`
	Skills []model.Skill `json:"skills" validate:"dive"`
}

type skillsRequest struct {
	Skills []model.Skill `json:"skills" validate:"required,dive"`
}

type applyRequest struct {
	CandidateID string `json:"candidateId" validate:"required"`
}

type addExpertRequest struct {
	ExpertID string `json:"expertId" validate:"required"`
}

type recomputeRequest struct {
	Kind         string   `json:"kind" validate:"required"`
	SubjectID    string   `json:"subjectId"`
	ExpertID     string   `json:"expertId"`
	CandidateID  string   `json:"candidateId"`
	SubjectIDs   []string `json:"subjectIds" validate:"dive,required"`
	ExpertIDs    []string `json:"expertIds" validate:"dive,required"`
	CandidateIDs []string `json:"candidateIds" validate:"dive,required"`
}
