package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/multierr"

	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/logger"
)

// SeedOptions controls the sample data generated by Seed.
type SeedOptions struct {
	Subjects         int
	Experts          int
	Candidates       int
	PanelSize        int
	ApplicationsEach int
	Seed             uint64
}

// DefaultSeedOptions returns a small board that exercises every trigger.
func DefaultSeedOptions() SeedOptions {
	return SeedOptions{Subjects: 5, Experts: 12, Candidates: 30, PanelSize: 4, ApplicationsEach: 2, Seed: 42}
}

// SeedReport counts what Seed created.
type SeedReport struct {
	Subjects     int `json:"subjects"`
	Experts      int `json:"experts"`
	Candidates   int `json:"candidates"`
	Panels       int `json:"panelSeats"`
	Applications int `json:"applications"`
	JobsQueued   int `json:"jobsQueued"`
}

var (
	seedDepartments = []string{"Engineering", "Data", "Security", "Platform", "Product"}
	seedSkills      = []string{
		"go", "kubernetes", "postgresql", "mongodb", "distributed systems", "networking",
		"python", "machine learning", "statistics", "react", "typescript", "security auditing",
		"cryptography", "terraform", "observability", "system design", "java", "rust",
	}
	seedFirstNames = []string{"Asha", "Bilal", "Chen", "Dara", "Elif", "Farid", "Greta", "Hiro", "Ines", "Jonas", "Kemi", "Luca"}
	seedLastNames  = []string{"Okafor", "Singh", "Novak", "Haddad", "Kim", "Moreau", "Silva", "Tanaka", "Weber", "Yilmaz"}
)

// Seed creates sample subjects, experts and candidates through the normal
// mutation path, so every panel seat and application queues its recompute.
// Individual failures are collected and the rest of the data still goes in.
func (s *Service) Seed(ctx context.Context, opts SeedOptions) (SeedReport, error) {
	if err := s.running(); err != nil {
		return SeedReport{}, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	var rep SeedReport
	var errs error

	subjects := make([]model.Subject, 0, opts.Subjects)
	for i := 0; i < opts.Subjects; i++ {
		dept := seedDepartments[i%len(seedDepartments)]
		sub, err := s.CreateSubject(ctx, model.Subject{
			Title:             fmt.Sprintf("%s interview round %d", dept, i+1),
			Department:        dept,
			RecommendedSkills: pickSkills(rng, 3, true),
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		subjects = append(subjects, sub)
		rep.Subjects++
	}

	experts := make([]model.Expert, 0, opts.Experts)
	for i := 0; i < opts.Experts; i++ {
		name := seedName(rng)
		e, err := s.CreateExpert(ctx, model.Expert{Name: name, Email: seedEmail(name, "expert", i), Skills: pickSkills(rng, 5, true)})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		experts = append(experts, e)
		rep.Experts++
	}

	candidates := make([]model.Candidate, 0, opts.Candidates)
	for i := 0; i < opts.Candidates; i++ {
		name := seedName(rng)
		c, err := s.CreateCandidate(ctx, model.Candidate{Name: name, Email: seedEmail(name, "candidate", i), Skills: pickSkills(rng, 4, false)})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		candidates = append(candidates, c)
		rep.Candidates++
	}

	if len(subjects) == 0 {
		return rep, errs
	}
	for _, sub := range subjects {
		for _, i := range rng.Perm(len(experts))[:min(opts.PanelSize, len(experts))] {
			res, err := s.AddExpert(ctx, sub.ID, experts[i].ID)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			rep.Panels++
			if res.Queued {
				rep.JobsQueued++
			}
		}
	}
	for _, c := range candidates {
		for _, i := range rng.Perm(len(subjects))[:min(opts.ApplicationsEach, len(subjects))] {
			res, err := s.Apply(ctx, subjects[i].ID, c.ID)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			rep.Applications++
			if res.Queued {
				rep.JobsQueued++
			}
		}
	}

	s.logger.Info(ctx, "seed data created",
		logger.Int("subjects", rep.Subjects), logger.Int("experts", rep.Experts),
		logger.Int("candidates", rep.Candidates), logger.Int("jobs", rep.JobsQueued))
	return rep, errs
}

func pickSkills(rng *rand.Rand, n int, weighted bool) []model.Skill {
	out := make([]model.Skill, 0, n)
	for _, i := range rng.Perm(len(seedSkills))[:n] {
		sk := model.Skill{Name: seedSkills[i]}
		if weighted && rng.IntN(3) == 0 {
			w := float64(1+rng.IntN(3)) / 2
			sk.Weight = &w
		}
		out = append(out, sk)
	}
	return out
}

func seedName(rng *rand.Rand) string {
	return seedFirstNames[rng.IntN(len(seedFirstNames))] + " " + seedLastNames[rng.IntN(len(seedLastNames))]
}

func seedEmail(name, role string, i int) string {
	first, _, _ := strings.Cut(name, " ")
	return fmt.Sprintf("%s.%s%d@example.com", role, strings.ToLower(first), i+1)
}
