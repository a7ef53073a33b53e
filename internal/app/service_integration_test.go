package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/panelscore/internal/adapters/repository"
	service "github.com/okian/panelscore/internal/app"
	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/internal/domain/model"
)

// eventually polls cond until it holds or two seconds pass.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func skills(names ...string) []model.Skill {
	out := make([]model.Skill, 0, len(names))
	for _, n := range names {
		out = append(out, model.Skill{Name: n})
	}
	return out
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a running service with the local scorer", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 4
		svc := service.New(cfg)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer stop(svc)
		ctx := context.Background()

		sub, err := svc.CreateSubject(ctx, model.Subject{Title: "Backend", RecommendedSkills: skills("go", "postgresql")})
		So(err, ShouldBeNil)
		strong, _ := svc.CreateExpert(ctx, model.Expert{Name: "strong", Skills: skills("Go", "PostgreSQL", "kubernetes")})
		weak, _ := svc.CreateExpert(ctx, model.Expert{Name: "weak", Skills: skills("java")})
		cand, _ := svc.CreateCandidate(ctx, model.Candidate{Name: "cand", Skills: skills("go", "kubernetes")})

		_, err = svc.AddExpert(ctx, sub.ID, strong.ID)
		So(err, ShouldBeNil)
		_, err = svc.AddExpert(ctx, sub.ID, weak.ID)
		So(err, ShouldBeNil)
		applied, err := svc.Apply(ctx, sub.ID, cand.ID)
		So(err, ShouldBeNil)
		So(applied.Kind, ShouldEqual, model.KindApplicationCreated)

		scored := eventually(func() bool {
			e, _ := svc.GetExpert(ctx, strong.ID)
			c, _ := svc.GetCandidate(ctx, cand.ID)
			return e.AverageRelevancyScore == 100 && e.AverageProfileScore > 0 && c.AverageRelevancyScore == 50
		})

		Convey("Then the application is scored in the background", func() {
			So(scored, ShouldBeTrue)
			s, _ := svc.GetSubject(ctx, sub.ID)
			So(s.Candidates[0].RelevancyScore, ShouldEqual, 50)
		})

		Convey("Then the panel is ranked by profile then relevancy", func() {
			So(scored, ShouldBeTrue)
			panel, err := svc.Panel(ctx, sub.ID, 0)
			So(err, ShouldBeNil)
			So(len(panel), ShouldEqual, 2)
			So(panel[0].ExpertID, ShouldEqual, strong.ID)
			So(panel[0].Name, ShouldEqual, "strong")
			So(panel[0].Rank, ShouldEqual, 1)

			top, _ := svc.Panel(ctx, sub.ID, 1)
			So(len(top), ShouldEqual, 1)
		})

		Convey("When the subject's skills change", func() {
			So(scored, ShouldBeTrue)
			_, err := svc.UpdateSubjectSkills(ctx, sub.ID, skills("java"))
			So(err, ShouldBeNil)

			Convey("Then the panel and applicant scores follow", func() {
				So(eventually(func() bool {
					w, _ := svc.GetExpert(ctx, weak.ID)
					c, _ := svc.GetCandidate(ctx, cand.ID)
					return w.AverageRelevancyScore == 100 && c.AverageRelevancyScore == 0
				}), ShouldBeTrue)
			})
		})

		Convey("When the candidate is deleted", func() {
			So(scored, ShouldBeTrue)
			res, err := svc.DeleteCandidate(ctx, cand.ID)
			So(err, ShouldBeNil)
			So(res.Kind, ShouldEqual, model.KindCandidatesDeleted)

			Convey("Then the panel loses its applicant context", func() {
				So(eventually(func() bool {
					e, _ := svc.GetExpert(ctx, strong.ID)
					return e.AverageProfileScore == 0
				}), ShouldBeTrue)
				_, err := svc.GetCandidate(ctx, cand.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a deleted candidate had no applications", func() {
			loner, _ := svc.CreateCandidate(ctx, model.Candidate{Name: "loner"})
			res, err := svc.DeleteCandidate(ctx, loner.ID)

			Convey("Then nothing is queued", func() {
				So(err, ShouldBeNil)
				So(res.Queued, ShouldBeFalse)
			})
		})

		Convey("When the subject is closed to applications", func() {
			closed, _ := svc.CreateSubject(ctx, model.Subject{Title: "Closed", Status: model.SubjectClosed})
			_, err := svc.Apply(ctx, closed.ID, cand.ID)
			So(errors.Is(err, repository.ErrSubjectClosed), ShouldBeTrue)
		})

		Convey("When the expert is removed and the subject deleted", func() {
			So(scored, ShouldBeTrue)
			_, err := svc.RemoveExpert(ctx, sub.ID, weak.ID)
			So(err, ShouldBeNil)
			_, err = svc.DeleteSubject(ctx, sub.ID)
			So(err, ShouldBeNil)
			So(svc.DeleteExpert(ctx, weak.ID), ShouldBeNil)

			Convey("Then the entities reflect it", func() {
				_, err := svc.GetSubject(ctx, sub.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				e, _ := svc.GetExpert(ctx, strong.ID)
				So(e.Subjects, ShouldBeEmpty)
			})
		})
	})
}

func TestServiceSeed(t *testing.T) {
	Convey("Given a running service", t, func() {
		svc := service.New(nil)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer stop(svc)

		Convey("When seeding the default board", func() {
			opts := service.DefaultSeedOptions()
			rep, err := svc.Seed(context.Background(), opts)

			Convey("Then every entity and association is created", func() {
				So(err, ShouldBeNil)
				So(rep.Subjects, ShouldEqual, opts.Subjects)
				So(rep.Experts, ShouldEqual, opts.Experts)
				So(rep.Candidates, ShouldEqual, opts.Candidates)
				So(rep.Panels, ShouldEqual, opts.Subjects*opts.PanelSize)
				So(rep.Applications, ShouldEqual, opts.Candidates*opts.ApplicationsEach)

				stats, _ := svc.GetStats(context.Background())
				So(stats.Entities.Subjects, ShouldEqual, opts.Subjects)
			})
		})
	})
}
