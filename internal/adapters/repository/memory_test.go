package repository

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/panelscore/internal/domain/model"
)

func seedMemory(ctx context.Context) (*MemoryStore, model.Subject, model.Expert, model.Candidate) {
	s := NewMemoryStore()
	sub, _ := s.CreateSubject(ctx, model.Subject{Title: "Backend", RecommendedSkills: []model.Skill{{Name: "go"}}})
	e, _ := s.CreateExpert(ctx, model.Expert{Name: "Grace", Skills: []model.Skill{{Name: "go"}}})
	c, _ := s.CreateCandidate(ctx, model.Candidate{Name: "Ada", Skills: []model.Skill{{Name: "sql"}}})
	return s, sub, e, c
}

func TestMemoryStoreCreate(t *testing.T) {
	Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		s := NewMemoryStore()

		Convey("When a subject is created without an id", func() {
			sub, err := s.CreateSubject(ctx, model.Subject{
				Title:   "Data",
				Experts: []model.ExpertScore{{ExpertID: "ghost", ProfileScore: 9}},
			})

			Convey("Then it is assigned an id, version 1, open status and no embedded entries", func() {
				So(err, ShouldBeNil)
				So(sub.ID, ShouldNotBeEmpty)
				So(sub.Version, ShouldEqual, 1)
				So(sub.Status, ShouldEqual, model.SubjectOpen)
				So(sub.Experts, ShouldBeEmpty)
				So(sub.Experts, ShouldNotBeNil)
			})

			Convey("Then a second create with the same id fails", func() {
				_, err := s.CreateSubject(ctx, model.Subject{ID: sub.ID})
				So(errors.Is(err, ErrDuplicateID), ShouldBeTrue)
			})
		})

		Convey("When an expert is created with stale averages", func() {
			e, err := s.CreateExpert(ctx, model.Expert{Name: "x", AverageProfileScore: 5, Subjects: []string{"s"}})

			Convey("Then derived fields start empty", func() {
				So(err, ShouldBeNil)
				So(e.AverageProfileScore, ShouldEqual, 0)
				So(e.Subjects, ShouldBeEmpty)
			})
		})

		Convey("When an unknown entity is requested", func() {
			_, err := s.GetSubject(ctx, "nope")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			_, err = s.GetExpert(ctx, "nope")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			_, err = s.GetCandidate(ctx, "nope")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStoreVersionedSave(t *testing.T) {
	Convey("Given a stored subject", t, func() {
		ctx := context.Background()
		s, sub, _, _ := seedMemory(ctx)

		Convey("When saving the current version", func() {
			sub.Title = "Backend Go"
			saved, err := s.SaveSubject(ctx, sub)

			Convey("Then the version increases", func() {
				So(err, ShouldBeNil)
				So(saved.Version, ShouldEqual, sub.Version+1)
				got, _ := s.GetSubject(ctx, sub.ID)
				So(got.Title, ShouldEqual, "Backend Go")
			})

			Convey("Then saving the stale copy again conflicts", func() {
				_, err := s.SaveSubject(ctx, sub)
				So(errors.Is(err, ErrVersionConflict), ShouldBeTrue)
			})
		})

		Convey("When an association change lands between read and save", func() {
			e2, _ := s.CreateExpert(ctx, model.Expert{Name: "Linus"})
			So(s.AddExpertToSubject(ctx, sub.ID, e2.ID), ShouldBeNil)
			_, err := s.SaveSubject(ctx, sub)

			Convey("Then the save is rejected", func() {
				So(errors.Is(err, ErrVersionConflict), ShouldBeTrue)
			})
		})

		Convey("When saving a deleted subject", func() {
			_, _ = s.DeleteSubject(ctx, sub.ID)
			_, err := s.SaveSubject(ctx, sub)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("When a caller mutates a returned copy", func() {
			got, _ := s.GetSubject(ctx, sub.ID)
			got.RecommendedSkills[0].Name = "rust"
			again, _ := s.GetSubject(ctx, sub.ID)
			So(again.RecommendedSkills[0].Name, ShouldEqual, "go")
		})
	})
}

func TestMemoryStoreAssociations(t *testing.T) {
	Convey("Given a subject, an expert and a candidate", t, func() {
		ctx := context.Background()
		s, sub, e, c := seedMemory(ctx)

		Convey("When the candidate applies", func() {
			So(s.AddCandidateToSubject(ctx, sub.ID, c.ID), ShouldBeNil)

			Convey("Then both sides reference each other with a zero score", func() {
				gotSub, _ := s.GetSubject(ctx, sub.ID)
				gotC, _ := s.GetCandidate(ctx, c.ID)
				So(gotSub.Candidates, ShouldResemble, []model.CandidateScore{{CandidateID: c.ID}})
				So(gotC.Subjects, ShouldResemble, []string{sub.ID})
			})

			Convey("Then applying twice is rejected", func() {
				err := s.AddCandidateToSubject(ctx, sub.ID, c.ID)
				So(errors.Is(err, ErrAlreadyAssociated), ShouldBeTrue)
			})

			Convey("Then withdrawing removes both references", func() {
				So(s.RemoveCandidateFromSubject(ctx, sub.ID, c.ID), ShouldBeNil)
				gotSub, _ := s.GetSubject(ctx, sub.ID)
				gotC, _ := s.GetCandidate(ctx, c.ID)
				So(gotSub.Candidates, ShouldBeEmpty)
				So(gotC.Subjects, ShouldBeEmpty)

				err := s.RemoveCandidateFromSubject(ctx, sub.ID, c.ID)
				So(errors.Is(err, ErrNotAssociated), ShouldBeTrue)
			})
		})

		Convey("When the subject is closed", func() {
			sub.Status = model.SubjectClosed
			_, err := s.SaveSubject(ctx, sub)
			So(err, ShouldBeNil)

			err = s.AddCandidateToSubject(ctx, sub.ID, c.ID)
			So(errors.Is(err, ErrSubjectClosed), ShouldBeTrue)
		})

		Convey("When an expert with scores is removed and re-added", func() {
			So(s.AddExpertToSubject(ctx, sub.ID, e.ID), ShouldBeNil)
			cur, _ := s.GetSubject(ctx, sub.ID)
			cur.Experts[0].ProfileScore = 7
			cur.Experts[0].RelevancyScore = 8
			_, err := s.SaveSubject(ctx, cur)
			So(err, ShouldBeNil)

			So(s.RemoveExpertFromSubject(ctx, sub.ID, e.ID), ShouldBeNil)
			So(s.AddExpertToSubject(ctx, sub.ID, e.ID), ShouldBeNil)

			Convey("Then the entry starts over at zero", func() {
				got, _ := s.GetSubject(ctx, sub.ID)
				So(got.Experts, ShouldResemble, []model.ExpertScore{{ExpertID: e.ID}})
			})
		})

		Convey("When associating unknown entities", func() {
			So(errors.Is(s.AddExpertToSubject(ctx, sub.ID, "ghost"), ErrNotFound), ShouldBeTrue)
			So(errors.Is(s.AddCandidateToSubject(ctx, "ghost", c.ID), ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStoreWrites(t *testing.T) {
	Convey("Given associated entities", t, func() {
		ctx := context.Background()
		s, sub, e, c := seedMemory(ctx)
		So(s.AddExpertToSubject(ctx, sub.ID, e.ID), ShouldBeNil)
		So(s.AddCandidateToSubject(ctx, sub.ID, c.ID), ShouldBeNil)

		Convey("When aggregates are written", func() {
			So(s.SetExpertAverages(ctx, e.ID, 4, 6), ShouldBeNil)
			So(s.SetCandidateAverage(ctx, c.ID, 3), ShouldBeNil)

			gotE, _ := s.GetExpert(ctx, e.ID)
			gotC, _ := s.GetCandidate(ctx, c.ID)
			So(gotE.AverageProfileScore, ShouldEqual, 4)
			So(gotE.AverageRelevancyScore, ShouldEqual, 6)
			So(gotC.AverageRelevancyScore, ShouldEqual, 3)
			So(errors.Is(s.SetExpertAverages(ctx, "ghost", 1, 1), ErrNotFound), ShouldBeTrue)
		})

		Convey("When skills change", func() {
			before, _ := s.GetSubject(ctx, sub.ID)
			So(s.UpdateSubjectSkills(ctx, sub.ID, []model.Skill{{Name: "k8s"}}), ShouldBeNil)
			So(s.UpdateExpertSkills(ctx, e.ID, []model.Skill{{Name: "rust"}}), ShouldBeNil)
			So(s.UpdateCandidateSkills(ctx, c.ID, []model.Skill{{Name: "c"}}), ShouldBeNil)

			after, _ := s.GetSubject(ctx, sub.ID)
			gotE, _ := s.GetExpert(ctx, e.ID)
			So(after.RecommendedSkills[0].Name, ShouldEqual, "k8s")
			So(after.Version, ShouldBeGreaterThan, before.Version)
			So(gotE.Skills[0].Name, ShouldEqual, "rust")
		})

		Convey("When the candidate is deleted", func() {
			affected, err := s.DeleteCandidate(ctx, c.ID)

			Convey("Then it is pulled from its subjects", func() {
				So(err, ShouldBeNil)
				So(affected, ShouldResemble, []string{sub.ID})
				got, _ := s.GetSubject(ctx, sub.ID)
				So(got.Candidates, ShouldBeEmpty)
			})
		})

		Convey("When all candidates are deleted", func() {
			affected, err := s.DeleteAllCandidates(ctx)
			So(err, ShouldBeNil)
			So(affected, ShouldResemble, []string{sub.ID})
			counts, _ := s.Counts(ctx)
			So(counts.Candidates, ShouldEqual, 0)
			So(counts.Subjects, ShouldEqual, 1)
		})

		Convey("When the expert is deleted", func() {
			affected, err := s.DeleteExpert(ctx, e.ID)
			So(err, ShouldBeNil)
			So(affected, ShouldResemble, []string{sub.ID})
			got, _ := s.GetSubject(ctx, sub.ID)
			So(got.Experts, ShouldBeEmpty)
		})

		Convey("When the subject is deleted", func() {
			deleted, err := s.DeleteSubject(ctx, sub.ID)

			Convey("Then references on experts and candidates are removed", func() {
				So(err, ShouldBeNil)
				So(deleted.ExpertIDs(), ShouldResemble, []string{e.ID})
				gotE, _ := s.GetExpert(ctx, e.ID)
				gotC, _ := s.GetCandidate(ctx, c.ID)
				So(gotE.Subjects, ShouldBeEmpty)
				So(gotC.Subjects, ShouldBeEmpty)
			})
		})

		Convey("When listing subjects by id", func() {
			other, _ := s.CreateSubject(ctx, model.Subject{Title: "Other"})
			all, _ := s.ListSubjects(ctx, nil)
			some, _ := s.ListSubjects(ctx, []string{other.ID, "ghost", other.ID})

			So(len(all), ShouldEqual, 2)
			So(len(some), ShouldEqual, 1)
			So(some[0].ID, ShouldEqual, other.ID)
		})
	})
}
