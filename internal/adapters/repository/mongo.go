package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/panelscore/internal/domain/model"
)

// Collection names.
const (
	subjectsCollection   = "subjects"
	expertsCollection    = "experts"
	candidatesCollection = "candidates"
)

// MongoStore is a Store backed by three MongoDB collections. Multi-document
// mutations are not transactional: each document write stands alone.
type MongoStore struct {
	client     *mongo.Client
	subjects   *mongo.Collection
	experts    *mongo.Collection
	candidates *mongo.Collection
	now        func() time.Time
}

// NewMongoStore connects to uri, pings the server and opens database.
func NewMongoStore(ctx context.Context, uri, database string, opts ...MongoOption) (*MongoStore, error) {
	if uri == "" {
		return nil, ErrMissingConnection
	}
	st := defaultMongoSettings()
	for _, opt := range opts {
		opt(&st)
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(st.maxPoolSize).
		SetMinPoolSize(st.minPoolSize).
		SetConnectTimeout(st.connectTimeout).
		SetSocketTimeout(st.socketTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, st.pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:     client,
		subjects:   db.Collection(subjectsCollection),
		experts:    db.Collection(expertsCollection),
		candidates: db.Collection(candidatesCollection),
		now:        st.now,
	}, nil
}

// GetSubject implements Store.
func (m *MongoStore) GetSubject(ctx context.Context, id string) (model.Subject, error) {
	var s model.Subject
	if err := m.subjects.FindOne(ctx, byID(id)).Decode(&s); err != nil {
		return model.Subject{}, findErr("subject", id, err)
	}
	return normalizeSubject(s), nil
}

// GetExpert implements Store.
func (m *MongoStore) GetExpert(ctx context.Context, id string) (model.Expert, error) {
	var e model.Expert
	if err := m.experts.FindOne(ctx, byID(id)).Decode(&e); err != nil {
		return model.Expert{}, findErr("expert", id, err)
	}
	return e, nil
}

// GetCandidate implements Store.
func (m *MongoStore) GetCandidate(ctx context.Context, id string) (model.Candidate, error) {
	var c model.Candidate
	if err := m.candidates.FindOne(ctx, byID(id)).Decode(&c); err != nil {
		return model.Candidate{}, findErr("candidate", id, err)
	}
	return c, nil
}

// ListSubjects implements Store.
func (m *MongoStore) ListSubjects(ctx context.Context, ids []string) ([]model.Subject, error) {
	filter := bson.M{}
	if len(ids) > 0 {
		filter = bson.M{"_id": bson.M{"$in": dedupeIDs(ids)}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.subjects.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w: %w", ErrPersistenceFailure, err)
	}
	var out []model.Subject
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode subjects: %w: %w", ErrPersistenceFailure, err)
	}
	for i := range out {
		out[i] = normalizeSubject(out[i])
	}
	return out, nil
}

// ListExperts implements Store.
func (m *MongoStore) ListExperts(ctx context.Context) ([]model.Expert, error) {
	var out []model.Expert
	if err := m.findAll(ctx, m.experts, &out); err != nil {
		return nil, fmt.Errorf("list experts: %w", err)
	}
	return out, nil
}

// ListCandidates implements Store.
func (m *MongoStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	var out []model.Candidate
	if err := m.findAll(ctx, m.candidates, &out); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return out, nil
}

func (m *MongoStore) findAll(ctx context.Context, coll *mongo.Collection, out any) error {
	cur, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return nil
}

// CreateSubject implements Store.
func (m *MongoStore) CreateSubject(ctx context.Context, s model.Subject) (model.Subject, error) {
	s = prepareSubject(s, m.now())
	if _, err := m.subjects.InsertOne(ctx, s); err != nil {
		return model.Subject{}, insertErr("subject", s.ID, err)
	}
	return s, nil
}

// CreateExpert implements Store.
func (m *MongoStore) CreateExpert(ctx context.Context, e model.Expert) (model.Expert, error) {
	e = prepareExpert(e, m.now())
	if _, err := m.experts.InsertOne(ctx, e); err != nil {
		return model.Expert{}, insertErr("expert", e.ID, err)
	}
	return e, nil
}

// CreateCandidate implements Store.
func (m *MongoStore) CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	c = prepareCandidate(c, m.now())
	if _, err := m.candidates.InsertOne(ctx, c); err != nil {
		return model.Candidate{}, insertErr("candidate", c.ID, err)
	}
	return c, nil
}

// SaveSubject implements Store with a replace conditioned on the version.
func (m *MongoStore) SaveSubject(ctx context.Context, s model.Subject) (model.Subject, error) {
	expected := s.Version
	s = normalizeSubject(s)
	s.Version = expected + 1
	s.UpdatedAt = m.now()

	res, err := m.subjects.ReplaceOne(ctx, versionFilter(s.ID, expected), s)
	if err != nil {
		return model.Subject{}, fmt.Errorf("save subject %s: %w: %w", s.ID, ErrPersistenceFailure, err)
	}
	if res.MatchedCount == 0 {
		return model.Subject{}, m.missOrConflict(ctx, s.ID, expected)
	}
	return s, nil
}

func (m *MongoStore) missOrConflict(ctx context.Context, id string, expected int64) error {
	n, err := m.subjects.CountDocuments(ctx, byID(id))
	if err != nil {
		return fmt.Errorf("save subject %s: %w: %w", id, ErrPersistenceFailure, err)
	}
	if n == 0 {
		return fmt.Errorf("subject %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("subject %s moved past version %d: %w", id, expected, ErrVersionConflict)
}

// SetExpertAverages implements Store.
func (m *MongoStore) SetExpertAverages(ctx context.Context, id string, profile, relevancy float64) error {
	return m.setFields(ctx, m.experts, "expert", id, bson.M{
		"averageProfileScore":   profile,
		"averageRelevancyScore": relevancy,
	})
}

// SetCandidateAverage implements Store.
func (m *MongoStore) SetCandidateAverage(ctx context.Context, id string, relevancy float64) error {
	return m.setFields(ctx, m.candidates, "candidate", id, bson.M{"averageRelevancyScore": relevancy})
}

func (m *MongoStore) setFields(ctx context.Context, coll *mongo.Collection, kind, id string, fields bson.M) error {
	res, err := coll.UpdateOne(ctx, byID(id), bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update %s %s: %w: %w", kind, id, ErrPersistenceFailure, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// AddCandidateToSubject implements Store.
func (m *MongoStore) AddCandidateToSubject(ctx context.Context, subjectID, candidateID string) error {
	if _, err := m.GetCandidate(ctx, candidateID); err != nil {
		return err
	}
	filter := bson.M{
		"_id":                    subjectID,
		"status":                 bson.M{"$ne": model.SubjectClosed},
		"candidates.candidateId": bson.M{"$ne": candidateID},
	}
	entry := model.CandidateScore{CandidateID: candidateID}
	res, err := m.subjects.UpdateOne(ctx, filter, m.subjectUpdate(bson.M{"$push": bson.M{"candidates": entry}}))
	if err != nil {
		return fmt.Errorf("add candidate %s to subject %s: %w: %w", candidateID, subjectID, ErrPersistenceFailure, err)
	}
	if res.MatchedCount == 0 {
		sub, err := m.GetSubject(ctx, subjectID)
		if err != nil {
			return err
		}
		if sub.Status == model.SubjectClosed {
			return fmt.Errorf("subject %s: %w", subjectID, ErrSubjectClosed)
		}
		return fmt.Errorf("candidate %s on subject %s: %w", candidateID, subjectID, ErrAlreadyAssociated)
	}
	return m.addRef(ctx, m.candidates, "candidate", candidateID, subjectID)
}

// RemoveCandidateFromSubject implements Store.
func (m *MongoStore) RemoveCandidateFromSubject(ctx context.Context, subjectID, candidateID string) error {
	if _, err := m.GetCandidate(ctx, candidateID); err != nil {
		return err
	}
	filter := bson.M{"_id": subjectID, "candidates.candidateId": candidateID}
	update := m.subjectUpdate(bson.M{"$pull": bson.M{"candidates": bson.M{"candidateId": candidateID}}})
	res, err := m.subjects.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("remove candidate %s from subject %s: %w: %w", candidateID, subjectID, ErrPersistenceFailure, err)
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetSubject(ctx, subjectID); err != nil {
			return err
		}
		return fmt.Errorf("candidate %s on subject %s: %w", candidateID, subjectID, ErrNotAssociated)
	}
	return m.pullRef(ctx, m.candidates, "candidate", candidateID, subjectID)
}

// AddExpertToSubject implements Store.
func (m *MongoStore) AddExpertToSubject(ctx context.Context, subjectID, expertID string) error {
	if _, err := m.GetExpert(ctx, expertID); err != nil {
		return err
	}
	filter := bson.M{"_id": subjectID, "experts.expertId": bson.M{"$ne": expertID}}
	entry := model.ExpertScore{ExpertID: expertID}
	res, err := m.subjects.UpdateOne(ctx, filter, m.subjectUpdate(bson.M{"$push": bson.M{"experts": entry}}))
	if err != nil {
		return fmt.Errorf("add expert %s to subject %s: %w: %w", expertID, subjectID, ErrPersistenceFailure, err)
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetSubject(ctx, subjectID); err != nil {
			return err
		}
		return fmt.Errorf("expert %s on subject %s: %w", expertID, subjectID, ErrAlreadyAssociated)
	}
	return m.addRef(ctx, m.experts, "expert", expertID, subjectID)
}

// RemoveExpertFromSubject implements Store.
func (m *MongoStore) RemoveExpertFromSubject(ctx context.Context, subjectID, expertID string) error {
	if _, err := m.GetExpert(ctx, expertID); err != nil {
		return err
	}
	filter := bson.M{"_id": subjectID, "experts.expertId": expertID}
	update := m.subjectUpdate(bson.M{"$pull": bson.M{"experts": bson.M{"expertId": expertID}}})
	res, err := m.subjects.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("remove expert %s from subject %s: %w: %w", expertID, subjectID, ErrPersistenceFailure, err)
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetSubject(ctx, subjectID); err != nil {
			return err
		}
		return fmt.Errorf("expert %s on subject %s: %w", expertID, subjectID, ErrNotAssociated)
	}
	return m.pullRef(ctx, m.experts, "expert", expertID, subjectID)
}

func (m *MongoStore) addRef(ctx context.Context, coll *mongo.Collection, kind, id, subjectID string) error {
	if _, err := coll.UpdateOne(ctx, byID(id), bson.M{"$addToSet": bson.M{"subjects": subjectID}}); err != nil {
		return fmt.Errorf("link %s %s to subject %s: %w: %w", kind, id, subjectID, ErrPersistenceFailure, err)
	}
	return nil
}

func (m *MongoStore) pullRef(ctx context.Context, coll *mongo.Collection, kind, id, subjectID string) error {
	if _, err := coll.UpdateOne(ctx, byID(id), bson.M{"$pull": bson.M{"subjects": subjectID}}); err != nil {
		return fmt.Errorf("unlink %s %s from subject %s: %w: %w", kind, id, subjectID, ErrPersistenceFailure, err)
	}
	return nil
}

// UpdateSubjectSkills implements Store.
func (m *MongoStore) UpdateSubjectSkills(ctx context.Context, id string, skills []model.Skill) error {
	res, err := m.subjects.UpdateOne(ctx, byID(id), m.subjectUpdate(bson.M{
		"$set": bson.M{"recommendedSkills": nonNilSkills(skills)},
	}))
	if err != nil {
		return fmt.Errorf("update subject %s skills: %w: %w", id, ErrPersistenceFailure, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("subject %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateExpertSkills implements Store.
func (m *MongoStore) UpdateExpertSkills(ctx context.Context, id string, skills []model.Skill) error {
	return m.setFields(ctx, m.experts, "expert", id, bson.M{"skills": nonNilSkills(skills)})
}

// UpdateCandidateSkills implements Store.
func (m *MongoStore) UpdateCandidateSkills(ctx context.Context, id string, skills []model.Skill) error {
	return m.setFields(ctx, m.candidates, "candidate", id, bson.M{"skills": nonNilSkills(skills)})
}

// DeleteCandidate implements Store.
func (m *MongoStore) DeleteCandidate(ctx context.Context, id string) ([]string, error) {
	c, err := m.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	affected, err := m.subjectIDs(ctx, bson.M{"candidates.candidateId": id})
	if err != nil {
		return nil, err
	}
	if len(affected) > 0 {
		_, err = m.subjects.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": affected}},
			m.subjectUpdate(bson.M{"$pull": bson.M{"candidates": bson.M{"candidateId": id}}}))
		if err != nil {
			return nil, fmt.Errorf("pull candidate %s: %w: %w", id, ErrPersistenceFailure, err)
		}
	}
	if _, err := m.candidates.DeleteOne(ctx, byID(c.ID)); err != nil {
		return nil, fmt.Errorf("delete candidate %s: %w: %w", id, ErrPersistenceFailure, err)
	}
	return affected, nil
}

// DeleteAllCandidates implements Store.
func (m *MongoStore) DeleteAllCandidates(ctx context.Context) ([]string, error) {
	affected, err := m.subjectIDs(ctx, bson.M{"candidates.0": bson.M{"$exists": true}})
	if err != nil {
		return nil, err
	}
	if len(affected) > 0 {
		_, err = m.subjects.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": affected}},
			m.subjectUpdate(bson.M{"$set": bson.M{"candidates": []model.CandidateScore{}}}))
		if err != nil {
			return nil, fmt.Errorf("clear candidates: %w: %w", ErrPersistenceFailure, err)
		}
	}
	if _, err := m.candidates.DeleteMany(ctx, bson.M{}); err != nil {
		return nil, fmt.Errorf("delete candidates: %w: %w", ErrPersistenceFailure, err)
	}
	return affected, nil
}

// DeleteExpert implements Store.
func (m *MongoStore) DeleteExpert(ctx context.Context, id string) ([]string, error) {
	if _, err := m.GetExpert(ctx, id); err != nil {
		return nil, err
	}
	affected, err := m.subjectIDs(ctx, bson.M{"experts.expertId": id})
	if err != nil {
		return nil, err
	}
	if len(affected) > 0 {
		_, err = m.subjects.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": affected}},
			m.subjectUpdate(bson.M{"$pull": bson.M{"experts": bson.M{"expertId": id}}}))
		if err != nil {
			return nil, fmt.Errorf("pull expert %s: %w: %w", id, ErrPersistenceFailure, err)
		}
	}
	if _, err := m.experts.DeleteOne(ctx, byID(id)); err != nil {
		return nil, fmt.Errorf("delete expert %s: %w: %w", id, ErrPersistenceFailure, err)
	}
	return affected, nil
}

// DeleteSubject implements Store.
func (m *MongoStore) DeleteSubject(ctx context.Context, id string) (model.Subject, error) {
	s, err := m.GetSubject(ctx, id)
	if err != nil {
		return model.Subject{}, err
	}
	pull := bson.M{"$pull": bson.M{"subjects": id}}
	if _, err := m.experts.UpdateMany(ctx, bson.M{"subjects": id}, pull); err != nil {
		return model.Subject{}, fmt.Errorf("unlink experts from subject %s: %w: %w", id, ErrPersistenceFailure, err)
	}
	if _, err := m.candidates.UpdateMany(ctx, bson.M{"subjects": id}, pull); err != nil {
		return model.Subject{}, fmt.Errorf("unlink candidates from subject %s: %w: %w", id, ErrPersistenceFailure, err)
	}
	if _, err := m.subjects.DeleteOne(ctx, byID(id)); err != nil {
		return model.Subject{}, fmt.Errorf("delete subject %s: %w: %w", id, ErrPersistenceFailure, err)
	}
	return s, nil
}

// Counts implements Store.
func (m *MongoStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Subjects, err = m.subjects.CountDocuments(ctx, bson.M{}); err != nil {
		return Counts{}, fmt.Errorf("count subjects: %w", err)
	}
	if c.Experts, err = m.experts.CountDocuments(ctx, bson.M{}); err != nil {
		return Counts{}, fmt.Errorf("count experts: %w", err)
	}
	if c.Candidates, err = m.candidates.CountDocuments(ctx, bson.M{}); err != nil {
		return Counts{}, fmt.Errorf("count candidates: %w", err)
	}
	return c, nil
}

// Close disconnects the client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) subjectIDs(ctx context.Context, filter bson.M) ([]string, error) {
	raw, err := m.subjects.Distinct(ctx, "_id", filter)
	if err != nil {
		return nil, fmt.Errorf("find subjects: %w: %w", ErrPersistenceFailure, err)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// subjectUpdate adds the version bump and timestamp every subject write carries.
func (m *MongoStore) subjectUpdate(update bson.M) bson.M {
	out := bson.M{"$inc": bson.M{"version": 1}}
	set := bson.M{"updatedAt": m.now()}
	for op, v := range update {
		if op == "$set" {
			for k, val := range v.(bson.M) {
				set[k] = val
			}
			continue
		}
		out[op] = v
	}
	out["$set"] = set
	return out
}

func byID(id string) bson.M { return bson.M{"_id": id} }

func versionFilter(id string, version int64) bson.M {
	return bson.M{"_id": id, "version": version}
}

func findErr(kind, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("find %s %s: %w: %w", kind, id, ErrPersistenceFailure, err)
}

func insertErr(kind, id string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrDuplicateID)
	}
	return fmt.Errorf("insert %s %s: %w: %w", kind, id, ErrPersistenceFailure, err)
}

// normalizeSubject replaces nil slices so they encode as empty arrays.
func normalizeSubject(s model.Subject) model.Subject {
	if s.Experts == nil {
		s.Experts = []model.ExpertScore{}
	}
	if s.Candidates == nil {
		s.Candidates = []model.CandidateScore{}
	}
	s.RecommendedSkills = nonNilSkills(s.RecommendedSkills)
	return s
}

func nonNilSkills(skills []model.Skill) []model.Skill {
	if skills == nil {
		return []model.Skill{}
	}
	return skills
}
