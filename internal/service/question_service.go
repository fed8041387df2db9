package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
)

// Domain errors.
var (
	ErrPaperNotFound = errors.New("subject or question set not found")
	ErrSetMismatch   = errors.New("question set does not belong to subject")
)

// QuestionService provides question papers to attempts and manages the
// question bank. Papers are cached in Redis in two parts: the sanitized
// payload served to students and the full questions used for grading.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	subjectRepo  *repository.SubjectRepository
	rdb          *redis.Client
	policy       config.Policy
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(
	questionRepo *repository.QuestionRepository,
	subjectRepo *repository.SubjectRepository,
	rdb *redis.Client,
	policy config.Policy,
	log zerolog.Logger,
) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		subjectRepo:  subjectRepo,
		rdb:          rdb,
		policy:       policy,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// FetchPaper returns the student view of a paper.
func (s *QuestionService) FetchPaper(ctx context.Context, ref model.PaperRef) (*model.Paper, error) {
	paper, _, err := s.load(ctx, ref, false)
	return paper, err
}

// LoadPaper returns the student view together with the full questions,
// answer keys included. Only the attempt runner and the grader call it.
func (s *QuestionService) LoadPaper(ctx context.Context, ref model.PaperRef) (*model.Paper, []model.Question, error) {
	return s.load(ctx, ref, true)
}

func (s *QuestionService) load(ctx context.Context, ref model.PaperRef, withKey bool) (*model.Paper, []model.Question, error) {
	ref, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	paper, questions, err := s.fromCache(ctx, ref, withKey)
	if err == nil {
		return paper, questions, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("paper", ref.Key()).Msg("Paper cache read failed, loading from database")
	}

	return s.Warm(ctx, ref)
}

// resolve fills in the subject of a set-only reference and checks that
// the subject and set agree.
func (s *QuestionService) resolve(ctx context.Context, ref model.PaperRef) (model.PaperRef, error) {
	if ref.SetID == nil {
		return ref, nil
	}
	set, err := s.subjectRepo.GetSet(ctx, *ref.SetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ref, ErrPaperNotFound
		}
		return ref, fmt.Errorf("get set: %w", err)
	}
	if ref.SubjectID != uuid.Nil && ref.SubjectID != set.SubjectID {
		return ref, ErrSetMismatch
	}
	ref.SubjectID = set.SubjectID
	return ref, nil
}

func (s *QuestionService) fromCache(ctx context.Context, ref model.PaperRef, withKey bool) (*model.Paper, []model.Question, error) {
	payloadKey := config.CacheKey.PaperPayloadKey(ref.Key())
	if !withKey {
		data, err := s.rdb.Get(ctx, payloadKey).Bytes()
		if err != nil {
			return nil, nil, err
		}
		var paper model.Paper
		if err := json.Unmarshal(data, &paper); err != nil {
			return nil, nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &paper, nil, nil
	}

	vals, err := s.rdb.MGet(ctx, payloadKey, config.CacheKey.PaperAnswerKey(ref.Key())).Result()
	if err != nil {
		return nil, nil, err
	}
	payload, ok1 := vals[0].(string)
	full, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, nil, redis.Nil
	}

	var paper model.Paper
	if err := json.Unmarshal([]byte(payload), &paper); err != nil {
		return nil, nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	var questions []model.Question
	if err := json.Unmarshal([]byte(full), &questions); err != nil {
		return nil, nil, fmt.Errorf("unmarshal answer key: %w", err)
	}
	return &paper, questions, nil
}

// Warm loads a paper from PostgreSQL into Redis and returns it.
func (s *QuestionService) Warm(ctx context.Context, ref model.PaperRef) (*model.Paper, []model.Question, error) {
	subject, err := s.subjectRepo.GetByID(ctx, ref.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrPaperNotFound
		}
		return nil, nil, fmt.Errorf("get subject: %w", err)
	}

	var set *model.QuestionSet
	if ref.SetID != nil {
		if set, err = s.subjectRepo.GetSet(ctx, *ref.SetID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, ErrPaperNotFound
			}
			return nil, nil, fmt.Errorf("get set: %w", err)
		}
	}

	questions, err := s.questionRepo.ListByPaper(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}

	paper := BuildPaper(ref, subject, set, questions, s.policy)

	payloadJSON, err := json.Marshal(paper)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	keyJSON, err := json.Marshal(questions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal answer key: %w", err)
	}

	// Cache both atomically via pipeline.
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.PaperPayloadKey(ref.Key()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.PaperAnswerKey(ref.Key()), keyJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		// The paper is still usable uncached.
		s.log.Warn().Err(err).Str("paper", ref.Key()).Msg("Failed to cache paper")
	} else {
		s.log.Debug().
			Str("paper", ref.Key()).
			Int("questions", len(questions)).
			Msg("Cache warmed")
	}

	return paper, questions, nil
}

// BuildPaper assembles the student view of questions. The timer length
// follows the policy and the question count.
func BuildPaper(ref model.PaperRef, subject *model.Subject, set *model.QuestionSet, questions []model.Question, p config.Policy) *model.Paper {
	sanitized := make([]model.StudentQuestion, len(questions))
	for i := range questions {
		sanitized[i] = questions[i].Sanitize()
	}
	paper := &model.Paper{
		Ref:             ref,
		SubjectName:     subject.Name,
		DurationSeconds: p.DurationSeconds(len(questions)),
		Questions:       sanitized,
	}
	if set != nil {
		paper.SetName = set.Name
	}
	return paper
}

// PrewarmAllCaches loads every subject and set into Redis on startup.
func (s *QuestionService) PrewarmAllCaches(ctx context.Context) error {
	subjects, err := s.subjectRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}
	sets, err := s.subjectRepo.ListSets(ctx)
	if err != nil {
		return fmt.Errorf("list sets: %w", err)
	}

	refs := make([]model.PaperRef, 0, len(subjects)+len(sets))
	for _, sub := range subjects {
		refs = append(refs, model.PaperRef{SubjectID: sub.ID})
	}
	for i := range sets {
		refs = append(refs, model.PaperRef{SubjectID: sets[i].SubjectID, SetID: &sets[i].ID})
	}

	if len(refs) == 0 {
		s.log.Info().Msg("No papers to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(refs)).Msg("Prewarming papers...")

	warmed := 0
	for _, ref := range refs {
		if _, _, err := s.Warm(ctx, ref); err != nil {
			s.log.Warn().Err(err).Str("paper", ref.Key()).Msg("Failed to warm paper, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(refs)).
		Msg("Prewarming complete")
	return nil
}

// RefreshCache re-caches a paper after its questions changed.
func (s *QuestionService) RefreshCache(ctx context.Context, ref model.PaperRef) error {
	ref, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}
	if _, _, err := s.Warm(ctx, ref); err != nil {
		return err
	}
	s.log.Info().Str("paper", ref.Key()).Msg("Cache refreshed")
	return nil
}

// invalidate drops the cached subject paper and, when the question belongs
// to a set, the set paper. The next fetch reloads them.
func (s *QuestionService) invalidate(ctx context.Context, refs ...model.PaperRef) {
	keys := make([]string, 0, 4*len(refs))
	for _, ref := range refs {
		subjectKey := model.PaperRef{SubjectID: ref.SubjectID}.Key()
		keys = append(keys,
			config.CacheKey.PaperPayloadKey(subjectKey),
			config.CacheKey.PaperAnswerKey(subjectKey),
		)
		if ref.SetID != nil {
			keys = append(keys,
				config.CacheKey.PaperPayloadKey(ref.Key()),
				config.CacheKey.PaperAnswerKey(ref.Key()),
			)
		}
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate paper cache")
	}
}

// ─── Admin question bank ────────────────────────────────────────────

// List returns the questions of a paper with their answer keys.
func (s *QuestionService) List(ctx context.Context, ref model.PaperRef) ([]model.Question, error) {
	ref, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByPaper(ctx, ref)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// Create validates and stores a new question.
func (s *QuestionService) Create(ctx context.Context, req *model.QuestionRequest) (*model.Question, error) {
	q, err := req.ToQuestion()
	if err != nil {
		return nil, err
	}
	if err := s.checkPaper(ctx, q); err != nil {
		return nil, err
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	s.invalidate(ctx, model.PaperRef{SubjectID: q.SubjectID, SetID: q.SetID})
	return q, nil
}

// Update replaces a question.
func (s *QuestionService) Update(ctx context.Context, id uuid.UUID, req *model.QuestionRequest) (*model.Question, error) {
	q, err := req.ToQuestion()
	if err != nil {
		return nil, err
	}
	old, err := s.questionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkPaper(ctx, q); err != nil {
		return nil, err
	}
	q.ID = id
	if err := s.questionRepo.Update(ctx, q); err != nil {
		return nil, err
	}
	s.invalidate(ctx,
		model.PaperRef{SubjectID: old.SubjectID, SetID: old.SetID},
		model.PaperRef{SubjectID: q.SubjectID, SetID: q.SetID},
	)
	return q, nil
}

// Delete removes a question.
func (s *QuestionService) Delete(ctx context.Context, id uuid.UUID) error {
	ref, err := s.questionRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, ref)
	return nil
}

func (s *QuestionService) checkPaper(ctx context.Context, q *model.Question) error {
	if _, err := s.subjectRepo.GetByID(ctx, q.SubjectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPaperNotFound
		}
		return err
	}
	if q.SetID != nil {
		if _, err := s.resolve(ctx, model.PaperRef{SubjectID: q.SubjectID, SetID: q.SetID}); err != nil {
			return err
		}
	}
	return nil
}
