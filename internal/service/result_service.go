package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/scoring"
)

// Result errors.
var (
	ErrNotOwner          = errors.New("attempt belongs to another user")
	ErrUnknownQuestion   = errors.New("submission references a question outside the paper")
	ErrDuplicateQuestion = errors.New("submission lists a question twice")
	ErrAlreadySubmitted  = errors.New("attempt already submitted")
)

// submittedTTL bounds how long the per-attempt submit latch is kept. Results
// themselves live in PostgreSQL; the latch only has to outlast the queue.
const submittedTTL = 7 * 24 * time.Hour

// QuestionLookup loads questions by id. *repository.QuestionRepository
// implements it.
type QuestionLookup interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error)
}

// ResultService records and reads attempt results. Save implements
// attempt.ResultStore.
type ResultService struct {
	resultRepo   *repository.ResultRepository
	questionRepo QuestionLookup
	questions    *QuestionService
	rdb          *redis.Client
	policy       config.Policy
	log          zerolog.Logger

	// dispatcher is wired after construction because it depends on the
	// service as its store.
	dispatcher *attempt.Dispatcher
}

// NewResultService creates a new ResultService.
func NewResultService(
	resultRepo *repository.ResultRepository,
	questionRepo QuestionLookup,
	questions *QuestionService,
	rdb *redis.Client,
	policy config.Policy,
	log zerolog.Logger,
) *ResultService {
	return &ResultService{
		resultRepo:   resultRepo,
		questionRepo: questionRepo,
		questions:    questions,
		rdb:          rdb,
		policy:       policy,
		log:          log.With().Str("component", "result_service").Logger(),
	}
}

// SetDispatcher sets the dispatcher used by client-side submissions.
func (s *ResultService) SetDispatcher(d *attempt.Dispatcher) {
	s.dispatcher = d
}

// Save latches the attempt and queues the result for persistence. The latch
// makes every attempt recordable once, whichever path submits it.
func (s *ResultService) Save(ctx context.Context, sub model.Submission) error {
	key := config.CacheKey.AttemptSubmittedKey(sub.AttemptID)
	ok, err := s.rdb.SetNX(ctx, key, sub.SubmittedAt.Unix(), submittedTTL).Result()
	if err != nil {
		return fmt.Errorf("latch submission: %w", err)
	}
	if !ok {
		return attempt.ErrAlreadyRecorded
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		s.rdb.Del(ctx, key)
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		// Release the latch so the submission can be retried.
		s.rdb.Del(ctx, key)
		return fmt.Errorf("queue result: %w", err)
	}
	return nil
}

// SubmitClientResult grades a result posted by a client that ran the attempt
// itself. The answers are graded again against the stored key; the totals
// the client sent are only compared and logged.
func (s *ResultService) SubmitClientResult(ctx context.Context, claims *Claims, req *model.SubmitResultRequest) (*model.Review, error) {
	ids := req.QuestionIDs
	if hasDuplicates(ids) {
		return nil, ErrDuplicateQuestion
	}
	byID, err := s.questionRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	questions := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok || q.SubjectID != req.SubjectID {
			return nil, ErrUnknownQuestion
		}
		if req.SetID != nil && (q.SetID == nil || *q.SetID != *req.SetID) {
			return nil, ErrUnknownQuestion
		}
		questions = append(questions, q)
	}

	answers := req.Answers
	if answers == nil {
		answers = model.AnswerSheet{}
	}

	result := scoring.Score(questions, answers, scoring.RulesFrom(s.policy))
	result.TimeTakenSeconds = clamp(req.TimeTakenSec, 0, s.policy.DurationSeconds(len(questions)))
	s.compareClaimed(req, result)

	trigger := req.Trigger
	if trigger == "" {
		trigger = model.TriggerManual
	}
	now := time.Now()
	sub := model.Submission{
		AttemptID:   req.AttemptID,
		UserID:      claims.UserID,
		UserName:    claims.Name,
		Email:       claims.Email,
		Paper:       model.PaperRef{SubjectID: req.SubjectID, SetID: req.SetID},
		SubjectName: req.SubjectName,
		Trigger:     trigger,
		Result:      result,
		Answers:     answers,
		QuestionIDs: ids,
		Violations:  req.Violations,
		StartedAt:   now.Add(-time.Duration(result.TimeTakenSeconds) * time.Second),
		SubmittedAt: now,
	}
	items := scoring.Review(questions, answers)

	if err := s.dispatcher.Dispatch(ctx, sub, items); err != nil {
		if errors.Is(err, attempt.ErrAlreadyRecorded) {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}

	return &model.Review{
		AttemptID:   sub.AttemptID,
		SubjectName: sub.SubjectName,
		Trigger:     trigger,
		Result:      result,
		Items:       items,
	}, nil
}

func (s *ResultService) compareClaimed(req *model.SubmitResultRequest, got model.ScoreResult) {
	if req.Correct == got.Correct && req.Wrong == got.Wrong && math.Abs(req.Score-got.Score) < 0.01 {
		return
	}
	s.log.Warn().
		Str("attempt_id", req.AttemptID.String()).
		Int("claimed_correct", req.Correct).
		Int("graded_correct", got.Correct).
		Float64("claimed_score", req.Score).
		Float64("graded_score", got.Score).
		Msg("Client result differs from server grading")
}

// Review rebuilds the review of a stored result.
func (s *ResultService) Review(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Review, error) {
	detail, err := s.resultRepo.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if detail.UserID != userID {
		return nil, ErrNotOwner
	}

	byID, err := s.questionRepo.ListByIDs(ctx, detail.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	// Questions deleted since the attempt are left out of the review.
	questions := make([]model.Question, 0, len(detail.QuestionIDs))
	answers := model.AnswerSheet{}
	for i, id := range detail.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			continue
		}
		if a, ok := detail.Answers[i]; ok {
			answers[len(questions)] = a
		}
		questions = append(questions, q)
	}

	return &model.Review{
		AttemptID:   detail.AttemptID,
		SubjectName: detail.SubjectName,
		Trigger:     detail.Trigger,
		Result:      detail.ScoreResult(),
		Items:       scoring.Review(questions, answers),
	}, nil
}

// History lists the results of one user.
func (s *ResultService) History(ctx context.Context, userID, page, perPage int) ([]model.ResultSummary, *response.Pagination, error) {
	return s.List(ctx, model.ResultFilter{UserID: &userID}, page, perPage)
}

// List lists results matching filter.
func (s *ResultService) List(ctx context.Context, filter model.ResultFilter, page, perPage int) ([]model.ResultSummary, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)

	results, total, err := s.resultRepo.List(ctx, filter, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	return results, response.NewPagination(page, perPage, total), nil
}

func hasDuplicates(ids []uuid.UUID) bool {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
