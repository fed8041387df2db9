package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
)

// Attempt errors.
var (
	ErrAttemptActive = errors.New("user already has an open attempt")
	ErrNotSubmitted  = errors.New("attempt not submitted yet")
)

// AttemptService opens server-run attempts and looks them up for their owners.
type AttemptService struct {
	registry   *attempt.Registry
	questions  *QuestionService
	results    *ResultService
	dispatcher *attempt.Dispatcher
	journal    *RedisJournal
	rdb        *redis.Client
	policy     config.Policy
	idle       time.Duration
	log        zerolog.Logger
}

// unlockTimeout bounds the lock release, which runs on the session
// goroutine.
const unlockTimeout = time.Second

// releaseLock deletes the active-attempt lock only while it still names the
// given attempt.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewAttemptService creates a new AttemptService. idle is how long an
// attempt may sit in the instructions phase before it is dropped.
func NewAttemptService(
	registry *attempt.Registry,
	questions *QuestionService,
	results *ResultService,
	dispatcher *attempt.Dispatcher,
	journal *RedisJournal,
	rdb *redis.Client,
	policy config.Policy,
	idle time.Duration,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		registry:   registry,
		questions:  questions,
		results:    results,
		dispatcher: dispatcher,
		journal:    journal,
		rdb:        rdb,
		policy:     policy,
		idle:       idle,
		log:        log.With().Str("component", "attempt_service").Logger(),
	}
}

// Create opens a new attempt in the instructions phase.
func (s *AttemptService) Create(ctx context.Context, claims *Claims, req *model.CreateAttemptRequest) (*model.AttemptCreated, error) {
	if sess, ok := s.registry.Active(claims.UserID); ok {
		s.log.Debug().Str("attempt_id", sess.ID().String()).Int("user_id", claims.UserID).Msg("Attempt already open")
		return nil, ErrAttemptActive
	}

	paper, questions, err := s.questions.LoadPaper(ctx, model.PaperRef{SubjectID: req.SubjectID, SetID: req.SetID})
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	lockKey := config.CacheKey.UserActiveAttemptKey(claims.UserID)
	// The lock covers other server instances and expires on its own if this
	// process dies mid-attempt.
	ttl := s.idle + time.Duration(paper.DurationSeconds)*time.Second + s.policy.SessionGrace
	locked, err := s.rdb.SetNX(ctx, lockKey, id.String(), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	if !locked {
		return nil, ErrAttemptActive
	}

	sess, err := s.registry.Open(attempt.Options{
		ID: id,
		Candidate: attempt.Candidate{
			ID:    claims.UserID,
			Name:  claims.Name,
			Email: claims.Email,
		},
		Paper:      paper.Ref,
		Title:      paper.DisplayName(),
		Questions:  questions,
		Policy:     s.policy,
		Journal:    s.journal,
		Dispatcher: s.dispatcher,
		Logger:     s.log,
		OnSubmitted: func(sess *attempt.Session) {
			s.unlock(claims.UserID, sess.ID())
		},
	})
	if err != nil {
		s.unlock(claims.UserID, id)
		if errors.Is(err, attempt.ErrAttemptActive) {
			return nil, ErrAttemptActive
		}
		return nil, err
	}

	// Attempts that end without submission release the lock too.
	go func() {
		<-sess.Done()
		s.unlock(claims.UserID, id)
		s.journal.Forget(id.String())
	}()

	snap, err := sess.Snapshot()
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", id.String()).
		Int("user_id", claims.UserID).
		Str("paper", paper.Ref.Key()).
		Int("questions", len(questions)).
		Msg("Attempt opened")

	return &model.AttemptCreated{
		AttemptID: id,
		Snapshot:  snap,
		StreamURL: fmt.Sprintf("/ws/v1/student/attempts/%s/stream", id),
	}, nil
}

// unlock releases the user's attempt lock if it still names attemptID.
func (s *AttemptService) unlock(userID int, attemptID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	key := config.CacheKey.UserActiveAttemptKey(userID)
	if err := releaseLock.Run(ctx, s.rdb, []string{key}, attemptID.String()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Failed to release attempt lock")
	}
}

// Session returns the live session of an attempt owned by userID.
func (s *AttemptService) Session(id uuid.UUID, userID int) (*attempt.Session, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.Candidate().ID != userID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// IsLive reports whether id names an attempt run by this server.
func (s *AttemptService) IsLive(id uuid.UUID) bool {
	_, err := s.registry.Get(id)
	return err == nil
}

// Snapshot returns the current view of a live attempt.
func (s *AttemptService) Snapshot(id uuid.UUID, userID int) (*model.Snapshot, error) {
	sess, err := s.Session(id, userID)
	if err != nil {
		return nil, err
	}
	snap, err := sess.Snapshot()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Review returns the graded review of an attempt. Attempts no longer held
// in memory are rebuilt from the stored result.
func (s *AttemptService) Review(ctx context.Context, id uuid.UUID, userID int) (*model.Review, error) {
	sess, err := s.Session(id, userID)
	switch {
	case err == nil:
		review, err := sess.Review()
		if err != nil {
			return s.storedReview(ctx, id, userID)
		}
		if review == nil {
			return nil, ErrNotSubmitted
		}
		return review, nil
	case errors.Is(err, attempt.ErrAttemptNotFound):
		return s.storedReview(ctx, id, userID)
	default:
		return nil, err
	}
}

func (s *AttemptService) storedReview(ctx context.Context, id uuid.UUID, userID int) (*model.Review, error) {
	review, err := s.results.Review(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		// Submitted but still queued for persistence, or never existed.
		return nil, attempt.ErrAttemptNotFound
	}
	return review, err
}
