package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
)

// AnswerWorker keeps attempt_answers in step with live attempts so the
// monitor can show progress. Only the latest answer per question is kept.
type AnswerWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[model.AnswerEvent]
	log  zerolog.Logger
}

func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	w := &AnswerWorker{
		pool: pool,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
	w.loop = &batchLoop[model.AnswerEvent]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistAnswersQueue,
		log:   w.log,
		flush: w.flushSafe,
	}
	return w
}

func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnswerWorker started")
	w.loop.run(ctx)
}

type answerKey struct {
	attemptID uuid.UUID
	index     int
}

// latestAnswers drops empty events and keeps the most recent event for each
// (attempt, question) pair. Order of first appearance is preserved.
func latestAnswers(batch []*model.AnswerEvent) []*model.AnswerEvent {
	pos := make(map[answerKey]int, len(batch))
	out := make([]*model.AnswerEvent, 0, len(batch))
	for _, ev := range batch {
		if ev.Answer == nil {
			continue
		}
		k := answerKey{ev.AttemptID, ev.QuestionIndex}
		if i, ok := pos[k]; ok {
			if !ev.RecordedAt.Before(out[i].RecordedAt) {
				out[i] = ev
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, ev)
	}
	return out
}

func (w *AnswerWorker) flushSafe(ctx context.Context, batch []*model.AnswerEvent) {
	events := latestAnswers(batch)
	if len(events) == 0 {
		return
	}

	if err := w.bulkUpsert(ctx, events); err != nil {
		w.log.Warn().Err(err).Int("count", len(events)).Msg("Bulk answer upsert failed, using fallback")

		var requeue []*model.AnswerEvent
		for _, ev := range events {
			if err := w.bulkUpsert(ctx, []*model.AnswerEvent{ev}); err != nil {
				if isPermanent(err) {
					w.log.Error().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Dropping answer that cannot be stored")
					continue
				}
				requeue = append(requeue, ev)
			}
		}
		if len(requeue) > 0 {
			w.loop.requeue(ctx, requeue)
		}
	}
}

// bulkUpsert writes events, which must not repeat an (attempt, question) pair.
func (w *AnswerWorker) bulkUpsert(ctx context.Context, events []*model.AnswerEvent) error {
	n := len(events)
	attemptIDs := make([]uuid.UUID, 0, n)
	indexes := make([]int32, 0, n)
	userIDs := make([]int32, 0, n)
	subjectIDs := make([]uuid.UUID, 0, n)
	questionIDs := make([]uuid.UUID, 0, n)
	answers := make([]string, 0, n)
	recorded := make([]time.Time, 0, n)

	for _, ev := range events {
		raw, err := json.Marshal(ev.Answer)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, ev.AttemptID)
		indexes = append(indexes, int32(ev.QuestionIndex))
		userIDs = append(userIDs, int32(ev.UserID))
		subjectIDs = append(subjectIDs, ev.SubjectID)
		questionIDs = append(questionIDs, ev.QuestionID)
		answers = append(answers, string(raw))
		recorded = append(recorded, ev.RecordedAt)
	}

	query := `
		INSERT INTO attempt_answers (attempt_id, question_index, user_id, subject_id, question_id, answer, updated_at)
		SELECT u.attempt_id, u.question_index, u.user_id, u.subject_id, u.question_id, u.answer::jsonb, u.updated_at
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::int[],
			$4::uuid[],
			$5::uuid[],
			$6::text[],
			$7::timestamptz[]
		) AS u (attempt_id, question_index, user_id, subject_id, question_id, answer, updated_at)
		ON CONFLICT (attempt_id, question_index) DO UPDATE
		SET answer = EXCLUDED.answer,
		    question_id = EXCLUDED.question_id,
		    updated_at = EXCLUDED.updated_at
		WHERE attempt_answers.updated_at <= EXCLUDED.updated_at
	`
	_, err := w.pool.Exec(ctx, query, attemptIDs, indexes, userIDs, subjectIDs, questionIDs, answers, recorded)
	return err
}
