package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
)

// ResultWorker persists submitted results from the results queue into
// attempt_results. Each attempt is inserted once; repeats are ignored.
type ResultWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[model.Submission]
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{
		pool: pool,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
	w.loop = &batchLoop[model.Submission]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistResultsQueue,
		log:   w.log,
		flush: w.flushSafe,
	}
	return w
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")
	w.loop.run(ctx)
}

// flushSafe attempts a bulk insert, then row-by-row inserts, then requeues.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.Submission) {
	if len(batch) == 0 {
		return
	}
	err := w.bulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Results persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk result insert failed, using fallback")

	var requeue []*model.Submission
	for _, sub := range batch {
		if err := w.insertSingle(ctx, sub); err != nil {
			if isPermanent(err) {
				w.log.Error().Err(err).Str("attempt_id", sub.AttemptID.String()).Msg("Dropping result that cannot be stored")
				continue
			}
			w.log.Error().Err(err).Str("attempt_id", sub.AttemptID.String()).Msg("insertSingle failed, requeueing")
			requeue = append(requeue, sub)
		}
	}
	if len(requeue) > 0 {
		w.loop.requeue(ctx, requeue)
	}
}

// resultColumns holds one batch as parallel arrays for UNNEST.
type resultColumns struct {
	attemptIDs   []pgtype.UUID
	userIDs      []int32
	subjectIDs   []pgtype.UUID
	setIDs       []pgtype.UUID
	subjectNames []string
	triggers     []string
	totals       []int32
	attempted    []int32
	unattempted  []int32
	correct      []int32
	wrong        []int32
	scores       []float64
	maxScores    []float64
	percentages  []float64
	passes       []bool
	timeTaken    []int32
	violations   []int32
	answers      []string
	questionIDs  []string
	startedAt    []pgtype.Timestamptz
	submittedAt  []pgtype.Timestamptz
}

func pgUUID(id [16]byte) pgtype.UUID { return pgtype.UUID{Bytes: id, Valid: true} }

func buildResultColumns(batch []*model.Submission) (*resultColumns, error) {
	n := len(batch)
	c := &resultColumns{
		attemptIDs: make([]pgtype.UUID, 0, n), userIDs: make([]int32, 0, n),
		subjectIDs: make([]pgtype.UUID, 0, n), setIDs: make([]pgtype.UUID, 0, n),
		subjectNames: make([]string, 0, n), triggers: make([]string, 0, n),
		totals: make([]int32, 0, n), attempted: make([]int32, 0, n),
		unattempted: make([]int32, 0, n), correct: make([]int32, 0, n),
		wrong: make([]int32, 0, n), scores: make([]float64, 0, n),
		maxScores: make([]float64, 0, n), percentages: make([]float64, 0, n),
		passes: make([]bool, 0, n), timeTaken: make([]int32, 0, n),
		violations: make([]int32, 0, n), answers: make([]string, 0, n),
		questionIDs: make([]string, 0, n), startedAt: make([]pgtype.Timestamptz, 0, n),
		submittedAt: make([]pgtype.Timestamptz, 0, n),
	}

	for _, s := range batch {
		answers, err := json.Marshal(s.Answers)
		if err != nil {
			return nil, fmt.Errorf("marshal answers: %w", err)
		}
		qids, err := json.Marshal(s.QuestionIDs)
		if err != nil {
			return nil, fmt.Errorf("marshal question ids: %w", err)
		}

		setID := pgtype.UUID{}
		if s.Paper.SetID != nil {
			setID = pgUUID(*s.Paper.SetID)
		}
		r := s.Result

		c.attemptIDs = append(c.attemptIDs, pgUUID(s.AttemptID))
		c.userIDs = append(c.userIDs, int32(s.UserID))
		c.subjectIDs = append(c.subjectIDs, pgUUID(s.Paper.SubjectID))
		c.setIDs = append(c.setIDs, setID)
		c.subjectNames = append(c.subjectNames, s.SubjectName)
		c.triggers = append(c.triggers, string(s.Trigger))
		c.totals = append(c.totals, int32(r.Total))
		c.attempted = append(c.attempted, int32(r.Attempted))
		c.unattempted = append(c.unattempted, int32(r.Unattempted))
		c.correct = append(c.correct, int32(r.Correct))
		c.wrong = append(c.wrong, int32(r.Wrong))
		c.scores = append(c.scores, r.Score)
		c.maxScores = append(c.maxScores, r.MaxScore)
		c.percentages = append(c.percentages, r.Percentage)
		c.passes = append(c.passes, r.Pass)
		c.timeTaken = append(c.timeTaken, int32(r.TimeTakenSeconds))
		c.violations = append(c.violations, int32(s.Violations))
		c.answers = append(c.answers, string(answers))
		c.questionIDs = append(c.questionIDs, string(qids))
		c.startedAt = append(c.startedAt, pgtype.Timestamptz{Time: s.StartedAt, Valid: !s.StartedAt.IsZero()})
		c.submittedAt = append(c.submittedAt, pgtype.Timestamptz{Time: s.SubmittedAt, Valid: true})
	}
	return c, nil
}

const insertResultsSQL = `
	INSERT INTO attempt_results (
		attempt_id, user_id, subject_id, set_id, subject_name, trigger,
		total, attempted, unattempted, correct, wrong,
		score, max_score, percentage, pass, time_taken, violations,
		answers, question_ids, started_at, submitted_at
	)
	SELECT
		u.attempt_id, u.user_id, u.subject_id, u.set_id, u.subject_name, u.trigger,
		u.total, u.attempted, u.unattempted, u.correct, u.wrong,
		u.score, u.max_score, u.percentage, u.pass, u.time_taken, u.violations,
		u.answers::jsonb,
		ARRAY(SELECT jsonb_array_elements_text(u.question_ids::jsonb)::uuid),
		COALESCE(u.started_at, u.submitted_at), u.submitted_at
	FROM UNNEST(
		$1::uuid[], $2::int[], $3::uuid[], $4::uuid[], $5::text[], $6::text[],
		$7::int[], $8::int[], $9::int[], $10::int[], $11::int[],
		$12::float8[], $13::float8[], $14::float8[], $15::bool[], $16::int[], $17::int[],
		$18::text[], $19::text[], $20::timestamptz[], $21::timestamptz[]
	) AS u (
		attempt_id, user_id, subject_id, set_id, subject_name, trigger,
		total, attempted, unattempted, correct, wrong,
		score, max_score, percentage, pass, time_taken, violations,
		answers, question_ids, started_at, submitted_at
	)
	ON CONFLICT (attempt_id) DO NOTHING
`

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*model.Submission) error {
	c, err := buildResultColumns(batch)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx, insertResultsSQL,
		c.attemptIDs, c.userIDs, c.subjectIDs, c.setIDs, c.subjectNames, c.triggers,
		c.totals, c.attempted, c.unattempted, c.correct, c.wrong,
		c.scores, c.maxScores, c.percentages, c.passes, c.timeTaken, c.violations,
		c.answers, c.questionIDs, c.startedAt, c.submittedAt,
	)
	return err
}

// insertSingle reuses the bulk statement with a batch of one, so a bad row
// fails alone.
func (w *ResultWorker) insertSingle(ctx context.Context, sub *model.Submission) error {
	return w.bulkInsert(ctx, []*model.Submission{sub})
}
