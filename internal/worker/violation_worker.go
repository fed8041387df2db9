package worker

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
)

var violationColumns = []string{"attempt_id", "user_id", "subject_id", "kind", "counted", "count", "recorded_at"}

// ViolationWorker copies integrity events from the violations queue into
// attempt_violations.
type ViolationWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[model.ViolationEvent]
	log  zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	w := &ViolationWorker{
		pool: pool,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
	w.loop = &batchLoop[model.ViolationEvent]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistViolationsQueue,
		log:   w.log,
		flush: w.flushSafe,
	}
	return w
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")
	w.loop.run(ctx)
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*model.ViolationEvent) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func violationRow(ev *model.ViolationEvent) []any {
	return []any{ev.AttemptID, ev.UserID, ev.SubjectID, ev.Kind, ev.Counted, ev.Count, ev.RecordedAt}
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*model.ViolationEvent) error {
	rows := make([][]any, 0, len(batch))
	for _, ev := range batch {
		rows = append(rows, violationRow(ev))
	}
	_, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_violations"},
		violationColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*model.ViolationEvent) {
	var requeue []*model.ViolationEvent

	for _, ev := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO attempt_violations (attempt_id, user_id, subject_id, kind, counted, count, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			violationRow(ev)...,
		)
		if err == nil {
			continue
		}
		if isPermanent(err) {
			w.log.Error().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Dropping violation that cannot be stored")
			continue
		}
		w.log.Error().Err(err).Int("user_id", ev.UserID).Msg("Insert failed, requeueing")
		requeue = append(requeue, ev)
	}

	if len(requeue) > 0 {
		w.loop.requeue(ctx, requeue)
	}
}
