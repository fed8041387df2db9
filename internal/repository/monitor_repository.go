package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides data access for the live subject monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAnsweredCounts returns the number of answered questions per attempt
// for every attempt with at least one answer persisted in the subject.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, subjectID uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.countByAttempt(ctx,
		`SELECT attempt_id, COUNT(*)
		 FROM attempt_answers
		 WHERE subject_id = $1
		 GROUP BY attempt_id`,
		subjectID,
	)
}

// GetViolationCounts returns the number of counted violations per attempt in the subject.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, subjectID uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.countByAttempt(ctx,
		`SELECT attempt_id, COUNT(*)
		 FROM attempt_violations
		 WHERE subject_id = $1 AND counted
		 GROUP BY attempt_id`,
		subjectID,
	)
}

// GetSubmittedCount returns how many results have been stored for the subject.
func (r *MonitorRepository) GetSubmittedCount(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempt_results WHERE subject_id = $1`, subjectID,
	).Scan(&n)
	return n, err
}

func (r *MonitorRepository) countByAttempt(ctx context.Context, sql string, subjectID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx, sql, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}
