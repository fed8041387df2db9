package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smquiz/quiz-backend/internal/model"
)

// ResultRepository reads submitted attempt results. Rows are written in
// bulk by the result worker.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

const summaryColumns = `
	ar.attempt_id, ar.user_id, u.name, ar.subject_id, ar.set_id, ar.subject_name, ar.trigger,
	ar.score, ar.max_score, ar.percentage, ar.attempted, ar.correct, ar.wrong, ar.unattempted, ar.total, ar.pass,
	ar.time_taken, ar.violations, ar.submitted_at`

func scanSummary(row pgx.Row, extra ...any) (model.ResultSummary, error) {
	var s model.ResultSummary
	dest := []any{
		&s.AttemptID, &s.UserID, &s.UserName, &s.SubjectID, &s.SetID, &s.SubjectName, &s.Trigger,
		&s.Score, &s.MaxScore, &s.Percentage, &s.Attempted, &s.Correct, &s.Wrong, &s.Unattempted, &s.Total, &s.Pass,
		&s.TimeTaken, &s.Violations, &s.SubmittedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return s, err
}

// List retrieves results matching filter, newest first, with pagination.
func (r *ResultRepository) List(ctx context.Context, filter model.ResultFilter, page, perPage int) ([]model.ResultSummary, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM attempt_results ar
		JOIN users u ON ar.user_id = u.id
		WHERE TRUE
	`
	var args []any

	if filter.SubjectID != nil {
		args = append(args, *filter.SubjectID)
		baseQuery += fmt.Sprintf(" AND ar.subject_id = $%d", len(args))
	}
	if filter.SetID != nil {
		args = append(args, *filter.SetID)
		baseQuery += fmt.Sprintf(" AND ar.set_id = $%d", len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		baseQuery += fmt.Sprintf(" AND ar.user_id = $%d", len(args))
	}
	if filter.Passed != nil {
		args = append(args, *filter.Passed)
		baseQuery += fmt.Sprintf(" AND ar.pass = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + summaryColumns + baseQuery + `
		ORDER BY ar.submitted_at DESC
		LIMIT $` + fmt.Sprintf("%d", len(args)+1) + ` OFFSET $` + fmt.Sprintf("%d", len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := []model.ResultSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, s)
	}
	return results, total, rows.Err()
}

// Get retrieves one result with its answers.
func (r *ResultRepository) Get(ctx context.Context, attemptID uuid.UUID) (*model.ResultDetail, error) {
	var (
		answers []byte
		d       model.ResultDetail
	)
	row := r.pool.QueryRow(ctx,
		`SELECT `+summaryColumns+`, ar.answers, ar.question_ids, ar.started_at
		 FROM attempt_results ar
		 JOIN users u ON ar.user_id = u.id
		 WHERE ar.attempt_id = $1`, attemptID)

	summary, err := scanSummary(row, &answers, &d.QuestionIDs, &d.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.ResultSummary = summary
	if err := json.Unmarshal(answers, &d.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return &d, nil
}
