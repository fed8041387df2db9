package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smquiz/quiz-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, subject_id, set_id, type, title, code, options, answer,
	marks, negative_marks, explanation, position, created_at, updated_at`

// ListByPaper retrieves the questions of a paper in attempt order: a set's
// questions when the set is given, else every question of the subject.
func (r *QuestionRepository) ListByPaper(ctx context.Context, ref model.PaperRef) ([]model.Question, error) {
	if ref.SetID != nil {
		return r.query(ctx,
			`SELECT `+questionColumns+` FROM questions
			 WHERE set_id = $1 ORDER BY position, created_at`, *ref.SetID)
	}
	return r.query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE subject_id = $1 ORDER BY position, created_at`, ref.SubjectID)
}

// ListByIDs retrieves the given questions keyed by id.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	qs, err := r.query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]model.Question, len(qs))
	for _, q := range qs {
		out[q.ID] = q
	}
	return out, nil
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	qs, err := r.query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, ErrNotFound
	}
	return &qs[0], nil
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	options, code, answer, err := model.EncodeBody(q.Body)
	if err != nil {
		return err
	}
	if options == nil {
		options = []string{}
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (subject_id, set_id, type, title, code, options, answer,
		                        marks, negative_marks, explanation, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		q.SubjectID, q.SetID, q.Type(), q.Title, code, options, []byte(answer),
		q.Marks, q.NegativeMarks, q.Explanation, q.Position,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// Update replaces a question in place.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	options, code, answer, err := model.EncodeBody(q.Body)
	if err != nil {
		return err
	}
	if options == nil {
		options = []string{}
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE questions
		 SET subject_id = $2, set_id = $3, type = $4, title = $5, code = $6, options = $7,
		     answer = $8, marks = $9, negative_marks = $10, explanation = $11, position = $12,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		q.ID, q.SubjectID, q.SetID, q.Type(), q.Title, code, options, []byte(answer),
		q.Marks, q.NegativeMarks, q.Explanation, q.Position,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes a question and returns the paper it belonged to.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) (model.PaperRef, error) {
	var ref model.PaperRef
	err := r.pool.QueryRow(ctx,
		`DELETE FROM questions WHERE id = $1 RETURNING subject_id, set_id`, id,
	).Scan(&ref.SubjectID, &ref.SetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ref, ErrNotFound
	}
	return ref, err
}

func (r *QuestionRepository) query(ctx context.Context, sql string, args ...any) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func scanQuestion(row pgx.Row) (model.Question, error) {
	var (
		q       model.Question
		qtype   model.QuestionType
		code    *model.CodeSnippet
		options []string
		answer  []byte
	)
	err := row.Scan(&q.ID, &q.SubjectID, &q.SetID, &qtype, &q.Title, &code, &options, &answer,
		&q.Marks, &q.NegativeMarks, &q.Explanation, &q.Position, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return q, err
	}
	q.Body, err = model.DecodeBody(qtype, options, code, answer)
	return q, err
}
