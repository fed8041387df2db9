package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smquiz/quiz-backend/internal/model"
)

// SubjectRepository reads subjects and question sets.
type SubjectRepository struct {
	pool *pgxpool.Pool
}

func NewSubjectRepository(pool *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{pool: pool}
}

// Create inserts a subject, or returns the existing one with the same name.
func (r *SubjectRepository) Create(ctx context.Context, s *model.Subject) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO subjects (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, created_at`,
		s.Name).Scan(&s.ID, &s.CreatedAt)
}

// CreateSet inserts a question set, or returns the existing one.
func (r *SubjectRepository) CreateSet(ctx context.Context, qs *model.QuestionSet) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO question_sets (subject_id, name) VALUES ($1, $2)
		 ON CONFLICT (subject_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, created_at`,
		qs.SubjectID, qs.Name).Scan(&qs.ID, &qs.CreatedAt)
}

func (r *SubjectRepository) GetAll(ctx context.Context) ([]model.Subject, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM subjects ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		var s model.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

func (r *SubjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	var s model.Subject
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubjectRepository) GetSet(ctx context.Context, id uuid.UUID) (*model.QuestionSet, error) {
	var qs model.QuestionSet
	err := r.pool.QueryRow(ctx,
		`SELECT id, subject_id, name, created_at FROM question_sets WHERE id = $1`, id,
	).Scan(&qs.ID, &qs.SubjectID, &qs.Name, &qs.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &qs, nil
}

// ListSets returns every question set, used to prewarm the paper cache.
func (r *SubjectRepository) ListSets(ctx context.Context) ([]model.QuestionSet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject_id, name, created_at FROM question_sets ORDER BY subject_id, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []model.QuestionSet
	for rows.Next() {
		var qs model.QuestionSet
		if err := rows.Scan(&qs.ID, &qs.SubjectID, &qs.Name, &qs.CreatedAt); err != nil {
			return nil, err
		}
		sets = append(sets, qs)
	}
	return sets, rows.Err()
}
