package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
)

// MonitorService orchestrates the live subject monitor.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	subjectRepo *repository.SubjectRepository
	registry    *attempt.Registry
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, subjectRepo *repository.SubjectRepository, registry *attempt.Registry) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo, subjectRepo: subjectRepo, registry: registry}
}

// LiveAttempt is one attempt held by this server for the monitored subject.
type LiveAttempt struct {
	AttemptID        uuid.UUID   `json:"attempt_id"`
	UserID           int         `json:"user_id"`
	Name             string      `json:"name"`
	Title            string      `json:"title"`
	Phase            model.Phase `json:"phase"`
	TotalQuestions   int         `json:"total_questions"`
	AnsweredCount    int64       `json:"answered_count"`
	ViolationCount   int64       `json:"violation_count"`
	RemainingSeconds int         `json:"remaining_seconds"`
	OpenedAt         time.Time   `json:"opened_at"`
}

// ProgressSnapshot holds answered and violation counts for every attempt of a subject.
type ProgressSnapshot struct {
	AnsweredCounts  map[uuid.UUID]int64 `json:"answered_counts"`
	ViolationCounts map[uuid.UUID]int64 `json:"violation_counts"`
	TotalViolations int64               `json:"total_violations"`
	TotalSubmitted  int64               `json:"total_submitted"`
}

// Subject returns the monitored subject.
func (s *MonitorService) Subject(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	return s.subjectRepo.GetByID(ctx, id)
}

// LiveAttempts lists the attempts this server holds for the subject.
func (s *MonitorService) LiveAttempts(subjectID uuid.UUID) []LiveAttempt {
	var out []LiveAttempt
	for _, sess := range s.registry.List() {
		if sess.Paper().SubjectID != subjectID {
			continue
		}
		snap, err := sess.Snapshot()
		if err != nil {
			continue // closed meanwhile
		}
		out = append(out, LiveAttempt{
			AttemptID:        sess.ID(),
			UserID:           sess.Candidate().ID,
			Name:             sess.Candidate().Name,
			Title:            sess.Title(),
			Phase:            snap.Phase,
			TotalQuestions:   len(snap.Questions),
			AnsweredCount:    int64(len(snap.Answers)),
			ViolationCount:   int64(snap.ViolationCount),
			RemainingSeconds: snap.RemainingSeconds,
			OpenedAt:         sess.CreatedAt(),
		})
	}
	return out
}

// GetProgress returns persisted answered and violation counts concurrently.
func (s *MonitorService) GetProgress(ctx context.Context, subjectID uuid.UUID) (*ProgressSnapshot, error) {
	snapshot := &ProgressSnapshot{
		AnsweredCounts:  make(map[uuid.UUID]int64),
		ViolationCounts: make(map[uuid.UUID]int64),
	}

	var (
		answered, violations       map[uuid.UUID]int64
		submitted                  int64
		answeredErr, violationsErr error
		submittedErr               error
		wg                         sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		answered, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, subjectID)
	}()
	go func() {
		defer wg.Done()
		violations, violationsErr = s.monitorRepo.GetViolationCounts(ctx, subjectID)
	}()
	go func() {
		defer wg.Done()
		submitted, submittedErr = s.monitorRepo.GetSubmittedCount(ctx, subjectID)
	}()
	wg.Wait()

	// Answered counts are critical; the rest are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}
	if answered != nil {
		snapshot.AnsweredCounts = answered
	}
	if violationsErr == nil && violations != nil {
		snapshot.ViolationCounts = violations
		for _, n := range violations {
			snapshot.TotalViolations += n
		}
	}
	if submittedErr == nil {
		snapshot.TotalSubmitted = submitted
	}
	return snapshot, nil
}
