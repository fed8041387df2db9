package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
)

const (
	journalBuffer  = 1024
	journalTimeout = 2 * time.Second
)

// MonitorEvent is published on a subject's monitor channel and forwarded
// as-is to attached SSE clients.
type MonitorEvent struct {
	Type       string             `json:"type"`
	AttemptID  string             `json:"attempt_id"`
	UserID     int                `json:"user_id"`
	Name       string             `json:"name,omitempty"`
	Title      string             `json:"title,omitempty"`
	Questions  int                `json:"total_questions,omitempty"`
	Index      *int               `json:"question_index,omitempty"`
	Kind       string             `json:"kind,omitempty"`
	Count      int                `json:"count,omitempty"`
	Trigger    model.Trigger      `json:"trigger,omitempty"`
	Result     *model.ScoreResult `json:"result,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// RedisJournal implements attempt.Journal. Answers and violations are queued
// for the persistence workers and every event is published to the monitor
// channel. Work is handed to a background goroutine so sessions never wait
// on Redis; when the buffer is full events are dropped and logged.
type RedisJournal struct {
	rdb   *redis.Client
	jobs  chan func(context.Context)
	names sync.Map // attempt id -> student name, for monitor events
	log   zerolog.Logger
}

// NewRedisJournal creates a RedisJournal. Call Run to start it.
func NewRedisJournal(rdb *redis.Client, log zerolog.Logger) *RedisJournal {
	return &RedisJournal{
		rdb:  rdb,
		jobs: make(chan func(context.Context), journalBuffer),
		log:  log.With().Str("component", "attempt_journal").Logger(),
	}
}

// Run drains queued work until ctx is cancelled, then flushes what is left.
func (j *RedisJournal) Run(ctx context.Context) {
	j.log.Info().Msg("Attempt journal started")
	for {
		select {
		case <-ctx.Done():
			j.drain()
			j.log.Info().Msg("Attempt journal stopped")
			return
		case job := <-j.jobs:
			j.exec(context.Background(), job)
		}
	}
}

func (j *RedisJournal) drain() {
	for {
		select {
		case job := <-j.jobs:
			j.exec(context.Background(), job)
		default:
			return
		}
	}
}

func (j *RedisJournal) exec(parent context.Context, job func(context.Context)) {
	ctx, cancel := context.WithTimeout(parent, journalTimeout)
	defer cancel()
	job(ctx)
}

func (j *RedisJournal) enqueue(job func(context.Context)) {
	select {
	case j.jobs <- job:
	default:
		j.log.Warn().Msg("Journal buffer full, dropping event")
	}
}

func (j *RedisJournal) publish(ctx context.Context, ev MonitorEvent, subject string) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := j.rdb.Publish(ctx, subject, payload).Err(); err != nil {
		j.log.Warn().Err(err).Str("type", ev.Type).Msg("Monitor publish failed")
	}
}

func (j *RedisJournal) push(ctx context.Context, queue string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		j.log.Error().Err(err).Str("queue", queue).Msg("Failed to marshal queue item")
		return
	}
	if err := j.rdb.RPush(ctx, queue, payload).Err(); err != nil {
		j.log.Error().Err(err).Str("queue", queue).Msg("Failed to queue item")
	}
}

func (j *RedisJournal) name(attemptID string) string {
	if v, ok := j.names.Load(attemptID); ok {
		return v.(string)
	}
	return ""
}

// Started announces the attempt on the monitor.
func (j *RedisJournal) Started(info attempt.Info) {
	id := info.AttemptID.String()
	j.names.Store(id, info.Candidate.Name)
	channel := config.CacheKey.SubjectMonitorChannel(info.Paper.SubjectID)
	j.enqueue(func(ctx context.Context) {
		j.publish(ctx, MonitorEvent{
			Type:       "joined",
			AttemptID:  id,
			UserID:     info.Candidate.ID,
			Name:       info.Candidate.Name,
			Title:      info.Title,
			Questions:  info.Questions,
			OccurredAt: info.StartedAt,
		}, channel)
	})
}

// Answered queues the answer for persistence.
func (j *RedisJournal) Answered(ev model.AnswerEvent) {
	channel := config.CacheKey.SubjectMonitorChannel(ev.SubjectID)
	j.enqueue(func(ctx context.Context) {
		j.push(ctx, config.WorkerKey.PersistAnswersQueue, ev)
		index := ev.QuestionIndex
		j.publish(ctx, MonitorEvent{
			Type:       "answered",
			AttemptID:  ev.AttemptID.String(),
			UserID:     ev.UserID,
			Index:      &index,
			OccurredAt: ev.RecordedAt,
		}, channel)
	})
}

// Violation queues the event for persistence and reports counted ones.
func (j *RedisJournal) Violation(ev model.ViolationEvent) {
	channel := config.CacheKey.SubjectMonitorChannel(ev.SubjectID)
	name := j.name(ev.AttemptID.String())
	j.enqueue(func(ctx context.Context) {
		j.push(ctx, config.WorkerKey.PersistViolationsQueue, ev)
		if !ev.Counted {
			return
		}
		j.publish(ctx, MonitorEvent{
			Type:       "warning",
			AttemptID:  ev.AttemptID.String(),
			UserID:     ev.UserID,
			Name:       name,
			Kind:       ev.Kind,
			Count:      ev.Count,
			OccurredAt: ev.RecordedAt,
		}, channel)
	})
}

// Submitted announces the result on the monitor. The result itself is
// persisted through the dispatcher.
func (j *RedisJournal) Submitted(sub model.Submission) {
	id := sub.AttemptID.String()
	j.names.Delete(id)
	channel := config.CacheKey.SubjectMonitorChannel(sub.Paper.SubjectID)
	result := sub.Result
	j.enqueue(func(ctx context.Context) {
		j.publish(ctx, MonitorEvent{
			Type:       "submitted",
			AttemptID:  id,
			UserID:     sub.UserID,
			Name:       sub.UserName,
			Trigger:    sub.Trigger,
			Count:      sub.Violations,
			Result:     &result,
			OccurredAt: sub.SubmittedAt,
		}, channel)
	})
}

// Forget drops cached details of an attempt that ended without submission.
func (j *RedisJournal) Forget(attemptID string) {
	j.names.Delete(attemptID)
}
