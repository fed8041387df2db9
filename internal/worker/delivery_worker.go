package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/database"
	"github.com/smquiz/quiz-backend/internal/delivery"
	"github.com/smquiz/quiz-backend/internal/model"
)

// MaxDeliveryAttempts bounds how often one result email is tried.
const MaxDeliveryAttempts = 3

const sendTimeout = 30 * time.Second

// Sender sends one delivery job. *delivery.Mailer implements it.
type Sender interface {
	Send(ctx context.Context, job model.DeliveryJob) error
}

// DeliveryWorker emails results queued by the dispatcher. Jobs come from the
// Redis delivery list, or from RabbitMQ when mq is set.
type DeliveryWorker struct {
	sender Sender
	rdb    *redis.Client
	mq     *database.RabbitMQ
	log    zerolog.Logger
}

func NewDeliveryWorker(sender Sender, rdb *redis.Client, mq *database.RabbitMQ, log zerolog.Logger) *DeliveryWorker {
	return &DeliveryWorker{
		sender: sender,
		rdb:    rdb,
		mq:     mq,
		log:    log.With().Str("component", "delivery_worker").Logger(),
	}
}

func (w *DeliveryWorker) Start(ctx context.Context) {
	w.log.Info().Bool("rabbitmq", w.mq != nil).Msg("DeliveryWorker started")
	if w.mq != nil {
		w.consumeRabbit(ctx)
		return
	}
	w.consumeRedis(ctx)
}

func (w *DeliveryWorker) consumeRedis(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("DeliveryWorker stopped")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.DeliverResultsQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
				time.Sleep(3 * time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		job, ok := w.decode([]byte(result[1]))
		if !ok {
			continue
		}
		if retry, again := w.process(ctx, job); again {
			payload, _ := json.Marshal(retry)
			if err := w.rdb.RPush(context.Background(), config.WorkerKey.DeliverResultsQueue, payload).Err(); err != nil {
				w.log.Error().Err(err).Str("attempt_id", job.Submission.AttemptID.String()).Msg("Failed to requeue delivery job")
			}
		}
	}
}

func (w *DeliveryWorker) consumeRabbit(ctx context.Context) {
	queue := config.WorkerKey.DeliverResultsQueue
	if _, err := w.mq.DeclareQueue(queue); err != nil {
		w.log.Error().Err(err).Msg("Failed to declare delivery queue")
		return
	}
	deliveries, ch, err := w.mq.Consume(queue, 4)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to start consuming delivery queue")
		return
	}
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("DeliveryWorker stopped")
			return
		case d, open := <-deliveries:
			if !open {
				w.log.Warn().Msg("Delivery channel closed by broker")
				return
			}
			w.handleDelivery(ctx, d)
		}
	}
}

func (w *DeliveryWorker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	job, ok := w.decode(d.Body)
	if !ok {
		_ = d.Nack(false, false)
		return
	}

	retry, again := w.process(ctx, job)
	if again {
		payload, _ := json.Marshal(retry)
		if err := w.mq.Publish(context.Background(), config.WorkerKey.DeliverResultsQueue, payload); err != nil {
			w.log.Error().Err(err).Msg("Failed to republish delivery job")
			_ = d.Nack(false, true)
			return
		}
	}
	_ = d.Ack(false)
}

func (w *DeliveryWorker) decode(data []byte) (model.DeliveryJob, bool) {
	var job model.DeliveryJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Str("data", string(data)).Msg("Discarding malformed delivery job")
		return job, false
	}
	return job, true
}

// process sends job once. It returns the job to retry and true when the
// send failed and attempts remain.
func (w *DeliveryWorker) process(ctx context.Context, job model.DeliveryJob) (model.DeliveryJob, bool) {
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	log := w.log.With().
		Str("attempt_id", job.Submission.AttemptID.String()).
		Int("attempt", job.Attempt+1).
		Logger()

	err := w.sender.Send(sctx, job)
	switch {
	case err == nil:
		log.Info().Msg("Result email sent")
		return job, false
	case errors.Is(err, delivery.ErrMailerDisabled):
		log.Info().Msg("Mailer disabled, dropping result email")
		return job, false
	}

	next, ok := nextAttempt(job)
	if !ok {
		log.Error().Err(err).Msg("Result email failed, giving up")
		return job, false
	}
	log.Warn().Err(err).Msg("Result email failed, will retry")
	return next, true
}

// nextAttempt returns job with its attempt counter advanced, or false when
// MaxDeliveryAttempts has been used up.
func nextAttempt(job model.DeliveryJob) (model.DeliveryJob, bool) {
	job.Attempt++
	if job.Attempt >= MaxDeliveryAttempts {
		return job, false
	}
	return job, true
}
