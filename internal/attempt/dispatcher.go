package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/model"
)

// ErrAlreadyRecorded is returned by a ResultStore for an attempt it has
// already accepted.
var ErrAlreadyRecorded = errors.New("result already recorded")

// ResultStore records a frozen submission. Implementations must accept each
// attempt once and return ErrAlreadyRecorded for repeats.
type ResultStore interface {
	Save(ctx context.Context, sub model.Submission) error
}

// Deliverer hands a result to the out-of-band delivery channel (email).
type Deliverer interface {
	Deliver(ctx context.Context, job model.DeliveryJob) error
}

const (
	deliveryTimeout = 15 * time.Second
	saveTimeout     = 5 * time.Second
	// saveAttempts counts the first save and its background retries.
	saveAttempts = 4
)

// Dispatcher forwards submitted results. The first save runs inline; a save
// that fails is retried in the background and never holds back delivery.
// Delivery runs in the background and its failures are only logged.
type Dispatcher struct {
	store      ResultStore
	deliverer  Deliverer
	log        zerolog.Logger
	wg         sync.WaitGroup
	retryDelay time.Duration
}

// NewDispatcher creates a Dispatcher. A nil deliverer disables delivery.
func NewDispatcher(store ResultStore, deliverer Deliverer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		deliverer:  deliverer,
		log:        log.With().Str("component", "dispatcher").Logger(),
		retryDelay: time.Second,
	}
}

// Dispatch saves sub and schedules its delivery. ErrAlreadyRecorded means the
// attempt was submitted through another path; nothing is delivered then.
// Any other save error is retried in the background and Dispatch returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, sub model.Submission, items []model.ReviewItem) error {
	err := d.save(ctx, sub)
	switch {
	case errors.Is(err, ErrAlreadyRecorded):
		return err
	case err != nil:
		d.log.Warn().Err(err).
			Str("attempt_id", sub.AttemptID.String()).
			Int("user_id", sub.UserID).
			Msg("Result save failed, retrying in background")
		d.retrySave(sub)
	}

	d.deliver(sub, items)
	return nil
}

func (d *Dispatcher) save(ctx context.Context, sub model.Submission) error {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := d.store.Save(ctx, sub); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// retrySave requeues a failed save with doubling backoff.
func (d *Dispatcher) retrySave(sub model.Submission) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log := d.log.With().Str("attempt_id", sub.AttemptID.String()).Int("user_id", sub.UserID).Logger()

		delay := d.retryDelay
		for try := 2; try <= saveAttempts; try++ {
			time.Sleep(delay)
			err := d.save(context.Background(), sub)
			if err == nil || errors.Is(err, ErrAlreadyRecorded) {
				log.Info().Int("try", try).Msg("Result saved on retry")
				return
			}
			log.Warn().Err(err).Int("try", try).Msg("Result save retry failed")
			delay *= 2
		}
		log.Error().Int("tries", saveAttempts).Msg("Result dropped after retries")
	}()
}

func (d *Dispatcher) deliver(sub model.Submission, items []model.ReviewItem) {
	if d.deliverer == nil || sub.Email == "" {
		return
	}

	job := model.DeliveryJob{Submission: sub, Items: items}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := d.deliverer.Deliver(ctx, job); err != nil {
			d.log.Error().Err(err).
				Str("attempt_id", sub.AttemptID.String()).
				Int("user_id", sub.UserID).
				Msg("Result delivery failed")
		}
	}()
}

// Wait blocks until background saves and deliveries have returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
