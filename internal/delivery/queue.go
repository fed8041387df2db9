package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/database"
	"github.com/smquiz/quiz-backend/internal/model"
)

// RedisQueue hands delivery jobs to the delivery worker through a Redis list.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue creates a RedisQueue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// Deliver queues job.
func (q *RedisQueue) Deliver(ctx context.Context, job model.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.DeliverResultsQueue, payload).Err()
}

// RabbitQueue hands delivery jobs to the delivery worker through RabbitMQ.
type RabbitQueue struct {
	mq *database.RabbitMQ
}

// NewRabbitQueue creates a RabbitQueue.
func NewRabbitQueue(mq *database.RabbitMQ) *RabbitQueue {
	return &RabbitQueue{mq: mq}
}

// Deliver publishes job.
func (q *RabbitQueue) Deliver(ctx context.Context, job model.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.mq.Publish(ctx, config.WorkerKey.DeliverResultsQueue, payload)
}
