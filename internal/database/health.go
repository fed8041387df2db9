package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

const (
	statusUp       = "ok"
	statusDown     = "unreachable"
	statusDisabled = "disabled"
)

// Health reports the reachability of each backing store.
type Health struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// OK reports whether no configured store is unreachable.
func (h Health) OK() bool {
	return h.Postgres != statusDown && h.Redis != statusDown
}

// Checker pings the stores behind the API. A nil store is reported as
// "disabled" rather than failing.
type Checker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewChecker creates a Checker.
func NewChecker(pool *pgxpool.Pool, rdb *redis.Client) *Checker {
	return &Checker{pool: pool, rdb: rdb}
}

// Check pings every store with a short timeout.
func (c *Checker) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	h := Health{Postgres: statusDisabled, Redis: statusDisabled}
	if c.pool != nil {
		h.Postgres = status(c.pool.Ping(ctx))
	}
	if c.rdb != nil {
		h.Redis = status(c.rdb.Ping(ctx).Err())
	}
	return h
}

func status(err error) string {
	if err != nil {
		return statusDown
	}
	return statusUp
}
