package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Connection attempts made at startup before giving up. Compose brings the
// database and Redis up alongside the server, so the first pings may fail.
const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// pingUntilReady calls ping until it succeeds, doubling the wait between
// attempts. It stops early when ctx ends.
func pingUntilReady(ctx context.Context, name string, log zerolog.Logger, ping func(context.Context) error) error {
	wait := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		log.Warn().Err(err).
			Str("target", name).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Connection not ready, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("ping %s: %w", name, err)
}
