// Package retention sweeps idle chat sessions. Sessions not touched within
// the configured TTL are deleted together with their messages. Disabled by
// default; enable via STORECHAT_SESSION_TTL.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/store"
)

// Janitor periodically deletes sessions idle longer than ttl.
type Janitor struct {
	store    store.Store
	ttl      time.Duration
	interval time.Duration
}

// NewJanitor creates a retention janitor. ttl <= 0 disables sweeping.
func NewJanitor(s store.Store, ttl, interval time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{store: s, ttl: ttl, interval: interval}
}

// Start runs the janitor until ctx is canceled. It sweeps once immediately
// and then on every tick.
func (j *Janitor) Start(ctx context.Context) {
	if j.ttl <= 0 {
		log.Info().Msg("Session retention disabled")
		return
	}

	log.Info().Dur("ttl", j.ttl).Dur("interval", j.interval).Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-j.ttl)
	swept, err := j.store.DeleteSessionsIdleSince(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Retention sweep failed")
		return
	}
	if swept > 0 {
		log.Info().Int("sessions", swept).Time("cutoff", cutoff).Msg("Idle sessions swept")
	}
}
