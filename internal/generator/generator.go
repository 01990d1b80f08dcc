// Package generator routes completion requests across configured LLM
// drivers. Drivers are tried in fallback order; per-driver latency is
// tracked as a rolling average so operators can see which backend is
// actually serving traffic.
package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/pkg/contracts"
)

// Driver is one provider backend.
type Driver interface {
	contracts.Generator
	Name() string
}

// Router chains drivers with transparent failover. It satisfies
// contracts.Generator so callers never see driver boundaries.
type Router struct {
	drivers []Driver

	latencyMu sync.RWMutex
	latencies map[string]int64
}

// NewRouter creates a router over drivers in fallback order.
func NewRouter(drivers ...Driver) (*Router, error) {
	if len(drivers) == 0 {
		return nil, fmt.Errorf("no generation drivers configured")
	}
	return &Router{
		drivers:   drivers,
		latencies: make(map[string]int64),
	}, nil
}

// Generate tries each driver in order until one answers.
func (r *Router) Generate(ctx context.Context, req contracts.GenerateRequest) (*contracts.GenerateResult, error) {
	var lastErr error
	for _, d := range r.drivers {
		start := time.Now()
		resp, err := d.Generate(ctx, req)
		if err != nil {
			log.Warn().Str("driver", d.Name()).Err(err).Msg("driver call failed, trying next")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		r.trackLatency(d.Name(), time.Since(start).Milliseconds())
		return resp, nil
	}
	return nil, fmt.Errorf("all drivers failed, last error: %w", lastErr)
}

// Stream tries each driver in order. Failover only happens before the
// first delta reaches the sink; once output has flowed the stream is
// committed to that driver.
func (r *Router) Stream(ctx context.Context, req contracts.GenerateRequest, sink contracts.StreamSink) (*contracts.GenerateResult, error) {
	var lastErr error
	for _, d := range r.drivers {
		start := time.Now()
		started := false
		guard := func(delta string) error {
			started = true
			return sink(delta)
		}

		resp, err := d.Stream(ctx, req, guard)
		if err != nil {
			lastErr = err
			if started || ctx.Err() != nil {
				return nil, err
			}
			log.Warn().Str("driver", d.Name()).Err(err).Msg("stream failed before output, trying next")
			continue
		}
		r.trackLatency(d.Name(), time.Since(start).Milliseconds())
		return resp, nil
	}
	return nil, fmt.Errorf("all drivers failed, last error: %w", lastErr)
}

// Latency reports the rolling average call latency for a driver in ms.
func (r *Router) Latency(driver string) int64 {
	r.latencyMu.RLock()
	defer r.latencyMu.RUnlock()
	return r.latencies[driver]
}

func (r *Router) trackLatency(driver string, ms int64) {
	r.latencyMu.Lock()
	prev := r.latencies[driver]
	if prev == 0 {
		r.latencies[driver] = ms
	} else {
		// Exponential moving average
		r.latencies[driver] = (prev*7 + ms*3) / 10
	}
	r.latencyMu.Unlock()
}
