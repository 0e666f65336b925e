package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCycleInFlight is returned when a cycle is requested while another runs.
var ErrCycleInFlight = errors.New("ingestion cycle already in progress")

type cycleRunner interface {
	RunCycle(ctx context.Context) CycleResult
}

// poller runs ingestion cycles on a timer and on demand, never more than one
// at a time.
type poller struct {
	ingest      cycleRunner
	minInterval time.Duration
	running     atomic.Bool
	log         logrus.FieldLogger

	mu         sync.Mutex
	afterCycle []func(context.Context, CycleResult)
	last       *CycleResult
}

func newPoller(ingest cycleRunner, minInterval time.Duration, log logrus.FieldLogger) *poller {
	return &poller{
		ingest:      ingest,
		minInterval: minInterval,
		log:         log,
	}
}

// onCycle registers fn to run after every completed cycle. Hooks run once the
// single-flight guard is released, so a slow hook never blocks the next cycle.
func (p *poller) onCycle(fn func(context.Context, CycleResult)) {
	p.mu.Lock()
	p.afterCycle = append(p.afterCycle, fn)
	p.mu.Unlock()
}

func (p *poller) run(ctx context.Context) {
	interval := p.minInterval
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			start := time.Now()
			if _, err := p.trigger(ctx); err != nil {
				p.log.WithError(err).Debug("skipping scheduled cycle")
			}
			elapsed := time.Since(start)
			interval = maxDuration(elapsed/2, p.minInterval)
			t.Reset(interval)
		}
	}
}

// trigger runs one cycle synchronously, or returns ErrCycleInFlight.
func (p *poller) trigger(ctx context.Context) (CycleResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return CycleResult{}, ErrCycleInFlight
	}
	res := p.runGuarded(ctx)

	p.mu.Lock()
	hooks := append([]func(context.Context, CycleResult){}, p.afterCycle...)
	p.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx, res)
	}
	return res, nil
}

func (p *poller) runGuarded(ctx context.Context) CycleResult {
	defer p.running.Store(false)
	res := p.ingest.RunCycle(ctx)
	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()
	return res
}

// lastResult returns the most recent cycle result, if any.
func (p *poller) lastResult() (CycleResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return CycleResult{}, false
	}
	return *p.last, true
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
