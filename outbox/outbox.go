// Package outbox drains ledger effects into a journal.Store on its own
// goroutine so the session never waits on the database.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/marginledger/journal"
	"github.com/rustyeddy/marginledger/ledger"
)

// Policy decides what happens to an effect the store refuses.
type Policy string

const (
	// PolicyLog logs the failure and drops the effect.
	PolicyLog Policy = "log"
	// PolicyRetry retries with exponential backoff, then logs and drops.
	PolicyRetry Policy = "retry"
	// PolicyDeadLetter retries like PolicyRetry, then parks the effect for
	// later reconciliation.
	PolicyDeadLetter Policy = "dead_letter"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyLog:
		return PolicyLog, nil
	case PolicyRetry, PolicyDeadLetter:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown outbox policy %q", s)
}

type Options struct {
	Policy      Policy
	MaxAttempts int
	Backoff     time.Duration
	Buffer      int
}

func DefaultOptions() Options {
	return Options{
		Policy:      PolicyLog,
		MaxAttempts: 5,
		Backoff:     200 * time.Millisecond,
		Buffer:      1024,
	}
}

// DeadLetter is an effect the store never accepted.
type DeadLetter struct {
	Effect   ledger.Effect
	Err      error
	Attempts int
	Time     time.Time
}

// Stats counts what the outbox has done so far.
type Stats struct {
	Applied uint64
	Failed  uint64
	Dropped uint64
}

type Outbox struct {
	store journal.Store
	opts  Options
	log   zerolog.Logger

	queue  chan ledger.Effect
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	dead   []DeadLetter

	applied atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// New starts the worker. Zero fields of opts take DefaultOptions values.
func New(store journal.Store, opts Options, log zerolog.Logger) *Outbox {
	def := DefaultOptions()
	if opts.Policy == "" {
		opts.Policy = def.Policy
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if opts.Buffer <= 0 {
		opts.Buffer = def.Buffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Outbox{
		store:  store,
		opts:   opts,
		log:    log.With().Str("component", "outbox").Logger(),
		queue:  make(chan ledger.Effect, opts.Buffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go o.run()
	return o
}

// Enqueue never blocks. When the queue is full, or the outbox is closed, the
// effect is dropped and logged.
func (o *Outbox) Enqueue(effects ...ledger.Effect) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, e := range effects {
		if o.closed {
			o.drop(e, "outbox closed")
			continue
		}
		select {
		case o.queue <- e:
		default:
			o.drop(e, "queue full")
		}
	}
}

func (o *Outbox) drop(e ledger.Effect, why string) {
	o.dropped.Add(1)
	o.log.Error().
		Str("effect", string(e.Kind)).
		Str("position_id", e.PositionID).
		Msgf("effect dropped: %s", why)
}

func (o *Outbox) run() {
	defer close(o.done)
	for e := range o.queue {
		o.deliver(e)
	}
}

func (o *Outbox) attempts() int {
	if o.opts.Policy == PolicyLog {
		return 1
	}
	return o.opts.MaxAttempts
}

func (o *Outbox) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.Backoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.Reset()
	return b
}

func (o *Outbox) deliver(e ledger.Effect) {
	tries := 0
	_, err := backoff.Retry(o.ctx, func() (struct{}, error) {
		tries++
		err := journal.Apply(o.ctx, o.store, e)
		if err != nil {
			o.log.Warn().Err(err).
				Str("effect", string(e.Kind)).
				Str("position_id", e.PositionID).
				Int("attempt", tries).
				Msg("persist failed")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(o.newBackOff()),
		backoff.WithMaxTries(uint(o.attempts())),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		o.applied.Add(1)
		return
	}

	o.failed.Add(1)
	o.log.Error().Err(err).
		Str("effect", string(e.Kind)).
		Str("position_id", e.PositionID).
		Int("attempts", tries).
		Str("policy", string(o.opts.Policy)).
		Msg("effect not persisted")

	if o.opts.Policy == PolicyDeadLetter {
		o.mu.Lock()
		o.dead = append(o.dead, DeadLetter{Effect: e, Err: err, Attempts: tries, Time: time.Now()})
		o.mu.Unlock()
	}
}

// DeadLetters returns the effects parked under PolicyDeadLetter.
func (o *Outbox) DeadLetters() []DeadLetter {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]DeadLetter(nil), o.dead...)
}

// Redeliver requeues every dead letter and clears the list. It returns the
// number requeued.
func (o *Outbox) Redeliver() int {
	o.mu.Lock()
	dead := o.dead
	o.dead = nil
	o.mu.Unlock()

	for _, dl := range dead {
		o.Enqueue(dl.Effect)
	}
	return len(dead)
}

func (o *Outbox) Stats() Stats {
	return Stats{
		Applied: o.applied.Load(),
		Failed:  o.failed.Load(),
		Dropped: o.dropped.Load(),
	}
}

// Close stops accepting effects and waits for the queue to drain. If ctx
// ends first, pending retries are abandoned and ctx's error is returned.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-o.done
		return ctx.Err()
	}
}
