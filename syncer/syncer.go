// Package syncer keeps the store in step with the node: it polls the tip,
// ingests missing blocks in order and rolls back one block per detected fork.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cellar/chain"
	"cellar/config"
	"cellar/database"
	unifiederrors "cellar/errors"
	"cellar/logger"
)

// Source is the remote chain. A nil block with a nil error means the node has no block at that height.
type Source interface {
	TipHeight(ctx context.Context) (uint64, error)
	BlockByHeight(ctx context.Context, height uint64) (*chain.Block, error)
}

// Store is the local projection
type Store interface {
	Initialize(ctx context.Context) (uint64, bool, error)
	InsertBlock(ctx context.Context, block *chain.Block) error
	RemoveBlock(ctx context.Context, height uint64) error
}

// State is the loop cursor plus what status readers want to see
type State struct {
	NextHeight          uint64    `json:"next_height"`
	ConsecutiveFailures uint64    `json:"consecutive_failures"`
	ConsecutiveIdle     uint64    `json:"consecutive_idle"`
	Tip                 uint64    `json:"tip"`
	Rollbacks           uint64    `json:"rollbacks"`
	BlocksInserted      uint64    `json:"blocks_inserted"`
	LastError           string    `json:"last_error,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SleepFunc waits for d or until ctx ends
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes the loop
type Options struct {
	FailureBackoffCap time.Duration
	IdleBackoffCap    time.Duration
	// Registerer receives the sync metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
	Sleep      SleepFunc
}

// OptionsFromConfig maps the [sync] section onto loop options
func OptionsFromConfig(cfg config.SyncConfig, reg prometheus.Registerer) Options {
	return Options{
		FailureBackoffCap: cfg.FailureBackoffCap,
		IdleBackoffCap:    cfg.IdleBackoffCap,
		Registerer:        reg,
	}
}

// Syncer is the single writer driving Store from Source
type Syncer struct {
	source  Source
	store   Store
	opts    Options
	metrics *metrics
	log     *logger.Logger

	mu    sync.RWMutex
	state State
}

// New creates a syncer. It fails only when metric registration does.
func New(source Source, store Store, opts Options) (*Syncer, error) {
	if opts.FailureBackoffCap <= 0 {
		opts.FailureBackoffCap = 90 * time.Second
	}
	if opts.IdleBackoffCap <= 0 {
		opts.IdleBackoffCap = 10 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register sync metrics: %w", err)
	}
	return &Syncer{
		source:  source,
		store:   store,
		opts:    opts,
		metrics: m,
		log:     logger.New("Syncer"),
	}, nil
}

// Snapshot returns a copy of the current state
func (s *Syncer) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Syncer) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.UpdatedAt = time.Now()
	next := s.state.NextHeight
	s.mu.Unlock()
	s.metrics.nextHeight.Set(float64(next))
}

// Run initializes the cursor from the stored tip and steps until ctx ends or a
// fatal error occurs. Cancellation is a clean stop and returns nil.
func (s *Syncer) Run(ctx context.Context) error {
	height, ok, err := s.store.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	next := uint64(0)
	if ok {
		next = height + 1
		s.log.Info("Run", "stored tip is %d, resuming at %d", height, next)
	} else {
		s.log.Info("Run", "store is empty, starting from genesis")
	}
	s.update(func(st *State) { st.NextHeight = next })

	for {
		if err := s.Step(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info("Run", "stopped at height %d", s.Snapshot().NextHeight)
				return nil
			}
			s.update(func(st *State) { st.LastError = err.Error() })
			s.log.Error("Run", err)
			return err
		}
	}
}

// Step runs one pass: fetch the tip, then ingest every block from the cursor up to it.
// Transient failures are retried in place; only fatal errors and ctx cancellation are returned.
func (s *Syncer) Step(ctx context.Context) error {
	tip, err := s.fetchTip(ctx)
	if err != nil {
		return err
	}

	next := s.Snapshot().NextHeight
	if tip < next {
		return s.idle(ctx)
	}
	s.update(func(st *State) { st.ConsecutiveIdle = 0 })

	for i := next; i <= tip; {
		block, err := s.source.BlockByHeight(ctx, i)
		if err != nil {
			if backoffErr := s.failure(ctx, "block", err); backoffErr != nil {
				return backoffErr
			}
			continue
		}
		s.update(func(st *State) { st.ConsecutiveFailures = 0 })

		if block == nil {
			s.log.Info("Step", "node has no block at %d (tip was %d), waiting", i, tip)
			s.update(func(st *State) { st.NextHeight = i })
			return s.idle(ctx)
		}

		startTime := time.Now()
		err = s.store.InsertBlock(ctx, block)
		if fork, isFork := unifiederrors.IsForkDetected(err); isFork {
			return s.rollback(ctx, fork)
		}
		if err != nil {
			if !isTransient(err) {
				return fmt.Errorf("insert block %d: %w", i, err)
			}
			if backoffErr := s.failure(ctx, "store", err); backoffErr != nil {
				return backoffErr
			}
			continue
		}
		s.metrics.insertDuration.Observe(time.Since(startTime).Seconds())
		s.metrics.blocksInserted.Inc()

		s.log.Info("Step", "block %d (%s) inserted with %d transactions", i, block.Hash(), len(block.Transactions))
		i++
		s.update(func(st *State) {
			st.NextHeight = i
			st.BlocksInserted++
		})
	}
	return nil
}

// fetchTip retries until the node answers or ctx ends
func (s *Syncer) fetchTip(ctx context.Context) (uint64, error) {
	for {
		tip, err := s.source.TipHeight(ctx)
		if err == nil {
			s.metrics.tipHeight.Set(float64(tip))
			s.update(func(st *State) {
				st.Tip = tip
				st.ConsecutiveFailures = 0
			})
			return tip, nil
		}
		if backoffErr := s.failure(ctx, "tip", err); backoffErr != nil {
			return 0, backoffErr
		}
	}
}

// rollback removes the stored parent the node no longer agrees with and moves the cursor onto it
func (s *Syncer) rollback(ctx context.Context, fork *unifiederrors.ForkDetectedError) error {
	s.log.Warning("Step", "rollback %v", fork)
	if err := s.store.RemoveBlock(ctx, fork.ParentHeight); err != nil {
		if !isTransient(err) {
			return fmt.Errorf("remove block %d: %w", fork.ParentHeight, err)
		}
		// the cursor stays put, so the next pass detects the same fork and retries
		return s.failure(ctx, "store", err)
	}
	s.metrics.rollbacks.Inc()
	s.update(func(st *State) {
		st.NextHeight = fork.ParentHeight
		st.Rollbacks++
	})
	return nil
}

// failure counts a transient error and sleeps min(failures², cap)
func (s *Syncer) failure(ctx context.Context, call string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.metrics.fetchFailures.WithLabelValues(call).Inc()

	var failures uint64
	s.update(func(st *State) {
		st.ConsecutiveFailures++
		st.LastError = err.Error()
		failures = st.ConsecutiveFailures
	})
	delay := FailureBackoff(failures, s.opts.FailureBackoffCap)
	s.log.Error(call, err)
	s.log.Debug("failure", "attempt %d failed, retrying in %v", failures, delay)
	return s.opts.Sleep(ctx, delay)
}

// idle counts a poll without new blocks and sleeps min(idle seconds, cap)
func (s *Syncer) idle(ctx context.Context) error {
	s.metrics.idlePolls.Inc()
	var idle uint64
	s.update(func(st *State) {
		st.ConsecutiveIdle++
		idle = st.ConsecutiveIdle
	})
	return s.opts.Sleep(ctx, IdleBackoff(idle, s.opts.IdleBackoffCap))
}

// FailureBackoff is min(n² seconds, limit)
func FailureBackoff(n uint64, limit time.Duration) time.Duration {
	if n == 0 {
		return 0
	}
	// n² seconds overflows a Duration long before n reaches this
	if n > 1<<16 {
		return limit
	}
	return min(time.Duration(n*n)*time.Second, limit)
}

// IdleBackoff is min(n seconds, limit)
func IdleBackoff(n uint64, limit time.Duration) time.Duration {
	if n > 1<<32 {
		return limit
	}
	return min(time.Duration(n)*time.Second, limit)
}

// isTransient reports whether a store error is worth retrying.
// Integrity errors never are, whatever their message says.
func isTransient(err error) bool {
	if unifiederrors.IsDataIntegrity(err) {
		return false
	}
	return unifiederrors.IsTransport(err) || database.IsRetryableError(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
