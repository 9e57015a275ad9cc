// Package health owns the process-wide lifecycle state machine:
//
//	Starting → Ready → Draining → Stopped
//
// The coordinator verifies store connectivity before reporting Ready, gates
// admission of new work during shutdown, and accounts in-flight counter
// operations so draining can wait for them. It is injected into the request
// path rather than accessed as ambient global state.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tallyd/tallyd/internal/config"
	"github.com/tallyd/tallyd/internal/observability"
)

// State is the process lifecycle state. Transitions are forward-only and
// performed only by the Coordinator.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pinger is the store connectivity probe consumed by the coordinator.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Coordinator tracks lifecycle state and in-flight counter operations.
// All methods are safe for concurrent use.
type Coordinator struct {
	state    atomic.Int32
	inflight atomic.Int64

	mu            sync.Mutex
	drained       chan struct{}
	drainedClosed bool

	probe         Pinger
	probeInterval time.Duration
	probeTimeout  time.Duration
}

// New creates a coordinator in the Starting state.
func New(probe Pinger, cfg config.HealthConfig) *Coordinator {
	c := &Coordinator{
		probe:         probe,
		probeInterval: cfg.ProbeInterval,
		probeTimeout:  cfg.ProbeTimeout,
		drained:       make(chan struct{}),
	}
	observability.HealthState.Set(float64(StateStarting))
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Live reports process liveness: healthy in every state except Stopped.
func (c *Coordinator) Live() bool {
	return c.State() != StateStopped
}

// Ready reports readiness to receive routed traffic: true only in Ready.
func (c *Coordinator) Ready() bool {
	return c.State() == StateReady
}

// Inflight returns the number of counter operations currently in flight.
func (c *Coordinator) Inflight() int64 {
	return c.inflight.Load()
}

// Run probes the store until it answers, then transitions Starting→Ready.
// Returns once Ready or when the context is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		if c.State() != StateStarting {
			return
		}

		probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
		err := c.probe.Ping(probeCtx)
		cancel()

		if err == nil {
			if c.transition(StateStarting, StateReady) {
				observability.Logger().Info("store reachable, accepting traffic")
			}
			return
		}

		observability.Logger().Warn("store probe failed", zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.probeInterval):
		}
	}
}

// AcquireIncrement reserves an in-flight slot for an increment. Increments
// are refused as soon as draining begins. The slot is taken before the state
// check so a concurrent BeginDrain either sees the slot or the caller sees
// Draining; an admitted increment is always awaited by the drainer.
func (c *Coordinator) AcquireIncrement() bool {
	c.acquire()
	if s := c.State(); s != StateStarting && s != StateReady {
		c.Release()
		return false
	}
	return true
}

// AcquireRead reserves an in-flight slot for a read. Reads remain admitted
// while Draining so probes and observers keep working until shutdown
// completes.
func (c *Coordinator) AcquireRead() bool {
	c.acquire()
	if c.State() == StateStopped {
		c.Release()
		return false
	}
	return true
}

// Release returns an in-flight slot and signals the drainer when the last
// operation of a draining process completes.
func (c *Coordinator) Release() {
	n := c.inflight.Add(-1)
	observability.InflightRequests.Dec()
	if n == 0 && c.State() == StateDraining {
		c.signalDrained()
	}
}

func (c *Coordinator) acquire() {
	c.inflight.Add(1)
	observability.InflightRequests.Inc()
}

// BeginDrain moves the process into Draining. New increments are refused
// from this point on; reads and probes continue to be served.
func (c *Coordinator) BeginDrain() {
	if !c.transition(StateStarting, StateDraining) && !c.transition(StateReady, StateDraining) {
		return
	}
	observability.Logger().Info("draining, refusing new increments",
		zap.Int64("inflight", c.Inflight()))

	if c.inflight.Load() == 0 {
		c.signalDrained()
	}
}

// AwaitDrain blocks until all in-flight operations complete or the context
// (the drain deadline) expires, whichever comes first.
func (c *Coordinator) AwaitDrain(ctx context.Context) error {
	select {
	case <-c.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop moves the process into the terminal Stopped state.
func (c *Coordinator) Stop() {
	c.transition(StateDraining, StateStopped)
	c.transition(StateReady, StateStopped)
	c.transition(StateStarting, StateStopped)
}

func (c *Coordinator) transition(from, to State) bool {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	observability.HealthState.Set(float64(to))
	observability.Logger().Info("health state transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return true
}

func (c *Coordinator) signalDrained() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.drainedClosed {
		c.drainedClosed = true
		close(c.drained)
	}
}
