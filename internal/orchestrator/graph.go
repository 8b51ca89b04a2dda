package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/orchestrator/policy"
	"github.com/ShayCichocki/rise/pkg/models"
)

// Graph is a compiled, immutable component table. It is safe for
// concurrent use by multiple goroutines.
type Graph struct {
	entry      Target
	order      []Target
	components map[Target]Component
	declared   map[Target][]Target
	roster     []Target
	policy     policy.Config
	log        zerolog.Logger
	metrics    *metrics.Recorder
	store      Checkpointer
	newID      func() string

	// threadLocks serializes invocations per thread ID. Entries are
	// dropped when no invocation holds or waits for them.
	locksMu     sync.Mutex
	threadLocks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// Entry returns the entry point.
func (g *Graph) Entry() Target {
	return g.entry
}

// Components returns component names in registration order.
func (g *Graph) Components() []Target {
	return slices.Clone(g.order)
}

// Roster returns the registered team names in registration order.
func (g *Graph) Roster() []Target {
	return slices.Clone(g.roster)
}

// Routes returns the declared targets of a component.
func (g *Graph) Routes(name Target) []Target {
	return slices.Clone(g.declared[name])
}

// StepLimit returns the maximum number of components visited per run.
func (g *Graph) StepLimit() int {
	return g.policy.Limits.StepLimit
}

// Invoke runs the graph for threadID with input appended to the
// conversation and returns the final state. The returned state is valid
// even when err is non-nil; it holds everything applied before the failure.
func (g *Graph) Invoke(ctx context.Context, threadID string, input ...models.Turn) (models.RunState, error) {
	return g.run(ctx, threadID, input, nil)
}

// InvokeAsync runs Invoke in a new goroutine and delivers its result on the
// returned channel, which is closed afterwards.
func (g *Graph) InvokeAsync(ctx context.Context, threadID string, input ...models.Turn) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		state, err := g.run(ctx, threadID, input, nil)
		out <- Result{State: state, Err: err}
	}()
	return out
}

// Stream is a running invocation that reports a snapshot after every step.
type Stream struct {
	emitter *snapshotEmitter
	done    chan struct{}
	result  Result
}

// Snapshots yields one snapshot per resolved Directive, in visit order.
// The channel is closed when the run ends. The run waits for the consumer,
// so the channel must be drained or the context cancelled.
func (s *Stream) Snapshots() <-chan Snapshot {
	return s.emitter.Events()
}

// Wait discards unread snapshots, waits for the run to end and returns its result.
func (s *Stream) Wait() (models.RunState, error) {
	for range s.emitter.Events() {
	}
	<-s.done
	return s.result.State, s.result.Err
}

// Stream starts an invocation and returns immediately.
func (g *Graph) Stream(ctx context.Context, threadID string, input ...models.Turn) *Stream {
	s := &Stream{
		emitter: newSnapshotEmitter(g.policy.Stream.BufferSize),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer s.emitter.Close()
		state, err := g.run(ctx, threadID, input, func(snap Snapshot) {
			s.emitter.Emit(ctx, snap)
		})
		s.result = Result{State: state, Err: err}
	}()
	return s
}

func (g *Graph) lockThread(threadID string) func() {
	g.locksMu.Lock()
	if g.threadLocks == nil {
		g.threadLocks = make(map[string]*threadLock)
	}
	l, ok := g.threadLocks[threadID]
	if !ok {
		l = &threadLock{}
		g.threadLocks[threadID] = l
	}
	l.refs++
	g.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.threadLocks, threadID)
		}
		g.locksMu.Unlock()
	}
}

// lockedThreads returns how many thread locks are held or awaited.
func (g *Graph) lockedThreads() int {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	return len(g.threadLocks)
}

// run walks the graph from the entry point. emit, when set, receives a
// snapshot after each step.
func (g *Graph) run(ctx context.Context, threadID string, input []models.Turn, emit func(Snapshot)) (state models.RunState, err error) {
	if threadID == "" {
		threadID = g.newID()
	}

	unlock := g.lockThread(threadID)
	defer unlock()

	started := time.Now()
	runID := g.newID()
	log := g.log.With().Str("thread_id", threadID).Str("run_id", runID).Logger()

	state, err = g.initialState(ctx, threadID, runID)
	if err != nil {
		return state, err
	}
	state = state.Apply(models.StateUpdate{Messages: input})

	defer func() {
		g.metrics.ObserveRun(runOutcome(err), time.Since(started))
		g.checkpoint(context.WithoutCancel(ctx), state, log)
		if err != nil {
			log.Warn().Err(err).Int("steps", state.Steps).Msg("run ended with error")
		} else {
			log.Info().Int("steps", state.Steps).Dur("duration", time.Since(started)).Msg("run completed")
		}
	}()

	log.Info().Str("entry", string(g.entry)).Int("input_turns", len(input)).Msg("run started")

	current := g.entry
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if state.Steps >= g.policy.Limits.StepLimit {
			return state, fmt.Errorf("%w: %d steps without reaching %s", ErrStepLimitExceeded, state.Steps, Terminate)
		}

		component, ok := g.components[current]
		if !ok {
			// Unreachable after Compile; routes are checked below.
			return state, &StepError{Component: current, Step: state.Steps + 1, Err: fmt.Errorf("unknown component")}
		}

		log.Debug().Str("node", string(current)).Int("step", state.Steps+1).Msg("executing component")
		directive, execErr := component.Execute(ctx, state.Clone())
		state.Steps++
		g.metrics.ObserveStep(string(current))

		if execErr != nil {
			return state, &StepError{Component: current, Step: state.Steps, Err: execErr}
		}

		state = state.Apply(directive.Update)

		if emit != nil {
			emit(Snapshot{
				Seq:       state.Steps,
				Component: current,
				Next:      directive.Next,
				State:     state.Clone(),
				Timestamp: time.Now(),
			})
		}
		if g.policy.Checkpoint.EveryStep {
			g.checkpoint(ctx, state, log)
		}

		if directive.Err != nil {
			return state, directive.Err
		}
		if directive.Next == Terminate {
			return state, nil
		}
		if !slices.Contains(g.declared[current], directive.Next) {
			return state, &StepError{
				Component: current,
				Step:      state.Steps,
				Err:       fmt.Errorf("%w: %q is not in %v", ErrUndeclaredRoute, directive.Next, g.declared[current]),
			}
		}

		log.Debug().Str("from", string(current)).Str("to", string(directive.Next)).Msg("routing")
		current = directive.Next
	}
}

// initialState loads the thread's checkpoint, keeping its conversation and
// resetting per-run fields, or starts a fresh state.
func (g *Graph) initialState(ctx context.Context, threadID, runID string) (models.RunState, error) {
	if g.store != nil {
		prev, found, err := g.store.Load(ctx, threadID)
		if err != nil {
			return models.NewRunState(threadID), fmt.Errorf("load checkpoint for thread %s: %w", threadID, err)
		}
		if found {
			prev.ThreadID = threadID
			return prev.ResetRun(runID), nil
		}
	}
	state := models.NewRunState(threadID)
	state.RunID = runID
	return state, nil
}

// checkpoint saves state, logging failures instead of returning them.
func (g *Graph) checkpoint(ctx context.Context, state models.RunState, log zerolog.Logger) {
	if g.store == nil {
		return
	}
	if err := g.store.Save(ctx, state); err != nil {
		log.Error().Err(err).Msg("failed to save checkpoint")
	}
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case IsTerminal(err):
		return "limit_exceeded"
	default:
		return "failed"
	}
}
