package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ShayCichocki/rise/internal/orchestrator/policy"
	"github.com/ShayCichocki/rise/pkg/models"
)

// say returns a component that appends one assistant turn and routes to next.
func say(name string, next Target) *ComponentFunc {
	return Func(func(_ context.Context, _ models.RunState) (Directive, error) {
		return Goto(next, models.StateUpdate{
			Messages: []models.Turn{models.AssistantTurn(name, "hello from "+name)},
		}), nil
	}, next)
}

type namedTeam struct {
	*ComponentFunc
	name string
}

func (t namedTeam) Name() string { return t.name }

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func linearGraph(t *testing.T, opts ...Option) *Graph {
	t.Helper()
	o := New(opts...)
	o.AddNode("first", say("first", "second"))
	o.AddNode("second", say("second", Terminate))
	o.SetEntryPoint("first")
	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return g
}

func TestCompile_UnknownTarget(t *testing.T) {
	o := New()
	o.AddNode("coordinator", say("coordinator", "planer"))
	o.SetEntryPoint("coordinator")

	g, err := o.Compile()
	if g != nil {
		t.Fatal("expected nil graph on build failure")
	}
	if !errors.Is(err, ErrFatalBuild) {
		t.Fatalf("expected ErrFatalBuild, got %v", err)
	}
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *BuildError, got %T", err)
	}
	if len(buildErr.Problems) != 1 {
		t.Errorf("expected 1 problem, got %v", buildErr.Problems)
	}
}

func TestCompile_CollectsEveryProblem(t *testing.T) {
	o := New()
	o.AddNode("a", say("a", "missing"))
	o.AddNode("a", say("a", Terminate))
	o.AddNode(Terminate, say("end", Terminate))
	o.SetEntryPoint("nowhere")

	_, err := o.Compile()
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected *BuildError, got %v", err)
	}
	// duplicate, reserved name, unknown entry point, unknown target
	if len(buildErr.Problems) != 4 {
		t.Errorf("expected 4 problems, got %d: %v", len(buildErr.Problems), buildErr.Problems)
	}
}

func TestCompile_MissingEntryPoint(t *testing.T) {
	o := New()
	o.AddNode("a", say("a", Terminate))

	if _, err := o.Compile(); !errors.Is(err, ErrFatalBuild) {
		t.Fatalf("expected ErrFatalBuild, got %v", err)
	}
}

func TestCompile_Empty(t *testing.T) {
	if _, err := New().Compile(); !errors.Is(err, ErrFatalBuild) {
		t.Fatalf("expected ErrFatalBuild, got %v", err)
	}
}

func TestCompile_RosterAndSupervisor(t *testing.T) {
	o := New()
	o.SetSupervisor(say("supervisor", "math_team"))
	o.AddTeam(namedTeam{ComponentFunc: say("math_team", Supervisor), name: "math_team"})
	o.AddTeam(namedTeam{ComponentFunc: say("report_team", Supervisor), name: "report_team"})
	o.SetEntryPoint(Supervisor)

	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	roster := g.Roster()
	if len(roster) != 2 || roster[0] != "math_team" || roster[1] != "report_team" {
		t.Errorf("unexpected roster %v", roster)
	}
	if got := g.Components(); len(got) != 3 || got[0] != Supervisor {
		t.Errorf("unexpected components %v", got)
	}
	if g.Entry() != Supervisor {
		t.Errorf("expected entry %q, got %q", Supervisor, g.Entry())
	}
}

func TestInvoke_Linear(t *testing.T) {
	g := linearGraph(t)

	state, err := g.Invoke(context.Background(), "t1", models.UserTurn("hi"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if state.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", state.Steps)
	}
	if len(state.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(state.Messages))
	}
	if state.Messages[1].Name != "first" || state.Messages[2].Name != "second" {
		t.Errorf("unexpected message order: %+v", state.Messages)
	}
	if state.ThreadID != "t1" {
		t.Errorf("expected thread t1, got %q", state.ThreadID)
	}
}

func TestInvoke_StepLimit(t *testing.T) {
	o := New(WithStepLimit(5))
	o.AddNode("a", say("a", "b"))
	o.AddNode("b", say("b", "a"))
	o.SetEntryPoint("a")
	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	state, err := g.Invoke(context.Background(), "loop")
	if !errors.Is(err, ErrStepLimitExceeded) {
		t.Fatalf("expected ErrStepLimitExceeded, got %v", err)
	}
	if state.Steps != 5 {
		t.Errorf("expected 5 steps, got %d", state.Steps)
	}
	if !IsTerminal(err) {
		t.Error("step limit should be terminal")
	}
}

func TestInvoke_UndeclaredRoute(t *testing.T) {
	o := New()
	o.AddNode("a", Func(func(_ context.Context, _ models.RunState) (Directive, error) {
		return Goto("b", models.StateUpdate{}), nil
	}, Terminate))
	o.AddNode("b", say("b", Terminate))
	o.SetEntryPoint("a")
	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	_, err = g.Invoke(context.Background(), "t")
	if !errors.Is(err, ErrUndeclaredRoute) {
		t.Fatalf("expected ErrUndeclaredRoute, got %v", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Component != "a" {
		t.Errorf("expected StepError from a, got %v", err)
	}
}

func TestInvoke_ComponentError(t *testing.T) {
	boom := errors.New("boom")
	o := New()
	o.AddNode("a", Func(func(_ context.Context, _ models.RunState) (Directive, error) {
		return Directive{}, boom
	}, Terminate))
	o.SetEntryPoint("a")
	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	_, err = g.Invoke(context.Background(), "t")
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestInvoke_DirectiveError(t *testing.T) {
	o := New()
	o.AddNode("a", Func(func(_ context.Context, _ models.RunState) (Directive, error) {
		return Fail(ErrReplanLimitExceeded, models.StateUpdate{
			Messages: []models.Turn{models.AssistantTurn("a", "giving up")},
		}), nil
	}))
	o.SetEntryPoint("a")
	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	state, err := g.Invoke(context.Background(), "t")
	if !errors.Is(err, ErrReplanLimitExceeded) {
		t.Fatalf("expected ErrReplanLimitExceeded, got %v", err)
	}
	last, _ := state.LastTurn()
	if last.Content != "giving up" {
		t.Errorf("expected failing update to be applied, got %q", last.Content)
	}
}

func TestInvoke_ComponentsReceiveCopies(t *testing.T) {
	o := New()
	o.AddNode("mutator", Func(func(_ context.Context, s models.RunState) (Directive, error) {
		s.Messages[0].Content = "tampered"
		s.Steps = 1000
		return Goto(Terminate, models.StateUpdate{}), nil
	}))
	o.SetEntryPoint("mutator")
	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	state, err := g.Invoke(context.Background(), "t", models.UserTurn("original"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if state.Messages[0].Content != "original" || state.Steps != 1 {
		t.Errorf("component mutated orchestrator state: %+v", state)
	}
}

func TestInvoke_Cancelled(t *testing.T) {
	g := linearGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Invoke(ctx, "t"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStream_Order(t *testing.T) {
	g := linearGraph(t)

	s := g.Stream(context.Background(), "t", models.UserTurn("hi"))
	var snaps []Snapshot
	for snap := range s.Snapshots() {
		snaps = append(snaps, snap)
	}
	state, err := s.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Component != "first" || snaps[0].Next != "second" || snaps[0].Seq != 1 {
		t.Errorf("unexpected first snapshot %+v", snaps[0])
	}
	if snaps[1].Component != "second" || snaps[1].Next != Terminate || snaps[1].Seq != 2 {
		t.Errorf("unexpected second snapshot %+v", snaps[1])
	}
	if len(snaps[0].State.Messages) != 2 || len(snaps[1].State.Messages) != 3 {
		t.Error("snapshots should reflect the state after each step")
	}
	if len(state.Messages) != 3 {
		t.Errorf("expected 3 final messages, got %d", len(state.Messages))
	}
}

func TestStream_WaitWithoutReading(t *testing.T) {
	o := New(WithPolicy(nil))
	for i := 0; i < 30; i++ {
		next := Target(fmt.Sprintf("n%d", i+1))
		if i == 29 {
			next = Terminate
		}
		o.AddNode(Target(fmt.Sprintf("n%d", i)), say("n", next))
	}
	o.SetEntryPoint("n0")
	g, err := o.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	state, err := g.Stream(context.Background(), "t").Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if state.Steps != 30 {
		t.Errorf("expected 30 steps, got %d", state.Steps)
	}
}

func TestInvokeAsync(t *testing.T) {
	g := linearGraph(t)

	res := <-g.InvokeAsync(context.Background(), "t", models.UserTurn("hi"))
	if res.Err != nil {
		t.Fatalf("InvokeAsync error = %v", res.Err)
	}
	if res.State.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", res.State.Steps)
	}
}

func TestInvoke_ResumesThread(t *testing.T) {
	store := NewMemoryCheckpointer()
	g := linearGraph(t, WithCheckpointer(store), WithIDGenerator(sequentialIDs()))

	first, err := g.Invoke(context.Background(), "conv", models.UserTurn("one"))
	if err != nil {
		t.Fatalf("first Invoke() error = %v", err)
	}
	second, err := g.Invoke(context.Background(), "conv", models.UserTurn("two"))
	if err != nil {
		t.Fatalf("second Invoke() error = %v", err)
	}

	if len(second.Messages) != 6 {
		t.Fatalf("expected 6 messages after resume, got %d", len(second.Messages))
	}
	if second.Messages[3].Content != "two" {
		t.Errorf("expected new input after prior conversation, got %q", second.Messages[3].Content)
	}
	if second.Steps != 2 {
		t.Errorf("expected step counter reset on resume, got %d", second.Steps)
	}
	if first.RunID == second.RunID {
		t.Error("expected a new run id per invocation")
	}

	other, err := g.Invoke(context.Background(), "other", models.UserTurn("x"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(other.Messages) != 3 {
		t.Errorf("thread state leaked across threads: %d messages", len(other.Messages))
	}

	threads := store.Threads()
	if len(threads) != 2 || threads[0] != "conv" || threads[1] != "other" {
		t.Errorf("unexpected stored threads %v", threads)
	}
}

type failingCheckpointer struct{}

func (failingCheckpointer) Load(context.Context, string) (models.RunState, bool, error) {
	return models.RunState{}, false, nil
}

func (failingCheckpointer) Save(context.Context, models.RunState) error {
	return errors.New("disk full")
}

func TestInvoke_CheckpointSaveFailureIsNotFatal(t *testing.T) {
	g := linearGraph(t, WithCheckpointer(failingCheckpointer{}))

	if _, err := g.Invoke(context.Background(), "t"); err != nil {
		t.Fatalf("checkpoint failure should not abort the run: %v", err)
	}
}

func TestInvoke_ConcurrentThreads(t *testing.T) {
	store := NewMemoryCheckpointer()
	g := linearGraph(t, WithCheckpointer(store))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			threadID := fmt.Sprintf("thread-%d", i%4)
			if _, err := g.Invoke(context.Background(), threadID, models.UserTurn("go")); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Invoke() error = %v", err)
	}

	for i := 0; i < 4; i++ {
		state, ok, _ := store.Load(context.Background(), fmt.Sprintf("thread-%d", i))
		if !ok {
			t.Fatalf("thread-%d not saved", i)
		}
		// Five serialized invocations of three turns each.
		if len(state.Messages) != 15 {
			t.Errorf("thread-%d: expected 15 messages, got %d", i, len(state.Messages))
		}
	}
	if n := g.lockedThreads(); n != 0 {
		t.Errorf("expected thread locks to be released, %d remain", n)
	}
}

func TestWithStepLimit_CopiesPolicy(t *testing.T) {
	pol := policy.Default()
	want := pol.Limits.StepLimit

	for _, opts := range [][]Option{
		{WithPolicy(pol), WithStepLimit(7)},
		{WithStepLimit(7), WithPolicy(pol)},
	} {
		g := linearGraph(t, opts...)
		if g.StepLimit() != 7 {
			t.Errorf("StepLimit() = %d, want 7", g.StepLimit())
		}
	}
	if pol.Limits.StepLimit != want {
		t.Errorf("caller's policy was modified: step limit %d, want %d", pol.Limits.StepLimit, want)
	}
}
