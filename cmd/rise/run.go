package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/internal/llm"
	"github.com/ShayCichocki/rise/internal/metrics"
	"github.com/ShayCichocki/rise/internal/nodes"
	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/internal/rl"
	"github.com/ShayCichocki/rise/internal/signals"
	"github.com/ShayCichocki/rise/internal/state"
	"github.com/ShayCichocki/rise/internal/tui"
	"github.com/ShayCichocki/rise/internal/workflow"
	"github.com/ShayCichocki/rise/pkg/models"
)

var (
	runThread         string
	runTUI            bool
	runStream         bool
	runOffline        bool
	runMetricsAddr    string
	runReward         string
	runSkipValidation bool
	runTimeout        time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a request through the team graph",
	Long: `Run a request through the hierarchical graph:

  coordinator → planner → plan_validator → supervisor ⇄ teams → response_generator

Invalid plans go to the adaptive replanner, at most graph.replan_limit times.
Each team ranks its tools with its Q-table and learns from the outcome.

Conversations are checkpointed per thread. Pass --thread with the ID printed
by an earlier run to continue it.

Without a configured model (or with --offline) the graph plans by keyword
matching, dispatches plan steps in order and teams call their best tool
directly.

Create <state dir>/signals/stop to stop a run from another terminal.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	runCmd.Flags().StringVar(&runThread, "thread", "", "Thread ID to continue (default: new thread)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Follow the run in a terminal UI")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "Print each step as it happens")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "Run without a language model")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090 (overrides config)")
	runCmd.Flags().StringVar(&runReward, "reward", "heuristic", "Reward calculator: heuristic, tool_usage, llm_judged")
	runCmd.Flags().BoolVar(&runSkipValidation, "skip-validation", false, "Send plans straight to the supervisor")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Abort the run after this long (0 = no limit)")
}

func runRequest(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return fail("load config", err)
	}

	logger, err := newLogger(cfg, runTUI)
	if err != nil {
		return fail("setup logging", err)
	}
	defer logger.Close()
	log := componentLogger(logger, "cli")

	addr := cfg.Metrics.Addr
	if runMetricsAddr != "" {
		addr = runMetricsAddr
	}
	var recorder *metrics.Recorder
	if addr != "" {
		recorder = metrics.New(prometheus.DefaultRegisterer)
		stop := serveMetrics(addr, log)
		defer stop()
	}

	model, generator, err := resolveModels(cfg, runOffline)
	if err != nil {
		return fail("resolve language model", err)
	}
	if model == nil {
		printStatus("⚠", "No language model, running offline", color.FgYellow)
	}

	reward, err := rl.RewardByName(runReward, model)
	if err != nil {
		return fail("select reward", err)
	}

	registry, err := buildTeams(cfg, model, reward, logger.Logger, recorder)
	if err != nil {
		return fail("build teams", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close learning managers")
		}
	}()

	db, err := state.OpenAndMigrate(cfg.State.DBPath)
	if err != nil {
		return fail("open state database", err)
	}
	defer db.Close()

	graph, err := workflow.BuildHierarchical(workflow.Options{
		Teams:          registry,
		LLM:            model,
		GeneratorLLM:   generator,
		Graph:          cfg.Graph,
		SkipValidation: runSkipValidation,
		Logger:         logger.Logger,
		Metrics:        recorder,
		Checkpointer:   db,
		NewID:          uuid.NewString,
	})
	if err != nil {
		return fail("build graph", err)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}
	ctx, watcher, err := signals.Watch(ctx, signalsDir(cfg), logger.Logger)
	if err != nil {
		return fail("watch stop signal", err)
	}
	defer watcher.Close()

	threadID := runThread
	if threadID == "" {
		threadID = uuid.NewString()
	}

	started := time.Now()
	final, runErr := execute(ctx, graph, threadID, request, cfg.TUI.RefreshRate)
	finished := time.Now()

	recordRun(ctx, db, final, request, runErr, started, finished, log)

	if runErr != nil {
		if cause := context.Cause(ctx); errors.Is(cause, signals.ErrStopRequested) {
			runErr = cause
		}
		printStatus("✗", fmt.Sprintf("Run failed after %d steps: %v", final.Steps, runErr), color.FgRed)
		fmt.Printf("  thread: %s\n", threadID)
		return runErr
	}

	fmt.Println()
	fmt.Println(finalAnswer(final))
	fmt.Println()
	printStatus("✓", fmt.Sprintf("Completed in %d steps (%s)", final.Steps, finished.Sub(started).Round(time.Millisecond)), color.FgGreen)
	fmt.Printf("  thread: %s\n", threadID)
	return nil
}

// resolveModels returns the planning model and the answer model. Both are
// nil offline.
func resolveModels(cfg *config.Config, offline bool) (llm.LLM, llm.LLM, error) {
	if offline {
		return nil, nil, nil
	}
	provider := llm.NewProvider(cfg.LLMs)
	model, err := provider.GetLLM(config.DefaultLLM)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (use --offline to run without a model)", err)
	}
	generator, err := provider.GetLLM(config.ResponseGeneratorLLM)
	if err != nil {
		return nil, nil, err
	}
	return model, generator, nil
}

// execute runs the graph in the mode selected by the flags.
func execute(ctx context.Context, graph *orchestrator.Graph, threadID, request string, refresh time.Duration) (models.RunState, error) {
	input := models.UserTurn(request)

	switch {
	case runTUI:
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stream := graph.Stream(ctx, threadID, input)
		return tui.Run(stream, cancel, request, threadID, graph.Roster(), refresh)

	case runStream:
		stream := graph.Stream(ctx, threadID, input)
		for snap := range stream.Snapshots() {
			printStep(snap)
		}
		return stream.Wait()

	default:
		return graph.Invoke(ctx, threadID, input)
	}
}

func printStep(s orchestrator.Snapshot) {
	next := string(s.Next)
	if s.Next == orchestrator.Terminate {
		next = "end"
	}
	line := fmt.Sprintf("%3d %-20s → %s", s.Seq, s.Component, next)
	if turn, ok := s.State.LastTurn(); ok && turn.Name == string(s.Component) && turn.Failed() {
		color.Red("%s  (%s)", line, turn.Error)
		return
	}
	fmt.Println(line)
}

// finalAnswer returns the generator's answer, or the last assistant turn
// when the run ended elsewhere.
func finalAnswer(s models.RunState) string {
	if turns := s.TurnsBy(string(nodes.GeneratorName)); len(turns) > 0 {
		return turns[len(turns)-1].Content
	}
	if turn, ok := s.LastTurn(); ok && turn.Role != models.RoleUser {
		return turn.Content
	}
	return "(no answer)"
}

// runOutcome classifies a finished run for the run history.
func runOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return state.RunCompleted
	case orchestrator.IsTerminal(err):
		return state.RunLimitExceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return state.RunCanceled
	default:
		return state.RunFailed
	}
}

// recordRun appends the run to the thread's history. Failures are logged.
func recordRun(ctx context.Context, db *state.DB, final models.RunState, request string, runErr error, started, finished time.Time, log zerolog.Logger) {
	if final.RunID == "" || final.ThreadID == "" {
		return
	}
	rec := state.RunRecord{
		RunID:      final.RunID,
		ThreadID:   final.ThreadID,
		Request:    request,
		Outcome:    runOutcome(ctx, runErr),
		Steps:      final.Steps,
		Replans:    final.Replans,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := db.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Msg("failed to record run")
	}
}

// signalsDir places the stop-signal directory next to the state database.
func signalsDir(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.State.DBPath), "signals")
}

// serveMetrics exposes the default Prometheus registry until the returned
// function is called.
func serveMetrics(addr string, log zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
