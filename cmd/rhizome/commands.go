package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/growth"
	"github.com/orneryd/rhizome/pkg/semantic"
	"github.com/orneryd/rhizome/pkg/storage"
)

// Summary reports the state of one run.
type Summary struct {
	RunID            string                    `json:"run_id"`
	Text             string                    `json:"text"`
	Ticks            int                       `json:"ticks"`
	Generation       int                       `json:"generation"`
	Nodes            int                       `json:"nodes"`
	Connections      int                       `json:"connections"`
	Frontier         int                       `json:"frontier"`
	Done             bool                      `json:"done"`
	Patterns         map[graph.PatternKind]int `json:"patterns"`
	SemanticDensity  float64                   `json:"semantic_density"`
	VisualComplexity float64                   `json:"visual_complexity"`
	AverageResonance float64                   `json:"average_resonance"`
	CognitiveLoad    float64                   `json:"cognitive_load"`
	SeedCount        int                       `json:"seed_count"`
	MaxNodes         int                       `json:"max_nodes"`
	Parameters       growth.Parameters         `json:"parameters"`
	Elapsed          time.Duration             `json:"elapsed_ns,omitempty"`
}

type growOptions struct {
	MaxTicks  int
	FPS       float64
	SaveEvery int
}

func growOptionsFrom(cmd *cobra.Command, a *app) growOptions {
	ticks, _ := cmd.Flags().GetInt("ticks")
	fps, _ := cmd.Flags().GetFloat64("fps")
	return growOptions{MaxTicks: ticks, FPS: fps, SaveEvery: a.cfg.Storage.SaveEvery}
}

// =============================================================================
// Commands
// =============================================================================

func runGrow(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return errors.New("no text to grow")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stop := a.serveMetrics()
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary, err := a.grow(ctx, text, growOptionsFrom(cmd, a))
	if summary != nil {
		if printErr := a.print(summary); printErr != nil {
			return printErr
		}
	}
	return err
}

func runBatch(cmd *cobra.Command, args []string) error {
	lines, err := readLines(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	opts := growOptionsFrom(cmd, a)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results := make([]*Summary, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, line := range lines {
		g.Go(func() error {
			s, err := a.grow(gctx, line, opts)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			results[i] = s
			return nil
		})
	}
	err = g.Wait()

	done := make([]*Summary, 0, len(results))
	for _, s := range results {
		if s != nil {
			done = append(done, s)
		}
	}
	if printErr := a.print(done...); printErr != nil {
		return printErr
	}
	return err
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.ListRuns()
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(a.out, runs)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tGEN\tNODES\tSNAPSHOTS\tSEALED\tTEXT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%v\t%s\n",
			r.ID, r.CreatedAt.Format(time.DateTime), r.Generation, r.Nodes, r.Snapshots, r.Sealed, truncate(r.Text, 32))
	}
	return tw.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.show(args[0])
	if err != nil {
		return err
	}
	return a.print(summary)
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.DeleteRun(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", args[0])
	return nil
}

// =============================================================================
// Runs
// =============================================================================

// grow runs one engine over text and stores its snapshots. On cancellation
// the final state is still saved and returned along with ctx.Err().
func (a *app) grow(ctx context.Context, text string, opts growOptions) (*Summary, error) {
	cfg := a.cfg.EngineConfig()
	runID := storage.NewRunID()
	logger := a.logger.With("run", runID)

	e, err := growth.New(cfg, semantic.NewDefaultField(),
		growth.WithLogger(logger),
		growth.WithRecorder(a.metrics.ForRun(runID)),
	)
	if err != nil {
		return nil, err
	}
	run, err := a.store.CreateRunFor(runID, text, cfg)
	if err != nil {
		return nil, err
	}
	e.Initialize(text)

	save := func() error {
		return a.store.SaveSnapshot(run.ID, e.Snapshot())
	}

	start := time.Now()
	ticks, err := growth.Drive(ctx, e, growth.DriveOptions{
		FPS:      opts.FPS,
		MaxTicks: opts.MaxTicks,
		OnTick: func(r growth.TickReport) error {
			if opts.SaveEvery > 0 && r.Generation%opts.SaveEvery == 0 {
				return save()
			}
			return nil
		},
	})
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	if saveErr := save(); saveErr != nil {
		return nil, saveErr
	}
	if keep := a.cfg.Storage.KeepSnapshots; keep > 0 {
		if _, pruneErr := a.store.Prune(run.ID, keep); pruneErr != nil {
			logger.Warn("pruning snapshots failed", "error", pruneErr)
		}
	}

	s := summarize(run.ID, e)
	s.Ticks = ticks
	s.Elapsed = time.Since(start)
	logger.Info("run finished", "ticks", ticks, "nodes", s.Nodes, "patterns", len(e.Patterns()), "elapsed", s.Elapsed)
	return s, err
}

// show restores the latest snapshot of a run into a fresh engine. Runs that
// recorded their engine configuration are restored with it; older runs fall
// back to the current configuration.
func (a *app) show(runID string) (*Summary, error) {
	run, err := a.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	snap, err := a.store.LatestSnapshot(runID)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg.EngineConfig()
	if run.Engine != nil {
		cfg = *run.Engine
	}
	e, err := growth.New(cfg, semantic.NewDefaultField(), growth.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if err := e.Restore(snap); err != nil {
		return nil, err
	}
	return summarize(runID, e), nil
}

func summarize(runID string, e *growth.Engine) *Summary {
	m := e.Metrics()
	s := &Summary{
		RunID:            runID,
		Text:             e.Text(),
		Generation:       m.Generation,
		Nodes:            m.Nodes,
		Connections:      m.Connections,
		Frontier:         m.Frontier,
		Done:             e.Done(),
		Patterns:         make(map[graph.PatternKind]int),
		SemanticDensity:  m.SemanticDensity,
		VisualComplexity: m.VisualComplexity,
		AverageResonance: m.AverageResonance,
		CognitiveLoad:    m.CognitiveLoad,
		SeedCount:        e.Config().SeedCount,
		MaxNodes:         e.Config().Limits.MaxNodes,
		Parameters:       m.Parameters,
	}
	for _, p := range e.Patterns() {
		s.Patterns[p.Kind]++
	}
	return s
}

// =============================================================================
// Output
// =============================================================================

func (a *app) print(summaries ...*Summary) error {
	if a.json {
		if len(summaries) == 1 {
			return writeJSON(a.out, summaries[0])
		}
		return writeJSON(a.out, summaries)
	}
	for _, s := range summaries {
		fmt.Fprintf(a.out, "run %s\n", s.RunID)
		fmt.Fprintf(a.out, "  text:        %s\n", truncate(s.Text, 60))
		fmt.Fprintf(a.out, "  generation:  %d (done: %v)\n", s.Generation, s.Done)
		fmt.Fprintf(a.out, "  nodes:       %d, connections: %d, frontier: %d\n", s.Nodes, s.Connections, s.Frontier)
		fmt.Fprintf(a.out, "  patterns:    %d clusters, %d bridges, %d spirals\n",
			s.Patterns[graph.PatternCluster], s.Patterns[graph.PatternBridge], s.Patterns[graph.PatternSpiral])
		fmt.Fprintf(a.out, "  density:     %.3f, complexity: %.3f, resonance: %.3f, load: %.3f\n",
			s.SemanticDensity, s.VisualComplexity, s.AverageResonance, s.CognitiveLoad)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening batch file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	if len(lines) == 0 {
		return nil, errors.New("batch file has no text")
	}
	return lines, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
