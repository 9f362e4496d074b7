package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stimsched/internal/format"
	"github.com/danielpatrickdp/stimsched/internal/logging"
	"github.com/danielpatrickdp/stimsched/internal/replay"
	"github.com/danielpatrickdp/stimsched/internal/results"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

type replayFlags struct {
	persist   bool
	csv       string
	maxTrials int
	fallback  string
}

func newReplayCmd(g *globals) *cobra.Command {
	var fl replayFlags
	cmd := &cobra.Command{
		Use:   "replay <fixture.yaml>",
		Short: "Present a scripted session frame by frame and check its expectations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, g, &fl, args[0])
		},
	}
	f := cmd.Flags()
	f.BoolVar(&fl.persist, "persist", false, "record the run in the database")
	f.StringVar(&fl.csv, "csv", "", "write one results CSV per section under this directory")
	f.IntVar(&fl.maxTrials, "max-trials", 0, "override the fixture's trial limit")
	f.StringVar(&fl.fallback, "fallback", "", "override the fixture's fallback: correct, incorrect or none")
	return cmd
}

func runReplay(cmd *cobra.Command, g *globals, fl *replayFlags, path string) error {
	mode, err := g.mode()
	if err != nil {
		return err
	}
	fx, err := replay.LoadFixture(path)
	if err != nil {
		return err
	}
	if fl.maxTrials > 0 {
		fx.MaxTrials = fl.maxTrials
	}
	if fl.fallback != "" {
		fx.Fallback = fl.fallback
	}
	test, err := fx.Test()
	if err != nil {
		return err
	}

	var opts replay.Options
	if fl.persist {
		store, err := g.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}

	log := logging.New("replay")
	trials, r, err := replay.Replay(cmd.Context(), test, fx, opts)
	if err != nil {
		return err
	}
	sum := replay.Summarize(trials, r)
	log.Info("replay finished", "run_id", sum.RunID, "phase", sum.Phase, "trials", sum.Trials)

	w := cmd.OutOrStdout()
	fmt.Fprint(w, summaryTable(sum, mode).String())
	if mode != format.CSV {
		fmt.Fprintf(w, "run %s %s after %d trials, %d frames, %d transitions\n",
			sum.RunID, sum.Phase, sum.Trials, sum.Frames, sum.Transitions)
	}

	if fl.csv != "" {
		if err := os.MkdirAll(fl.csv, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", fl.csv, err)
		}
		for _, sr := range r.Sections() {
			if len(sr.Records) == 0 {
				continue
			}
			out := filepath.Join(fl.csv, sr.Section.Name+".csv")
			if err := os.WriteFile(out, []byte(results.CSV(sr)), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
		}
	}

	if mm := replay.Check(trials, fx.Expected); len(mm) > 0 {
		for _, m := range mm {
			fmt.Fprintln(cmd.ErrOrStderr(), m)
		}
		return fmt.Errorf("%d expectation(s) failed", len(mm))
	}
	return nil
}

func summaryTable(sum replay.Summary, mode format.Mode) *format.Table {
	t := format.NewTable(mode)
	t.Header("section", "trials", "scored", "correct", "accuracy")
	for col := 2; col <= 5; col++ {
		t.AlignColumn(col, format.AlignRight)
	}
	names := make([]string, 0, len(sum.Sections))
	for name := range sum.Sections {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s := sum.Sections[name]
		t.Row(name, s.Trials, s.Scored, s.Correct, accuracy(s.Correct, s.Scored))
	}
	t.Footer("total", sum.Trials, sum.Scored, sum.Correct, accuracy(sum.Correct, sum.Scored))
	return t
}

func accuracy(correct, scored int) string {
	if scored == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(correct)/float64(scored))
}

type exportFlags struct {
	runID      string
	definition string
	out        string
}

func newExportCmd(g *globals) *cobra.Command {
	var fl exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a replay fixture that reproduces a recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return runExport(cmd, store, &fl)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.runID, "run", "", "run ID to export")
	f.StringVar(&fl.definition, "definition", "", "catalog name or path of the run's definition")
	f.StringVarP(&fl.out, "output", "o", "", "fixture path (default stdout)")
	_ = cmd.MarkFlagRequired("run")
	_ = cmd.MarkFlagRequired("definition")
	return cmd
}

func runExport(cmd *cobra.Command, store *state.Store, fl *exportFlags) error {
	fx, err := replay.Export(store, fl.runID, fl.definition)
	if err != nil {
		return err
	}
	data, err := fx.Marshal()
	if err != nil {
		return err
	}
	if fl.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(fl.out, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	logging.New("export").Info("fixture written", "run_id", fl.runID, "path", fl.out, "trials", len(fx.Responses))
	return nil
}
