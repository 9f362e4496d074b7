package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/format"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

type inspectFlags struct {
	runID   string
	last    int
	jsonOut bool
}

func newInspectCmd(g *globals) *cobra.Command {
	var fl inspectFlags
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List recorded runs, or the trials of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := g.mode()
			if err != nil {
				return err
			}
			store, err := g.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if fl.runID != "" {
				return runDetail(cmd.OutOrStdout(), store, fl.runID, mode, fl.jsonOut)
			}
			return runList(cmd.OutOrStdout(), store, fl.last, mode, fl.jsonOut)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.runID, "run", "", "show the trials of one run")
	f.IntVar(&fl.last, "last", 20, "show N most recent runs")
	f.BoolVar(&fl.jsonOut, "json", false, "output as JSON instead of a table")
	return cmd
}

// #region list-mode

type runRow struct {
	RunID     string            `json:"run_id"`
	Test      string            `json:"test"`
	Status    string            `json:"status"`
	FrameRate float64           `json:"frame_rate"`
	Roots     map[string]uint64 `json:"roots"`
	Trials    int               `json:"trials"`
	CreatedAt string            `json:"created_at"`
}

func runList(w io.Writer, store *state.Store, last int, mode format.Mode, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	rows := make([]runRow, 0, len(runs))
	for _, rec := range runs {
		trials, err := store.ListTrials(rec.RunID)
		if err != nil {
			return err
		}
		rows = append(rows, runRow{
			RunID:     rec.RunID,
			Test:      rec.Test,
			Status:    rec.Status,
			FrameRate: rec.Device.FrameRate,
			Roots:     rec.Roots,
			Trials:    len(trials),
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}
	if jsonOut {
		return writeJSON(w, rows)
	}

	t := format.NewTable(mode)
	t.Header("run_id", "test", "status", "frame_rate", "trials", "created_at")
	t.AlignColumn(4, format.AlignRight)
	t.AlignColumn(5, format.AlignRight)
	for _, r := range rows {
		t.Row(r.RunID, r.Test, r.Status, format.Float(r.FrameRate), r.Trials, r.CreatedAt)
	}
	_, err = io.WriteString(w, t.String())
	return err
}

// #endregion list-mode

// #region detail-mode

type trialRow struct {
	Section    string    `json:"section"`
	Trial      int       `json:"trial"`
	Block      int       `json:"block"`
	Frames     []int     `json:"frames"`
	Numbers    []int     `json:"numbers"`
	Responded  bool      `json:"responded"`
	Response   []float64 `json:"response,omitempty"`
	TrialValue []float64 `json:"trial_value,omitempty"`
	Scored     bool      `json:"scored"`
	Correct    bool      `json:"correct"`
	Distance   float64   `json:"distance"`
}

func components(v experiment.Value) []float64 {
	out := make([]float64, v.Dimension())
	for i := range out {
		out[i] = v.Component(i)
	}
	return out
}

func runDetail(w io.Writer, store *state.Store, runID string, mode format.Mode, jsonOut bool) error {
	rec, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	trials, err := store.ListTrials(runID)
	if err != nil {
		return err
	}
	rows := make([]trialRow, len(trials))
	for i, tr := range trials {
		rows[i] = trialRow{
			Section:    tr.Section,
			Trial:      tr.Trial,
			Block:      tr.Block,
			Frames:     tr.Frames,
			Numbers:    tr.Numbers,
			Responded:  tr.Responded,
			TrialValue: components(tr.TrialValue),
			Scored:     tr.Scored,
			Correct:    tr.Correct,
			Distance:   tr.Distance,
		}
		if tr.Responded {
			rows[i].Response = components(tr.Response)
		}
	}
	if jsonOut {
		return writeJSON(w, struct {
			RunID  string            `json:"run_id"`
			Test   string            `json:"test"`
			Status string            `json:"status"`
			Device experiment.Device `json:"device"`
			Roots  map[string]uint64 `json:"roots"`
			Trials []trialRow        `json:"trials"`
		}{rec.RunID, rec.Test, rec.Status, rec.Device, rec.Roots, rows})
	}

	if mode != format.CSV {
		fmt.Fprintf(w, "run %s  test %s  status %s  %s Hz\n", rec.RunID, rec.Test, rec.Status, format.Float(rec.Device.FrameRate))
		for name, root := range rec.Roots {
			fmt.Fprintf(w, "  root %-12s %s\n", name, format.Seed(root))
		}
	}
	t := format.NewTable(mode)
	t.Header("section", "trial", "block", "frames", "numbers", "response", "trial_value", "correct")
	t.AlignColumn(2, format.AlignRight)
	t.AlignColumn(3, format.AlignRight)
	scored, correct := 0, 0
	for _, r := range rows {
		mark := ""
		if r.Scored {
			mark = format.BoolMark(r.Correct)
			scored++
			if r.Correct {
				correct++
			}
		}
		t.Row(r.Section, r.Trial, r.Block, fmt.Sprint(r.Frames), fmt.Sprint(r.Numbers),
			floats(r.Response), floats(r.TrialValue), mark)
	}
	t.Footer("", fmt.Sprintf("%d trials", len(rows)), "", "", "", "", "", accuracy(correct, scored))
	_, err = io.WriteString(w, t.String())
	return err
}

func floats(v []float64) string {
	if len(v) == 0 {
		return ""
	}
	s := ""
	for i, f := range v {
		if i > 0 {
			s += " "
		}
		s += format.Float(f)
	}
	return s
}

// #endregion detail-mode

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
