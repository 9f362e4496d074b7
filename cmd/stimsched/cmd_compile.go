package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/stimsched/internal/catalog"
	"github.com/danielpatrickdp/stimsched/internal/codec"
	"github.com/danielpatrickdp/stimsched/internal/format"
	"github.com/danielpatrickdp/stimsched/internal/logging"
	"github.com/danielpatrickdp/stimsched/internal/run"
)

type compileFlags struct {
	seeds map[string]string
	out   string
	jobs  int
}

func newCompileCmd(g *globals) *cobra.Command {
	var fl compileFlags
	cmd := &cobra.Command{
		Use:   "compile <definition>...",
		Short: "Compile definitions and print their schedule layout",
		Long: "Each argument is a catalog name or a YAML file. Definitions are\n" +
			"compiled concurrently; output keeps argument order.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, g, &fl, args)
		},
	}
	f := cmd.Flags()
	f.StringToStringVar(&fl.seeds, "seed", nil, "pin a section root (section=root, repeatable)")
	f.StringVar(&fl.out, "out", "", "write every compiled scene as a wire-encoded .stim file under this directory")
	f.IntVar(&fl.jobs, "jobs", runtime.NumCPU(), "definitions compiled in parallel")
	return cmd
}

func runCompile(cmd *cobra.Command, g *globals, fl *compileFlags, args []string) error {
	mode, err := g.mode()
	if err != nil {
		return err
	}
	seeds, err := parseSeeds(fl.seeds)
	if err != nil {
		return err
	}
	log := logging.New("compile")

	runs := make([]*run.Run, len(args))
	eg, ctx := errgroup.WithContext(cmd.Context())
	eg.SetLimit(max(fl.jobs, 1))
	for i, ref := range args {
		eg.Go(func() error {
			r, err := compileOne(ctx, g, ref, seeds)
			if err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}
			log.Debug("compiled", "definition", ref, "run_id", r.ID, "sections", len(r.Sections()))
			runs[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, r := range runs {
		if mode != format.CSV {
			fmt.Fprintf(w, "%s (%s)\n", r.Test.Name, args[i])
		}
		fmt.Fprint(w, layoutTable(r, mode).String())
		if fl.out != "" {
			if err := writeScenes(fl.out, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func compileOne(ctx context.Context, g *globals, ref string, seeds map[string]uint64) (*run.Run, error) {
	test, err := catalog.Open(ref)
	if err != nil {
		return nil, err
	}
	return run.Compile(ctx, test, g.device, run.Options{Seeds: seeds})
}

// layoutTable lists every scene of every section with its trial count and
// frame range.
func layoutTable(r *run.Run, mode format.Mode) *format.Table {
	t := format.NewTable(mode)
	t.Header("section", "root", "trials", "scene", "objects", "min_frames", "max_frames")
	for _, col := range []int{3, 5, 6, 7} {
		t.AlignColumn(col, format.AlignRight)
	}
	total := 0
	for _, sr := range r.Sections() {
		for _, s := range sr.Scenes {
			lo, hi := slices.Min(s.SceneEnd), slices.Max(s.SceneEnd)
			t.Row(sr.Section.Name, format.Seed(sr.Root), s.Trials, s.Scene.Name, s.Objects-1,
				format.Frames(lo, r.Device.FrameRate), format.Frames(hi, r.Device.FrameRate))
			total++
		}
	}
	t.Footer("", "", "", fmt.Sprintf("%d scenes", total))
	return t
}

func writeScenes(dir string, r *run.Run) error {
	base := filepath.Join(dir, r.Test.Name)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", base, err)
	}
	for _, sr := range r.Sections() {
		for _, s := range sr.Scenes {
			path := filepath.Join(base, sr.Section.Name+"."+s.Scene.Name+".stim")
			if err := os.WriteFile(path, codec.EncodeScene(sr.Section.Name, s), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
	}
	return nil
}
