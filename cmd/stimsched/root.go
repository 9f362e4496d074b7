// stimsched compiles psychophysics experiment definitions into per-frame
// stimulus schedules, replays scripted sessions and serves compiled
// schedules to renderers over gRPC.
//
// Usage:
//
//	stimsched compile <definition>... [--seed section=root] [--out dir]
//	stimsched replay <fixture.yaml> [--csv dir]
//	stimsched export --run <id> --definition <ref> [-o fixture.yaml]
//	stimsched inspect [--run <id>] [--last N]
//	stimsched serve [--addr host:port]
//	stimsched examples [name]
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stimsched/internal/experiment"
	"github.com/danielpatrickdp/stimsched/internal/format"
	"github.com/danielpatrickdp/stimsched/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// globals holds the persistent flags shared by every command.
type globals struct {
	db        string
	logLevel  string
	logFormat string
	output    string
	device    experiment.Device
}

// envFlags maps persistent flags to their environment fallbacks.
var envFlags = map[string]string{
	"db":               "STIMSCHED_DB",
	"log-level":        "STIMSCHED_LOG_LEVEL",
	"log-format":       "STIMSCHED_LOG_FORMAT",
	"frame-rate":       "STIMSCHED_FRAME_RATE",
	"width":            "STIMSCHED_WIDTH",
	"height":           "STIMSCHED_HEIGHT",
	"sample-rate":      "STIMSCHED_SAMPLE_RATE",
	"pixels-per-cm":    "STIMSCHED_PIXELS_PER_CM",
	"viewing-distance": "STIMSCHED_VIEWING_DISTANCE",
}

func newRootCmd() *cobra.Command {
	g := &globals{device: experiment.DefaultDevice()}
	root := &cobra.Command{
		Use:   "stimsched",
		Short: "Compile psychophysics experiments into frame-accurate stimulus schedules",
		Long: "stimsched turns a YAML experiment definition into per-trial, per-frame\n" +
			"stimulus parameter tables, sound tables and timing checkpoints.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		Version:      version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&g.db, "db", "stimsched.db", "SQLite database for runs and results")
	f.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&g.logFormat, "log-format", "text", "log format: text or json")
	f.StringVar(&g.output, "format", "ascii", "table format: ascii, markdown or csv")
	f.Float64Var(&g.device.FrameRate, "frame-rate", g.device.FrameRate, "display refresh rate in Hz")
	f.IntVar(&g.device.Width, "width", g.device.Width, "screen width in pixels")
	f.IntVar(&g.device.Height, "height", g.device.Height, "screen height in pixels")
	f.IntVar(&g.device.SampleRate, "sample-rate", g.device.SampleRate, "audio sample rate in Hz")
	f.Float64Var(&g.device.PixelsPerCm, "pixels-per-cm", g.device.PixelsPerCm, "display pixel density")
	f.Float64Var(&g.device.ViewingDistanceCm, "viewing-distance", g.device.ViewingDistanceCm, "viewing distance in cm")

	root.AddCommand(
		newCompileCmd(g),
		newReplayCmd(g),
		newExportCmd(g),
		newInspectCmd(g),
		newServeCmd(g),
		newExamplesCmd(),
	)
	return root
}

// setup loads .env, applies environment fallbacks to flags left at their
// defaults and configures logging.
func (g *globals) setup(cmd *cobra.Command) error {
	_ = godotenv.Load(".env")
	fs := cmd.Flags()
	for name, key := range envFlags {
		fl := fs.Lookup(name)
		if fl == nil || fl.Changed {
			continue
		}
		if v, ok := os.LookupEnv(key); ok {
			if err := fs.Set(name, v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	level, err := logging.ParseLevel(g.logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, g.logFormat, cmd.ErrOrStderr())
	return g.device.Validate()
}

func (g *globals) mode() (format.Mode, error) {
	return format.ParseMode(g.output)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
