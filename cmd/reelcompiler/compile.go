package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/reelcompiler/internal/config"
	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/internal/gui"
	"github.com/kikiluvv/reelcompiler/internal/logging"
	"github.com/kikiluvv/reelcompiler/internal/pipeline"
	"github.com/kikiluvv/reelcompiler/internal/planner"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

const barSteps = 1000

// runFlags override the compilation section of the config file
type runFlags struct {
	source  string
	output  string
	total   float64
	scene   float64
	gridMix float64
	volume  float64
	share   float64
	seed    uint64
}

var (
	compileFlags runFlags
	planFlags    runFlags
	tailLines    int
	logFile      string
)

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	def := config.Default().Compilation
	flags := cmd.Flags()
	flags.StringVarP(&f.source, "source", "s", "", "source folder, searched recursively")
	flags.StringVarP(&f.output, "output", "o", def.Output, "output file")
	flags.Float64VarP(&f.total, "total", "t", def.TotalSeconds, "total length in seconds")
	flags.Float64Var(&f.scene, "scene", def.SceneSeconds, "scene length in seconds")
	flags.Float64Var(&f.gridMix, "grid-mix", def.GridMix, "chance of a grid scene, 0..1")
	flags.Float64Var(&f.volume, "volume", def.Volume, "clip audio volume multiplier")
	flags.Float64Var(&f.share, "grid3x3-share", def.Grid3x3Share, "chance of 3x3 over 2x2 when enough clips exist, 0..1")
	flags.Uint64Var(&f.seed, "seed", 0, "random seed (0 picks one)")
}

// apply layers changed flags and an optional source argument over base
func (f *runFlags) apply(cmd *cobra.Command, args []string, base config.Compilation) config.Compilation {
	flags := cmd.Flags()
	comp := base
	if len(args) > 0 {
		comp.Source = args[0]
	}
	if flags.Changed("source") {
		comp.Source = f.source
	}
	if flags.Changed("output") {
		comp.Output = f.output
	}
	if flags.Changed("total") {
		comp.TotalSeconds = f.total
	}
	if flags.Changed("scene") {
		comp.SceneSeconds = f.scene
	}
	if flags.Changed("grid-mix") {
		comp.GridMix = f.gridMix
	}
	if flags.Changed("volume") {
		comp.Volume = f.volume
	}
	if flags.Changed("grid3x3-share") {
		comp.Grid3x3Share = f.share
	}
	if flags.Changed("seed") {
		comp.Seed = f.seed
	}
	return comp
}

var compileCmd = &cobra.Command{
	Use:   "compile [source folder]",
	Short: "Render a compilation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		comp := compileFlags.apply(cmd, args, cfg.Compilation)

		logger := log.Logger
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return errs.Wrap(errs.ErrConfig, err, "log file %q", logFile)
			}
			defer f.Close()
			logger = logging.NewLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, f)
		}

		pipe, err := pipeline.New(logger, cfg)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(barSteps,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("starting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)

		sink := pipeline.SinkFuncs{
			State: func(c pipeline.StateChange) {
				bar.Describe(describe(c))
			},
			Progress: func(v float64) {
				_ = bar.Set(int(v * barSteps))
			},
		}

		res := pipe.Compile(cmd.Context(), comp, sink)
		if !res.Success {
			fmt.Fprintln(os.Stderr)
		}

		switch {
		case res.Success:
			logger.Info().
				Str("output", res.Output).
				Str("size", humanize.Bytes(uint64(util.FileSize(res.Output)))).
				Int("scenes", res.Scenes).
				Dur("elapsed", res.Elapsed).
				Msg("compilation complete")
			return nil
		case errs.IsCancelled(res.Err):
			logger.Warn().Msg("compilation cancelled")
			return res.Err
		default:
			logger.Error().Err(res.Err).Str("kind", errs.Kind(res.Err)).Msg("compilation failed")
			for _, line := range res.LogTail(tailLines) {
				fmt.Fprintln(os.Stderr, "  "+line)
			}
			return res.Err
		}
	},
}

func describe(c pipeline.StateChange) string {
	if c.State == pipeline.StateRendering {
		return fmt.Sprintf("scene %d/%d", c.Scene+1, c.Scenes)
	}
	return c.State.Value
}

var planCmd = &cobra.Command{
	Use:   "plan [source folder]",
	Short: "Scan and plan a compilation without rendering; prints the timeline as CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		comp := planFlags.apply(cmd, args, cfg.Compilation)

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}

		plans, seed, err := pipe.Preview(cmd.Context(), comp)
		if err != nil {
			return err
		}

		summary := planner.Summary(plans)
		log.Info().
			Uint64("seed", seed).
			Int("scenes", len(plans)).
			Int("single", summary[planner.LayoutSingle]).
			Int("grid2x2", summary[planner.LayoutGrid2x2]).
			Int("grid3x3", summary[planner.LayoutGrid3x3]).
			Msg("timeline planned")

		return planner.WriteCSV(cmd.OutOrStdout(), plans)
	},
}

var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Open the compilation window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}

		gui.Run(cmd.Context(), logging.WithComponent("gui"), cfg, pipe)
		return nil
	},
}

func init() {
	addRunFlags(compileCmd, &compileFlags)
	addRunFlags(planCmd, &planFlags)
	compileCmd.Flags().IntVar(&tailLines, "tail", 20, "log lines to print when a run fails")
	compileCmd.Flags().StringVar(&logFile, "log-file", "", "also append the run log to this file")
}
