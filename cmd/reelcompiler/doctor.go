package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/reelcompiler/internal/config"
	"github.com/kikiluvv/reelcompiler/internal/ffmpeg"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg and ffprobe are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
			FFmpegPath:  cfg.FFmpeg.BinaryPath,
			FFprobePath: cfg.FFmpeg.ProbePath,
		})
		if err != nil {
			log.Error().Err(err).Msg("install ffmpeg (which ships ffprobe) and make sure it is on PATH")
			return err
		}

		ffmpegPath, ffprobePath := exec.Paths()
		ffmpegVersion, err := exec.Version(cmd.Context())
		if err != nil {
			return err
		}
		ffprobeVersion, err := exec.ProbeVersion(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ffmpeg:  %s\n         %s\n", ffmpegPath, ffmpegVersion)
		fmt.Fprintf(out, "ffprobe: %s\n         %s\n", ffprobePath, ffprobeVersion)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.FromContext(cmd.Context()).Encode(cmd.OutOrStdout())
	},
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.UserConfigPath()
		if len(args) > 0 {
			path = args[0]
		}

		if err := config.Default().Init(path, forceInit); err != nil {
			return err
		}

		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
