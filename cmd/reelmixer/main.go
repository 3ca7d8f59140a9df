package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/keagan/reelmixer/internal/config"
	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/keagan/reelmixer/internal/history"
	"github.com/keagan/reelmixer/internal/logging"
	"github.com/keagan/reelmixer/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "reelmixer",
	Short:        "reelmixer - vertical highlight reels from raw footage",
	Long:         "Scores raw videos for faces, motion and on-screen text, cuts the best moments and assembles them into a branded vertical reel.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose, logFormat)

		cfg, err := config.Load(cmd.Context(), cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./reelmixer.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format: console or json")

	rootCmd.AddCommand(mixCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cleanupCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe [video...]",
	Short: "Print stream information for videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		ff, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads, ffmpeg.WithBinary(cfg.FFmpeg.BinaryPath))
		if err != nil {
			return err
		}

		for _, path := range args {
			info, err := ff.ProbeVideo(cmd.Context(), path)
			if err != nil {
				log.Error().Err(err).Str("video", path).Msg("probe failed")
				continue
			}
			fmt.Printf("%s\n  duration  %s\n  size      %dx%d\n  fps       %.3f\n  video     %s\n  audio     %t %s\n",
				path, info.Duration.Round(time.Millisecond), info.Width, info.Height, info.FPS,
				info.VideoCodec, info.HasAudio, info.AudioCodec)
		}
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
		fmt.Print(config.FromContext(cmd.Context()).String())
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := config.FromContext(cmd.Context()).Save(path); err != nil {
				return err
			}
			log.Info().Str("path", path).Msg("wrote default config")
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		c := exec.CommandContext(cmd.Context(), editor, path)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("run %s: %w", editor, err)
		}

		if _, err := config.Load(cmd.Context(), path); err != nil {
			log.Warn().Err(err).Msg("edited config does not load")
			return err
		}
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent mixes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		store, err := history.Open(cmd.Context(), log.Logger, cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

var cleanupAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove temp directories left behind by interrupted mixes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		removed, err := storage.SweepStale(cmd.Context(), log.Logger, tempRoot(cfg), cleanupAge)
		if err != nil {
			return err
		}
		log.Info().Int("removed", len(removed)).Msg("cleanup complete")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	cleanupCmd.Flags().DurationVar(&cleanupAge, "older-than", 24*time.Hour, "only remove directories older than this")
}

func tempRoot(cfg *config.Config) string {
	if cfg.TempDir != "" {
		return cfg.TempDir
	}
	return os.TempDir()
}
