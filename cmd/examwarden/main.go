package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/keagan/examwarden/internal/config"
	"github.com/keagan/examwarden/internal/logging"
	"github.com/keagan/examwarden/internal/pipeline"
	"github.com/keagan/examwarden/internal/store"
	"github.com/keagan/examwarden/pkg/util"
)

var (
	cfgFile string
	verbose bool

	audioPath string
	sessionID string
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "examwarden",
	Short: "examwarden - offline exam recording integrity analyzer",
	Long:  "Replays recorded exam sessions through a bank of signal detectors and produces scored, evidence-backed session verdicts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	analyzeCmd.Flags().StringVar(&audioPath, "audio", "", "audio file to analyze alongside the video")
	analyzeCmd.Flags().StringVar(&sessionID, "session", "", "session identifier (derived from the video name when empty)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)

	reportCmd.AddCommand(reportListCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [recording]",
	Short: "Analyze a recorded exam session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		analyzer, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer analyzer.Close()

		summary, err := analyzer.AnalyzeVideo(cmd.Context(), args[0], audioPath, sessionID)
		if err != nil {
			return err
		}

		rec, err := analyzer.Store().Load(summary.SessionID)
		if err != nil {
			return err
		}

		log.Info().
			Str("session", summary.SessionID).
			Str("verdict", string(rec.Verdict)).
			Int("alerts", len(summary.Alerts)).
			Float64("video_score", rec.Scores.Video).
			Float64("audio_score", rec.Scores.Audio).
			Float64("overall_score", rec.Scores.Overall).
			Msg("analysis complete")

		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [session-id]",
	Short: "Print the persisted report for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		st, err := store.New(cfg.LogsDir)
		if err != nil {
			return err
		}

		rec, err := st.Load(args[0])
		if err != nil {
			return err
		}

		duration := time.Duration(rec.Session.Duration * float64(time.Second))
		fmt.Printf("session:  %s\n", rec.Session.SessionID)
		fmt.Printf("verdict:  %s\n", rec.Verdict)
		fmt.Printf("duration: %s (%d frames @ %.2f fps)\n",
			util.FormatDuration(duration), rec.Session.NumFrames, rec.Session.FPS)
		fmt.Printf("scores:   video=%.2f audio=%.2f overall=%.2f\n",
			rec.Scores.Video, rec.Scores.Audio, rec.Scores.Overall)
		fmt.Printf("alerts:   %d\n", len(rec.Alerts))
		for _, a := range rec.Alerts {
			fmt.Printf("  [%8.2fs] frame %-6d %-16s %-6s %s\n",
				a.Timestamp, a.FrameIndex, a.Type, a.Severity, a.ImagePath)
		}

		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyzed sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		st, err := store.New(cfg.LogsDir)
		if err != nil {
			return err
		}

		ids, err := st.List()
		if err != nil {
			return err
		}

		for _, id := range ids {
			rec, err := st.Load(id)
			if err != nil {
				log.Warn().Err(err).Str("session", id).Msg("unreadable session record")
				continue
			}
			fmt.Printf("%-40s %-10s alerts=%-4d overall=%.2f\n",
				id, rec.Verdict, len(rec.Alerts), rec.Scores.Overall)
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
		cfg := config.FromContext(cmd.Context())
		return cfg.Save("/dev/stdout")
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml in the working directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if err := cfg.Save("config.yaml"); err != nil {
			return err
		}
		log.Info().Str("path", "config.yaml").Msg("config written")
		return nil
	},
}
