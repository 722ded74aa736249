package detect

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/keagan/examwarden/internal/ffmpeg"
	"github.com/keagan/examwarden/internal/session"
)

// LocalAudioAnalyzer derives a whole-file audio summary from ffmpeg volume
// and silence statistics. It stands in when no speaker-consistency service
// is configured.
type LocalAudioAnalyzer struct {
	logger zerolog.Logger
	ffmpeg *ffmpeg.Executor

	noiseThreshold float64
	minSilence     float64
}

// NewLocalAudioAnalyzer creates an analyzer backed by the ffmpeg executor
func NewLocalAudioAnalyzer(logger zerolog.Logger, exec *ffmpeg.Executor) *LocalAudioAnalyzer {
	return &LocalAudioAnalyzer{
		logger:         logger.With().Str("component", "audio-local").Logger(),
		ffmpeg:         exec,
		noiseThreshold: -30.0,
		minSilence:     1.0,
	}
}

// Analyze runs volume and silence analysis once over the whole file
func (a *LocalAudioAnalyzer) Analyze(ctx context.Context, audioPath string) (session.AudioSummary, error) {
	stats, err := a.ffmpeg.AnalyzeVolume(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("volume analysis failed: %w", err)
	}

	silences, err := a.ffmpeg.DetectSilence(ctx, audioPath, a.noiseThreshold, a.minSilence)
	if err != nil {
		return nil, fmt.Errorf("silence detection failed: %w", err)
	}

	var silenceTotal float64
	for _, s := range silences {
		silenceTotal += s.Duration
	}

	summary := session.AudioSummary{
		"analyzer":        "ffmpeg",
		"mean_volume":     stats.MeanVolume,
		"max_volume":      stats.MaxVolume,
		"num_silences":    len(silences),
		"silence_seconds": silenceTotal,
	}

	a.logger.Info().
		Float64("mean_volume", stats.MeanVolume).
		Int("silences", len(silences)).
		Msg("audio analysis complete")

	return summary, nil
}
