package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// SilenceSegment represents a period of silence in audio
type SilenceSegment struct {
	Start    float64
	End      float64
	Duration float64
}

// DetectSilence finds silence segments in an audio/video file
func (e *Executor) DetectSilence(ctx context.Context, input string, noiseThreshold float64, minDuration float64) ([]SilenceSegment, error) {
	e.logger.Debug().
		Str("input", input).
		Float64("noise_threshold", noiseThreshold).
		Float64("min_duration", minDuration).
		Msg("detecting silence")

	var stderrBuf bytes.Buffer
	var mu sync.Mutex

	opts := RunOptions{
		Args: []string{
			"-i", input,
			"-af", fmt.Sprintf("silencedetect=noise=%.6fdB:d=%.6f", noiseThreshold, minDuration),
			"-f", "null",
			"-",
		},
		LogHandler: func(line string) {
			mu.Lock()
			stderrBuf.WriteString(line + "\n")
			mu.Unlock()
		},
	}

	err := e.Run(ctx, opts)

	mu.Lock()
	output := stderrBuf.String()
	mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// ffmpeg exits non-zero on the null muxer for some inputs even
		// though the filter output is usable
		if !strings.Contains(err.Error(), "Conversion failed") &&
			!strings.Contains(err.Error(), "Invalid return value") &&
			!strings.Contains(err.Error(), "Output file is empty") {
			return nil, fmt.Errorf("silence detection failed: %w", err)
		}
	}

	if output == "" {
		return nil, fmt.Errorf("silence detection produced no output")
	}

	return parseSilenceOutput(output), nil
}

// parseSilenceOutput extracts silence segments from ffmpeg output
func parseSilenceOutput(output string) []SilenceSegment {
	var segments []SilenceSegment
	var currentStart float64

	lines := strings.Split(output, "\n")
	for _, line := range lines {
		if strings.Contains(line, "silence_start:") {
			parts := strings.Split(line, "silence_start:")
			if len(parts) == 2 {
				currentStart, _ = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			}
		} else if strings.Contains(line, "silence_end:") {
			parts := strings.Split(line, "silence_end:")
			if len(parts) == 2 {
				endStr := strings.Fields(strings.TrimSpace(parts[1]))[0]
				end, _ := strconv.ParseFloat(endStr, 64)

				var duration float64
				if strings.Contains(line, "silence_duration:") {
					durParts := strings.Split(line, "silence_duration:")
					if len(durParts) == 2 {
						duration, _ = strconv.ParseFloat(strings.TrimSpace(durParts[1]), 64)
					}
				} else {
					duration = end - currentStart
				}

				segments = append(segments, SilenceSegment{
					Start:    currentStart,
					End:      end,
					Duration: duration,
				})
			}
		}
	}

	return segments
}

// VolumeStats holds volume analysis results
type VolumeStats struct {
	MeanVolume float64
	MaxVolume  float64
}

// AnalyzeVolume calculates volume statistics for an audio/video file
func (e *Executor) AnalyzeVolume(ctx context.Context, input string) (*VolumeStats, error) {
	e.logger.Debug().Str("input", input).Msg("analyzing volume")

	var stderrBuf bytes.Buffer
	var mu sync.Mutex

	opts := RunOptions{
		Args: []string{
			"-i", input,
			"-af", "volumedetect",
			"-f", "null",
			"-",
		},
		LogHandler: func(line string) {
			mu.Lock()
			stderrBuf.WriteString(line + "\n")
			mu.Unlock()
		},
	}

	err := e.Run(ctx, opts)

	mu.Lock()
	output := stderrBuf.String()
	mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.Contains(err.Error(), "Conversion failed") &&
			!strings.Contains(err.Error(), "Invalid return value") &&
			!strings.Contains(err.Error(), "Output file is empty") {
			return nil, fmt.Errorf("volume analysis failed: %w", err)
		}
	}

	if output == "" {
		return nil, fmt.Errorf("volume analysis produced no output")
	}

	return parseVolumeOutput(output), nil
}

// parseVolumeOutput extracts volume stats from ffmpeg output
func parseVolumeOutput(output string) *VolumeStats {
	stats := &VolumeStats{}

	lines := strings.Split(output, "\n")
	for _, line := range lines {
		if strings.Contains(line, "mean_volume:") {
			parts := strings.Split(line, "mean_volume:")
			if len(parts) == 2 {
				valStr := strings.Fields(strings.TrimSpace(parts[1]))[0]
				stats.MeanVolume, _ = strconv.ParseFloat(valStr, 64)
			}
		} else if strings.Contains(line, "max_volume:") {
			parts := strings.Split(line, "max_volume:")
			if len(parts) == 2 {
				valStr := strings.Fields(strings.TrimSpace(parts[1]))[0]
				stats.MaxVolume, _ = strconv.ParseFloat(valStr, 64)
			}
		}
	}

	return stats
}
