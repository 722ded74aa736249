package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/examwarden/internal/alerts"
	"github.com/keagan/examwarden/internal/config"
	"github.com/keagan/examwarden/internal/detect"
	"github.com/keagan/examwarden/internal/evidence"
	"github.com/keagan/examwarden/internal/ffmpeg"
	"github.com/keagan/examwarden/internal/scoring"
	"github.com/keagan/examwarden/internal/session"
	"github.com/keagan/examwarden/internal/store"
	"github.com/keagan/examwarden/internal/video"
	"github.com/keagan/examwarden/pkg/util"
)

// Analyzer drives the full offline analysis for one recording: frame
// sampling, detector fan-out, alert debouncing, audio analysis, scoring and
// persistence. All mutable per-session state is local to one AnalyzeVideo
// call, so one Analyzer may process recordings back to back.
type Analyzer struct {
	logger zerolog.Logger
	cfg    *config.Config
	suite  *detect.Suite
	policy scoring.Policy
	store  *store.Store

	openSource  func(ctx context.Context, input string) (video.Source, error)
	newEvidence func(sessionID string) (evidence.Writer, error)
}

// New wires up an analyzer from configuration
func New(logger zerolog.Logger, cfg *config.Config) (*Analyzer, error) {
	exec, err := ffmpeg.New(logger, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	suite, err := detect.SuiteFromConfig(logger, cfg, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to build detector suite: %w", err)
	}

	st, err := store.New(cfg.LogsDir)
	if err != nil {
		return nil, err
	}

	evidenceRoot := filepath.Join(cfg.LogsDir, "evidence")
	samplerOpts := video.Options{
		Stride:      cfg.Sampler.FrameStride,
		ResizeWidth: cfg.Sampler.ResizeWidth,
	}

	return &Analyzer{
		logger: logger.With().Str("component", "pipeline").Logger(),
		cfg:    cfg,
		suite:  suite,
		policy: scoring.NewDefaultPolicy(cfg.Scoring),
		store:  st,
		openSource: func(ctx context.Context, input string) (video.Source, error) {
			return video.Open(ctx, logger, exec, input, samplerOpts)
		},
		newEvidence: func(sessionID string) (evidence.Writer, error) {
			return evidence.NewDirWriter(evidenceRoot, sessionID)
		},
	}, nil
}

// Close releases detector resources
func (a *Analyzer) Close() error {
	if a.suite != nil {
		return a.suite.Close()
	}
	return nil
}

// Store exposes the record store for report commands
func (a *Analyzer) Store() *store.Store {
	return a.store
}

// AnalyzeVideo replays one recording through the detector bank and persists
// the scored session record. Only a source open failure is returned as an
// error; every other failure degrades to a missing signal or missing
// evidence inside an otherwise-complete record.
func (a *Analyzer) AnalyzeVideo(ctx context.Context, videoPath, audioPath, sessionID string) (*session.Summary, error) {
	if sessionID == "" {
		sessionID = deriveSessionID(videoPath, time.Now())
	}

	a.logger.Info().
		Str("video", videoPath).
		Str("audio", audioPath).
		Str("session", sessionID).
		Msg("starting session analysis")

	src, err := a.openSource(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	evw, err := a.newEvidence(sessionID)
	if err != nil {
		// evidence is best-effort; alerts are still recorded without images
		a.logger.Warn().Err(err).Msg("evidence storage unavailable")
		evw = nil
	}

	machine := alerts.NewMachine(a.logger, sessionID, evw)
	sessionAlerts := a.runFrameLoop(ctx, src, machine)

	framesRead := src.FramesRead()
	summary := session.Summary{
		SessionID: sessionID,
		Duration:  float64(framesRead) / src.FPS(),
		NumFrames: framesRead,
		FPS:       src.FPS(),
		Alerts:    sessionAlerts,
	}

	var audioSummary session.AudioSummary
	if a.suite.Audio != nil {
		if audioPath == "" {
			// no separate audio file: fall back to the recording's own track
			if p, ok := src.(interface{ HasAudio() bool }); ok && p.HasAudio() {
				audioPath = videoPath
			}
		}
		if audioPath != "" {
			audioSummary, err = a.suite.Audio.Analyze(ctx, audioPath)
			if err != nil {
				a.logger.Warn().Err(err).Msg("audio analysis failed, continuing without it")
				audioSummary = nil
			}
		}
	}

	rec := a.buildRecord(summary, audioSummary)
	if err := a.store.Save(rec); err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("session", sessionID).
		Str("verdict", string(rec.Verdict)).
		Int("alerts", len(sessionAlerts)).
		Float64("overall", rec.Scores.Overall).
		Msg("session analysis complete")

	return &summary, nil
}

// runFrameLoop performs the single sequential pass over sampled frames
func (a *Analyzer) runFrameLoop(ctx context.Context, src video.Source, machine *alerts.Machine) []session.AlertEvent {
	objectsEvery := a.cfg.Cadence.ObjectsEvery
	if objectsEvery <= 0 {
		objectsEvery = 10
	}
	multiFaceEvery := a.cfg.Cadence.MultiFaceEvery
	if multiFaceEvery <= 0 {
		multiFaceEvery = 4
	}

	sessionAlerts := make([]session.AlertEvent, 0)
	processedIdx := 0

	// explicit holdover slot for the multi-face cadence; carries the last
	// computed count across skipped frames
	lastFaceCount := 1

	for {
		frame, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.logger.Warn().Err(err).Msg("frame stream ended early")
			break
		}

		sig := alerts.Neutral()

		if a.suite.Face != nil {
			present, err := a.suite.Face.DetectFace(ctx, frame.Image)
			if err != nil {
				a.logger.Warn().Err(err).Int("frame", frame.Index).Msg("face detection failed")
			} else {
				sig.FacePresent = present
			}
		}

		if a.suite.Eyes != nil {
			dir, err := a.suite.Eyes.TrackEyes(ctx, frame.Image)
			if err != nil {
				a.logger.Warn().Err(err).Int("frame", frame.Index).Msg("eye tracking failed")
			} else {
				sig.GazeDirection = dir
			}
		}

		if a.suite.Mouth != nil {
			moving, err := a.suite.Mouth.MonitorMouth(ctx, frame.Image)
			if err != nil {
				a.logger.Warn().Err(err).Int("frame", frame.Index).Msg("mouth monitoring failed")
			} else {
				sig.MouthMoving = moving
			}
		}

		// objects run on their own cadence; results apply only to the
		// frame the detector actually saw
		if a.suite.Objects != nil && processedIdx%objectsEvery == 0 {
			objs, err := a.suite.Objects.DetectObjects(ctx, frame.Image)
			if err != nil {
				a.logger.Warn().Err(err).Int("frame", frame.Index).Msg("object detection failed")
			} else {
				sig.Objects = objs
			}
		}

		if a.suite.MultiFace != nil && processedIdx%multiFaceEvery == 0 {
			count, err := a.suite.MultiFace.CountFaces(ctx, frame.Image)
			if err != nil {
				a.logger.Warn().Err(err).Int("frame", frame.Index).Msg("face counting failed")
				// a failed count must not keep an old violation alive
				lastFaceCount = 1
			} else {
				if count < 1 {
					count = 1
				}
				lastFaceCount = count
			}
		}
		sig.FaceCount = lastFaceCount

		sessionAlerts = append(sessionAlerts, machine.Observe(frame, sig)...)
		processedIdx++
	}

	return sessionAlerts
}

// buildRecord computes scores and verdict and assembles the durable record
func (a *Analyzer) buildRecord(summary session.Summary, audioSummary session.AudioSummary) *session.Record {
	byType := summary.CountByType()
	alertSummary := session.AlertSummary{
		Total:  len(summary.Alerts),
		ByType: byType,
	}

	videoScore := a.policy.VideoScore(alertSummary, summary.Alerts)
	audioScore := a.policy.AudioScore(audioSummary)
	overall := a.policy.OverallScore(videoScore, audioScore)

	return &session.Record{
		Session: summary,
		Verdict: scoring.Verdict(byType, alertSummary.Total, overall),
		Alerts:  summary.Alerts,
		Scores: session.Scores{
			Video:   videoScore,
			Audio:   audioScore,
			Overall: overall,
		},
		Audio:       audioSummary,
		GeneratedAt: time.Now(),
	}
}

// deriveSessionID builds a default identifier from the video base name and
// a wall-clock stamp. Not collision-proof; overwriting an existing session
// is accepted behavior.
func deriveSessionID(videoPath string, now time.Time) string {
	return fmt.Sprintf("%s_%s", util.Stem(videoPath), now.Format("20060102_150405"))
}
