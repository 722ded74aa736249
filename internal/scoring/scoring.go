package scoring

import (
	"math"

	"github.com/keagan/examwarden/internal/config"
	"github.com/keagan/examwarden/internal/session"
)

// Verdict thresholds
const (
	suspiciousScoreFloor = 0.7
	suspiciousAlertLimit = 5
)

// NeutralAudioScore is used when no audio was analyzed
const NeutralAudioScore = 1.0

// Policy turns alert and audio summaries into scores. The aggregator treats
// this as replaceable and never inlines scoring math.
type Policy interface {
	VideoScore(summary session.AlertSummary, alerts []session.AlertEvent) float64
	AudioScore(audio session.AudioSummary) float64
	OverallScore(video, audio float64) float64
}

// DefaultPolicy applies per-severity penalties to the video score and a
// weighted combination for the overall score.
type DefaultPolicy struct {
	mediumPenalty float64
	highPenalty   float64
	videoWeight   float64
}

// NewDefaultPolicy builds the policy from config, falling back to the
// standard weights for unset values.
func NewDefaultPolicy(cfg config.ScoringConfig) *DefaultPolicy {
	p := &DefaultPolicy{
		mediumPenalty: cfg.MediumPenalty,
		highPenalty:   cfg.HighPenalty,
		videoWeight:   cfg.VideoWeight,
	}
	if p.mediumPenalty <= 0 {
		p.mediumPenalty = 0.05
	}
	if p.highPenalty <= 0 {
		p.highPenalty = 0.15
	}
	if p.videoWeight <= 0 || p.videoWeight > 1 {
		p.videoWeight = 0.7
	}
	return p
}

// VideoScore starts at 1.0 and subtracts a penalty per alert by severity
func (p *DefaultPolicy) VideoScore(_ session.AlertSummary, alerts []session.AlertEvent) float64 {
	score := 1.0
	for _, a := range alerts {
		switch a.Severity {
		case session.SeverityHigh:
			score -= p.highPenalty
		default:
			score -= p.mediumPenalty
		}
	}
	return clamp(score)
}

// AudioScore reads a detector-provided score when present and is otherwise
// neutral; a nil summary (audio disabled or failed) is neutral by contract.
func (p *DefaultPolicy) AudioScore(audio session.AudioSummary) float64 {
	if audio == nil {
		return NeutralAudioScore
	}
	for _, key := range []string{"score", "consistency"} {
		if v, ok := audio[key].(float64); ok {
			return clamp(v)
		}
	}
	return NeutralAudioScore
}

// OverallScore is a weighted average of video and audio contributions
func (p *DefaultPolicy) OverallScore(video, audio float64) float64 {
	return clamp(p.videoWeight*video + (1-p.videoWeight)*audio)
}

// Verdict applies the precedence policy: cheating-grade alert types first,
// then the suspicion thresholds, else clean. First match wins.
func Verdict(byType map[session.AlertType]int, totalAlerts int, overall float64) session.Verdict {
	if byType[session.AlertMultiFace] > 0 || byType[session.AlertObjectDetected] > 0 {
		return session.VerdictCheating
	}
	if overall < suspiciousScoreFloor || totalAlerts > suspiciousAlertLimit {
		return session.VerdictSuspicious
	}
	return session.VerdictClean
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
