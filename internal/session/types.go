package session

import "time"

// AlertType enumerates the violation categories the analyzer can raise.
type AlertType string

const (
	AlertFaceMissing    AlertType = "FACE_MISSING"
	AlertGazeAway       AlertType = "GAZE_AWAY"
	AlertMouthMovement  AlertType = "MOUTH_MOVEMENT"
	AlertMultiFace      AlertType = "MULTI_FACE"
	AlertObjectDetected AlertType = "OBJECT_DETECTED"
)

// Severity grades an alert
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertEvent is an immutable record of one detected violation instant.
// It is created by the alert machine when a debounce threshold is crossed
// and never mutated afterwards.
type AlertEvent struct {
	SessionID  string                 `json:"session_id"`
	Timestamp  float64                `json:"timestamp"`
	FrameIndex int                    `json:"frame_index"`
	Type       AlertType              `json:"type"`
	Severity   Severity               `json:"severity"`
	ImagePath  string                 `json:"image_path,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Summary describes one analyzed recording. Alerts are kept in detection
// order, which is monotonic in frame index.
type Summary struct {
	SessionID string       `json:"session_id"`
	Duration  float64      `json:"duration_seconds"`
	NumFrames int          `json:"num_frames"`
	FPS       float64      `json:"fps"`
	Alerts    []AlertEvent `json:"alerts"`
}

// CountByType returns per-type alert occurrence counts
func (s *Summary) CountByType() map[AlertType]int {
	counts := make(map[AlertType]int, len(s.Alerts))
	for _, a := range s.Alerts {
		counts[a.Type]++
	}
	return counts
}

// AlertSummary is the aggregate view consumed by the scoring policy
type AlertSummary struct {
	Total  int               `json:"total_alerts"`
	ByType map[AlertType]int `json:"by_type"`
}

// Verdict is the final categorical outcome of a session
type Verdict string

const (
	VerdictClean      Verdict = "CLEAN"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictCheating   Verdict = "CHEATING"
)

// Scores holds the video/audio/overall score triple
type Scores struct {
	Video   float64 `json:"video"`
	Audio   float64 `json:"audio"`
	Overall float64 `json:"overall"`
}

// AudioSummary is the opaque result of the external audio analyzer. The
// pipeline stores it verbatim; only the scoring policy looks inside.
type AudioSummary map[string]interface{}

// Record is the durable per-session document. It is the sole artifact the
// analyzer produces and must be sufficient for any downstream reporting.
type Record struct {
	Session     Summary      `json:"session"`
	Verdict     Verdict      `json:"verdict"`
	Alerts      []AlertEvent `json:"alerts"`
	Scores      Scores       `json:"scores"`
	Audio       AudioSummary `json:"audio"`
	GeneratedAt time.Time    `json:"generated_at"`
}
