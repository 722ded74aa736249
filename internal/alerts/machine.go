package alerts

import (
	"github.com/rs/zerolog"

	"github.com/keagan/examwarden/internal/detect"
	"github.com/keagan/examwarden/internal/evidence"
	"github.com/keagan/examwarden/internal/session"
	"github.com/keagan/examwarden/internal/video"
)

// Consecutive-processed-frame thresholds for the sustained signals.
// Instantaneous signals (face missing, objects) have no counter.
const (
	GazeThreshold      = 3
	MouthThreshold     = 3
	MultiFaceThreshold = 5
)

// Signals is the detector snapshot for one processed frame
type Signals struct {
	FacePresent   bool
	GazeDirection string
	MouthMoving   bool
	FaceCount     int
	Objects       []detect.Object
}

// Neutral returns the non-violating defaults substituted for disabled or
// failing detectors.
func Neutral() Signals {
	return Signals{
		FacePresent:   true,
		GazeDirection: detect.GazeCenter,
		MouthMoving:   false,
		FaceCount:     1,
	}
}

// debounce is one consecutive-true-frame counter. The run length resets
// both when the condition drops and when an alert fires.
type debounce struct {
	threshold int
	run       int
}

func (d *debounce) tick(active bool) bool {
	if !active {
		d.run = 0
		return false
	}
	d.run++
	if d.run >= d.threshold {
		d.run = 0
		return true
	}
	return false
}

// Machine converts noisy per-frame signals into discrete alert events,
// one independent debounce state machine per monitored signal. All state is
// session-local: construct a fresh Machine per analyze call.
type Machine struct {
	logger    zerolog.Logger
	sessionID string
	evidence  evidence.Writer

	gaze      debounce
	mouth     debounce
	multiFace debounce
}

// NewMachine creates a machine for one session. The evidence writer may be
// nil, in which case alerts carry no image reference.
func NewMachine(logger zerolog.Logger, sessionID string, w evidence.Writer) *Machine {
	return &Machine{
		logger:    logger.With().Str("component", "alerts").Logger(),
		sessionID: sessionID,
		evidence:  w,
		gaze:      debounce{threshold: GazeThreshold},
		mouth:     debounce{threshold: MouthThreshold},
		multiFace: debounce{threshold: MultiFaceThreshold},
	}
}

// Observe evaluates one processed frame in fixed signal order
// (face, gaze, mouth, multi-face, objects) and returns the alerts fired.
func (m *Machine) Observe(frame *video.Frame, sig Signals) []session.AlertEvent {
	var alerts []session.AlertEvent

	if !sig.FacePresent {
		alerts = append(alerts, m.emit(frame, session.AlertFaceMissing, session.SeverityMedium, "face_missing", nil))
	}

	if m.gaze.tick(sig.GazeDirection != detect.GazeCenter) {
		alerts = append(alerts, m.emit(frame, session.AlertGazeAway, session.SeverityMedium, "gaze_away", nil))
	}

	if m.mouth.tick(sig.MouthMoving) {
		alerts = append(alerts, m.emit(frame, session.AlertMouthMovement, session.SeverityMedium, "mouth", nil))
	}

	if m.multiFace.tick(sig.FaceCount > 1) {
		alerts = append(alerts, m.emit(frame, session.AlertMultiFace, session.SeverityHigh, "multi_face",
			map[string]interface{}{"num_faces": sig.FaceCount}))
	}

	for _, obj := range sig.Objects {
		alerts = append(alerts, m.emit(frame, session.AlertObjectDetected, session.SeverityHigh, "object", obj.Details()))
	}

	return alerts
}

// emit builds one alert and captures evidence. A failed capture is logged
// and leaves the reference empty; it never drops the alert.
func (m *Machine) emit(frame *video.Frame, typ session.AlertType, sev session.Severity, tag string, details map[string]interface{}) session.AlertEvent {
	imagePath := ""
	if m.evidence != nil && frame.Image != nil {
		path, err := m.evidence.Save(tag, frame.Index, frame.Image)
		if err != nil {
			m.logger.Warn().Err(err).
				Str("type", string(typ)).
				Int("frame", frame.Index).
				Msg("evidence capture failed")
		} else {
			imagePath = path
		}
	}

	m.logger.Debug().
		Str("type", string(typ)).
		Int("frame", frame.Index).
		Float64("t", frame.Time).
		Msg("alert fired")

	return session.AlertEvent{
		SessionID:  m.sessionID,
		Timestamp:  frame.Time,
		FrameIndex: frame.Index,
		Type:       typ,
		Severity:   sev,
		ImagePath:  imagePath,
		Details:    details,
	}
}
