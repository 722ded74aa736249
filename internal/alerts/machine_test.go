package alerts

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keagan/examwarden/internal/detect"
	"github.com/keagan/examwarden/internal/session"
	"github.com/keagan/examwarden/internal/video"
)

func frameAt(processedIdx int) *video.Frame {
	raw := processedIdx * 5
	return &video.Frame{Index: raw, Time: float64(raw) / 30.0}
}

func newTestMachine() *Machine {
	return NewMachine(zerolog.Nop(), "test_session", nil)
}

func collect(m *Machine, signals []Signals) []session.AlertEvent {
	var out []session.AlertEvent
	for i, sig := range signals {
		out = append(out, m.Observe(frameAt(i), sig)...)
	}
	return out
}

func gazeAway(n int) []Signals {
	sigs := make([]Signals, n)
	for i := range sigs {
		sigs[i] = Neutral()
		sigs[i].GazeDirection = "left"
	}
	return sigs
}

func TestSustainedSignalFiresAtThreshold(t *testing.T) {
	tests := []struct {
		name      string
		set       func(*Signals)
		threshold int
		typ       session.AlertType
		severity  session.Severity
	}{
		{"gaze away", func(s *Signals) { s.GazeDirection = "right" }, GazeThreshold, session.AlertGazeAway, session.SeverityMedium},
		{"mouth movement", func(s *Signals) { s.MouthMoving = true }, MouthThreshold, session.AlertMouthMovement, session.SeverityMedium},
		{"multiple faces", func(s *Signals) { s.FaceCount = 2 }, MultiFaceThreshold, session.AlertMultiFace, session.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// exactly threshold frames true, false before and after
			sigs := []Signals{Neutral()}
			for i := 0; i < tt.threshold; i++ {
				s := Neutral()
				tt.set(&s)
				sigs = append(sigs, s)
			}
			sigs = append(sigs, Neutral())

			got := collect(newTestMachine(), sigs)
			if len(got) != 1 {
				t.Fatalf("fired %d alerts, want exactly 1", len(got))
			}
			if got[0].Type != tt.typ {
				t.Errorf("type = %s, want %s", got[0].Type, tt.typ)
			}
			if got[0].Severity != tt.severity {
				t.Errorf("severity = %s, want %s", got[0].Severity, tt.severity)
			}
			// fires on the frame where the counter reaches threshold
			wantFrame := frameAt(tt.threshold).Index
			if got[0].FrameIndex != wantFrame {
				t.Errorf("frame index = %d, want %d", got[0].FrameIndex, wantFrame)
			}
		})
	}
}

func TestSustainedSignalDoubleThresholdFiresTwice(t *testing.T) {
	got := collect(newTestMachine(), gazeAway(2*GazeThreshold))
	if len(got) != 2 {
		t.Fatalf("fired %d alerts, want 2", len(got))
	}
	for _, a := range got {
		if a.Type != session.AlertGazeAway {
			t.Errorf("unexpected alert type %s", a.Type)
		}
	}
}

func TestCounterResetsOnSignalDrop(t *testing.T) {
	// two true frames, a gap, then two more: never reaches threshold 3
	sigs := append(gazeAway(2), Neutral())
	sigs = append(sigs, gazeAway(2)...)

	got := collect(newTestMachine(), sigs)
	if len(got) != 0 {
		t.Fatalf("fired %d alerts, want 0", len(got))
	}
}

func TestInstantaneousSignals(t *testing.T) {
	sig := Neutral()
	sig.FacePresent = false
	sig.Objects = []detect.Object{{Label: "phone", Confidence: 0.91}}

	got := newTestMachine().Observe(frameAt(0), sig)
	if len(got) != 2 {
		t.Fatalf("fired %d alerts, want 2 (face missing + object)", len(got))
	}
	if got[0].Type != session.AlertFaceMissing {
		t.Errorf("first alert = %s, want FACE_MISSING", got[0].Type)
	}
	if got[1].Type != session.AlertObjectDetected {
		t.Errorf("second alert = %s, want OBJECT_DETECTED", got[1].Type)
	}
	if got[1].Details["label"] != "phone" {
		t.Errorf("object details missing label: %v", got[1].Details)
	}
	if got[1].Details["confidence"] != 0.91 {
		t.Errorf("object details missing confidence: %v", got[1].Details)
	}
}

func TestOneAlertPerObject(t *testing.T) {
	sig := Neutral()
	sig.Objects = []detect.Object{
		{Label: "phone", Confidence: 0.9},
		{Label: "book", Confidence: 0.7},
	}

	got := newTestMachine().Observe(frameAt(0), sig)
	if len(got) != 2 {
		t.Fatalf("fired %d alerts, want one per object", len(got))
	}
}

func TestMultiFaceCarriesCount(t *testing.T) {
	m := newTestMachine()
	var got []session.AlertEvent
	for i := 0; i < MultiFaceThreshold; i++ {
		sig := Neutral()
		sig.FaceCount = 3
		got = append(got, m.Observe(frameAt(i), sig)...)
	}

	if len(got) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(got))
	}
	if got[0].Details["num_faces"] != 3 {
		t.Errorf("details num_faces = %v, want 3", got[0].Details["num_faces"])
	}
}

func TestAlertsCarrySessionAndTimestamp(t *testing.T) {
	sig := Neutral()
	sig.FacePresent = false

	f := frameAt(7)
	got := newTestMachine().Observe(f, sig)
	if len(got) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(got))
	}
	if got[0].SessionID != "test_session" {
		t.Errorf("session id = %q", got[0].SessionID)
	}
	if got[0].Timestamp != f.Time {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, f.Time)
	}
}

type fakeWriter struct {
	fail  bool
	saved []string
}

func (w *fakeWriter) Save(tag string, frameIndex int, img image.Image) (string, error) {
	if w.fail {
		return "", errors.New("disk full")
	}
	path := fmt.Sprintf("evidence/%s_%d.jpg", tag, frameIndex)
	w.saved = append(w.saved, path)
	return path, nil
}

func TestEvidenceFailureKeepsAlert(t *testing.T) {
	m := NewMachine(zerolog.Nop(), "s", &fakeWriter{fail: true})

	sig := Neutral()
	sig.FacePresent = false

	frame := frameAt(0)
	frame.Image = image.NewRGBA(image.Rect(0, 0, 2, 2))

	got := m.Observe(frame, sig)
	if len(got) != 1 {
		t.Fatalf("fired %d alerts, want 1 despite evidence failure", len(got))
	}
	if got[0].ImagePath != "" {
		t.Errorf("image path = %q, want empty after failed capture", got[0].ImagePath)
	}
}

func TestEvidenceReferenceRecorded(t *testing.T) {
	w := &fakeWriter{}
	m := NewMachine(zerolog.Nop(), "s", w)

	sig := Neutral()
	sig.FacePresent = false

	frame := frameAt(2)
	frame.Image = image.NewRGBA(image.Rect(0, 0, 2, 2))

	got := m.Observe(frame, sig)
	if len(got) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(got))
	}
	if got[0].ImagePath != "evidence/face_missing_10.jpg" {
		t.Errorf("image path = %q", got[0].ImagePath)
	}
	if len(w.saved) != 1 {
		t.Errorf("writer saved %d files, want 1", len(w.saved))
	}
}

func TestFreshMachineHasCleanCounters(t *testing.T) {
	// a machine abandoned mid-run must not influence a new one
	m1 := newTestMachine()
	collect(m1, gazeAway(GazeThreshold-1))

	m2 := newTestMachine()
	got := collect(m2, gazeAway(GazeThreshold-1))
	if len(got) != 0 {
		t.Fatalf("fresh machine fired %d alerts, want 0", len(got))
	}
}

func TestSignalOrderWithinFrame(t *testing.T) {
	m := newTestMachine()

	var last []session.AlertEvent
	for i := 0; i < MultiFaceThreshold; i++ {
		sig := Signals{
			FacePresent:   false,
			GazeDirection: "down",
			MouthMoving:   true,
			FaceCount:     2,
			Objects:       []detect.Object{{Label: "notes", Confidence: 0.8}},
		}
		last = m.Observe(frameAt(i), sig)
	}

	// on the 5th violating frame: face missing is instantaneous, gaze and
	// mouth fired on frame 3 and are mid-rearm, multi-face reaches its
	// threshold, and the object is per-frame. Fixed evaluation order.
	want := []session.AlertType{
		session.AlertFaceMissing,
		session.AlertMultiFace,
		session.AlertObjectDetected,
	}
	var types []session.AlertType
	for _, a := range last {
		types = append(types, a.Type)
	}

	if len(types) != len(want) {
		t.Fatalf("final frame fired %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("final frame fired %v, want %v", types, want)
		}
	}
}
