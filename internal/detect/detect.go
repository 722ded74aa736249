package detect

import (
	"context"
	"image"

	"github.com/rs/zerolog"

	"github.com/keagan/examwarden/internal/config"
	"github.com/keagan/examwarden/internal/ffmpeg"
	"github.com/keagan/examwarden/internal/session"
)

// GazeCenter is the neutral gaze direction; anything else counts as away.
const GazeCenter = "center"

// Object is one detected object record. Extra carries detector-specific
// attributes that flow into alert details untouched.
type Object struct {
	Label      string                 `json:"label"`
	Confidence float64                `json:"confidence"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// Details flattens the object into alert detail attributes
func (o Object) Details() map[string]interface{} {
	d := map[string]interface{}{
		"label":      o.Label,
		"confidence": o.Confidence,
	}
	for k, v := range o.Extra {
		d[k] = v
	}
	return d
}

// FaceDetector reports whether a face is present in the frame
type FaceDetector interface {
	DetectFace(ctx context.Context, frame image.Image) (bool, error)
}

// EyeTracker reports the gaze direction; only the direction is consumed
type EyeTracker interface {
	TrackEyes(ctx context.Context, frame image.Image) (string, error)
}

// MouthMonitor reports whether the mouth is moving
type MouthMonitor interface {
	MonitorMouth(ctx context.Context, frame image.Image) (bool, error)
}

// MultiFaceDetector counts faces in the frame
type MultiFaceDetector interface {
	CountFaces(ctx context.Context, frame image.Image) (int, error)
}

// ObjectDetector lists suspicious objects in the frame
type ObjectDetector interface {
	DetectObjects(ctx context.Context, frame image.Image) ([]Object, error)
}

// AudioAnalyzer analyzes a whole audio file once per session. The summary
// shape is opaque to the pipeline.
type AudioAnalyzer interface {
	Analyze(ctx context.Context, audioPath string) (session.AudioSummary, error)
}

// Suite is the set of enabled detectors. A nil field means the detector is
// disabled and the pipeline substitutes its neutral default.
type Suite struct {
	Face      FaceDetector
	Eyes      EyeTracker
	Mouth     MouthMonitor
	MultiFace MultiFaceDetector
	Objects   ObjectDetector
	Audio     AudioAnalyzer
}

// SuiteFromConfig wires up the configured detector adapters. Remote HTTP
// adapters take precedence; the object detector falls back to a local ONNX
// model and the audio analyzer to local ffmpeg analysis when no service URL
// is configured.
func SuiteFromConfig(logger zerolog.Logger, cfg *config.Config, exec *ffmpeg.Executor) (*Suite, error) {
	suite := &Suite{}
	client := NewClient(logger)

	det := cfg.Detection

	if det.Face.Enabled && det.Face.URL != "" {
		suite.Face = client.Face(det.Face.URL)
	}
	if det.Eyes.Enabled && det.Eyes.URL != "" {
		suite.Eyes = client.Eyes(det.Eyes.URL)
	}
	if det.Mouth.Enabled && det.Mouth.URL != "" {
		suite.Mouth = client.Mouth(det.Mouth.URL)
	}
	if det.MultiFace.Enabled && det.MultiFace.URL != "" {
		suite.MultiFace = client.MultiFace(det.MultiFace.URL)
	}

	if det.Objects.Enabled {
		switch {
		case det.Objects.URL != "":
			suite.Objects = client.Objects(det.Objects.URL)
		case det.Objects.ModelPath != "":
			od, err := NewONNXObjectDetector(logger, det.Objects)
			if err != nil {
				return nil, err
			}
			suite.Objects = od
		}
	}

	if cfg.AudioMonitoring.Enabled {
		if cfg.AudioMonitoring.URL != "" {
			suite.Audio = client.Audio(cfg.AudioMonitoring.URL)
		} else if exec != nil {
			suite.Audio = NewLocalAudioAnalyzer(logger, exec)
		}
	}

	return suite, nil
}

// Close releases detector resources
func (s *Suite) Close() error {
	if c, ok := s.Objects.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
