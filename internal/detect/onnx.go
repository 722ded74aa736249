package detect

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/keagan/examwarden/internal/config"
)

const onnxInputSize = 224

// ONNXObjectDetector runs a local image classification model and reports
// every configured label whose score clears the confidence threshold as a
// detected object. It is the offline alternative to a remote object service.
type ONNXObjectDetector struct {
	logger     zerolog.Logger
	labels     []string
	threshold  float64
	inputShape ort.Shape
	session    *ort.DynamicAdvancedSession
}

// NewONNXObjectDetector loads the model referenced by the objects config
func NewONNXObjectDetector(logger zerolog.Logger, cfg config.ObjectsConfig) (*ONNXObjectDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("object detector needs at least one label")
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputNames := []string{"pixel_values"}
	outputNames := []string{"logits"}

	sess, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		inputNames,
		outputNames,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create object detector session: %w", err)
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}

	logger.Info().
		Str("model", cfg.ModelPath).
		Strs("labels", cfg.Labels).
		Float64("threshold", threshold).
		Msg("object detection model loaded")

	return &ONNXObjectDetector{
		logger:     logger.With().Str("component", "onnx-objects").Logger(),
		labels:     cfg.Labels,
		threshold:  threshold,
		inputShape: ort.NewShape(1, 3, onnxInputSize, onnxInputSize),
		session:    sess,
	}, nil
}

// DetectObjects runs inference on the frame and thresholds per-label logits
func (d *ONNXObjectDetector) DetectObjects(ctx context.Context, frame image.Image) ([]Object, error) {
	pixelTensor, err := d.preprocess(frame)
	if err != nil {
		return nil, fmt.Errorf("frame preprocessing failed: %w", err)
	}
	defer pixelTensor.Destroy()

	logitsShape := ort.NewShape(1, int64(len(d.labels)))
	logitsTensor, err := ort.NewEmptyTensor[float32](logitsShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	defer logitsTensor.Destroy()

	inputs := []ort.ArbitraryTensor{pixelTensor}
	outputs := []ort.ArbitraryTensor{logitsTensor}
	if err := d.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("object inference failed: %w", err)
	}

	logits := logitsTensor.GetData()
	if len(logits) < len(d.labels) {
		return nil, fmt.Errorf("unexpected logits tensor size %d", len(logits))
	}

	var objects []Object
	for i, label := range d.labels {
		score := 1.0 / (1.0 + math.Exp(-float64(logits[i])))
		if score >= d.threshold {
			objects = append(objects, Object{Label: label, Confidence: score})
		}
	}

	if len(objects) > 0 {
		d.logger.Debug().Int("objects", len(objects)).Msg("objects over threshold")
	}

	return objects, nil
}

// preprocess -> pixel_values (float32[1,3,224,224]) with ImageNet normalization
func (d *ONNXObjectDetector) preprocess(frame image.Image) (ort.ArbitraryTensor, error) {
	resized := resize.Resize(onnxInputSize, onnxInputSize, frame, resize.Bilinear)

	data := make([]float32, 3*onnxInputSize*onnxInputSize)
	mean := []float32{0.485, 0.456, 0.406}
	std := []float32{0.229, 0.224, 0.225}

	bounds := resized.Bounds()
	idx := 0

	for ch := 0; ch < 3; ch++ {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := resized.At(x, y).RGBA()
				var v float32
				switch ch {
				case 0:
					v = float32(r>>8) / 255.0
				case 1:
					v = float32(g>>8) / 255.0
				case 2:
					v = float32(b>>8) / 255.0
				}
				data[idx] = (v - mean[ch]) / std[ch]
				idx++
			}
		}
	}

	return ort.NewTensor(d.inputShape, data)
}

// Close releases the model session and ONNX env
func (d *ONNXObjectDetector) Close() error {
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}
