package video

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/keagan/examwarden/internal/ffmpeg"
)

// DefaultStride is the decimation factor applied to raw frames.
const DefaultStride = 5

// DefaultResizeWidth caps the width of yielded frames.
const DefaultResizeWidth = 480

// fallbackFPS is used when the container reports no usable frame rate.
const fallbackFPS = 30.0

// Frame is one decimated, downscaled frame handed to the detectors.
// Index is the raw (pre-decimation) frame index.
type Frame struct {
	Image image.Image
	Index int
	Time  float64
}

// Options configures sampling behavior
type Options struct {
	Stride      int
	ResizeWidth int
}

// Source is a lazy, finite, non-restartable sequence of sampled frames.
// The pipeline consumes this interface so tests can substitute a fake.
type Source interface {
	// Next returns the next sampled frame, or io.EOF when exhausted.
	Next() (*Frame, error)
	// FramesRead reports the total raw frames observed so far,
	// including the discarded ones.
	FramesRead() int
	FPS() float64
	Close() error
}

// frameReader abstracts the raw RGB24 byte stream for testing
type frameReader interface {
	ReadFrame(buf []byte) error
}

// Sampler decodes a video through ffmpeg, applies stride decimation and
// aspect-preserving downscaling, and yields Frames with raw-index-derived
// timestamps. Skipped frames are still read so frame accounting stays exact.
type Sampler struct {
	logger      zerolog.Logger
	src         frameReader
	closer      func() error
	width       int
	height      int
	fps         float64
	stride      int
	resizeWidth int
	hasAudio    bool
	rawCount    int
	buf         []byte
}

// Open probes and starts decoding a video. A probe or spawn failure is the
// fatal open-error of the whole analysis; no sampler state exists after it.
func Open(ctx context.Context, logger zerolog.Logger, exec *ffmpeg.Executor, input string, opts Options) (*Sampler, error) {
	info, err := exec.ProbeVideo(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("cannot open video %s: %w", input, err)
	}

	stream, err := exec.OpenFrameStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("cannot open video %s: %w", input, err)
	}

	s := newSampler(logger, stream, stream.Close, info.Width, info.Height, info.FPS, opts)
	s.hasAudio = info.HasAudio

	s.logger.Info().
		Str("input", input).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", s.fps).
		Int("stride", s.stride).
		Msg("frame sampler opened")

	return s, nil
}

func newSampler(logger zerolog.Logger, src frameReader, closer func() error, width, height int, fps float64, opts Options) *Sampler {
	if opts.Stride <= 0 {
		opts.Stride = DefaultStride
	}
	if opts.ResizeWidth <= 0 {
		opts.ResizeWidth = DefaultResizeWidth
	}
	if fps <= 0 {
		fps = fallbackFPS
	}

	return &Sampler{
		logger:      logger.With().Str("component", "sampler").Logger(),
		src:         src,
		closer:      closer,
		width:       width,
		height:      height,
		fps:         fps,
		stride:      opts.Stride,
		resizeWidth: opts.ResizeWidth,
		buf:         make([]byte, width*height*3),
	}
}

// Next reads raw frames until the next stride boundary and yields it.
// Returns io.EOF once the source is exhausted.
func (s *Sampler) Next() (*Frame, error) {
	for {
		if err := s.src.ReadFrame(s.buf); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("frame read failed: %w", err)
		}

		idx := s.rawCount
		s.rawCount++

		if idx%s.stride != 0 {
			continue
		}

		img := s.decodeFrame()
		if s.width > s.resizeWidth {
			img = resize.Resize(uint(s.resizeWidth), 0, img, resize.Bilinear)
		}

		return &Frame{
			Image: img,
			Index: idx,
			Time:  float64(idx) / s.fps,
		}, nil
	}
}

// decodeFrame converts the RGB24 buffer into an image
func (s *Sampler) decodeFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	src := s.buf
	dst := img.Pix

	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
		dst[j+3] = 0xff
	}

	return img
}

// FramesRead reports total raw frames observed (pre-decimation)
func (s *Sampler) FramesRead() int {
	return s.rawCount
}

// FPS returns the effective frame rate used for timestamps
func (s *Sampler) FPS() float64 {
	return s.fps
}

// HasAudio reports whether the probed container carries an audio stream
func (s *Sampler) HasAudio() bool {
	return s.hasAudio
}

// Close releases the underlying decoder
func (s *Sampler) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
