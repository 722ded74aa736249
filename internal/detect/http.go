package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/examwarden/internal/session"
)

// Client talks to remote detector services. Each per-frame detector receives
// the JPEG-encoded frame as a multipart upload and answers with a small JSON
// body.
type Client struct {
	c      *http.Client
	logger zerolog.Logger
}

// NewClient creates a detector service client
func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		c:      &http.Client{Timeout: 30 * time.Second},
		logger: logger.With().Str("component", "detect-client").Logger(),
	}
}

func (c *Client) postFrame(ctx context.Context, url string, frame image.Image, out interface{}) error {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, frame, &jpeg.Options{Quality: 80}); err != nil {
		return fmt.Errorf("frame encode: %w", err)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		return err
	}
	if _, err = io.Copy(fw, &jpg); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &b)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("detector %s: %s", resp.Status, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("detector decode: %w", err)
	}
	return nil
}

// Face returns a face-presence adapter for the given service URL
func (c *Client) Face(url string) FaceDetector { return &httpFace{c: c, url: url} }

// Eyes returns a gaze-direction adapter
func (c *Client) Eyes(url string) EyeTracker { return &httpEyes{c: c, url: url} }

// Mouth returns a mouth-movement adapter
func (c *Client) Mouth(url string) MouthMonitor { return &httpMouth{c: c, url: url} }

// MultiFace returns a face-count adapter
func (c *Client) MultiFace(url string) MultiFaceDetector { return &httpMultiFace{c: c, url: url} }

// Objects returns an object-detection adapter
func (c *Client) Objects(url string) ObjectDetector { return &httpObjects{c: c, url: url} }

// Audio returns a whole-file audio analysis adapter
func (c *Client) Audio(url string) AudioAnalyzer { return &httpAudio{c: c, url: url} }

type httpFace struct {
	c   *Client
	url string
}

func (f *httpFace) DetectFace(ctx context.Context, frame image.Image) (bool, error) {
	var out struct {
		Present bool `json:"present"`
	}
	if err := f.c.postFrame(ctx, f.url+"/face", frame, &out); err != nil {
		return false, err
	}
	return out.Present, nil
}

type httpEyes struct {
	c   *Client
	url string
}

func (e *httpEyes) TrackEyes(ctx context.Context, frame image.Image) (string, error) {
	var out struct {
		Direction string `json:"direction"`
	}
	if err := e.c.postFrame(ctx, e.url+"/gaze", frame, &out); err != nil {
		return "", err
	}
	if out.Direction == "" {
		return GazeCenter, nil
	}
	return out.Direction, nil
}

type httpMouth struct {
	c   *Client
	url string
}

func (m *httpMouth) MonitorMouth(ctx context.Context, frame image.Image) (bool, error) {
	var out struct {
		Moving bool `json:"moving"`
	}
	if err := m.c.postFrame(ctx, m.url+"/mouth", frame, &out); err != nil {
		return false, err
	}
	return out.Moving, nil
}

type httpMultiFace struct {
	c   *Client
	url string
}

func (m *httpMultiFace) CountFaces(ctx context.Context, frame image.Image) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := m.c.postFrame(ctx, m.url+"/faces", frame, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

type httpObjects struct {
	c   *Client
	url string
}

func (o *httpObjects) DetectObjects(ctx context.Context, frame image.Image) ([]Object, error) {
	var out struct {
		Objects []Object `json:"objects"`
	}
	if err := o.c.postFrame(ctx, o.url+"/objects", frame, &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

type httpAudio struct {
	c   *Client
	url string
}

// Analyze uploads the audio file and returns the service's summary verbatim
func (a *httpAudio) Analyze(ctx context.Context, audioPath string) (session.AudioSummary, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+"/analyze", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.c.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("audio analyzer %s: %s", resp.Status, string(body))
	}

	var out session.AudioSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("audio analyzer decode: %w", err)
	}
	return out, nil
}
