package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// FrameStream is a sequential, non-restartable pipe of raw RGB24 frames
// decoded by a child ffmpeg process. Callers must Close it whether or not
// the stream was read to exhaustion.
type FrameStream struct {
	reader *bufio.Reader
	cmd    *exec.Cmd
	closed bool
}

// OpenFrameStream starts decoding a video into raw RGB24 frames on stdout.
// Frame size is width*height*3 bytes; the caller knows the dimensions from
// ProbeVideo.
func (e *Executor) OpenFrameStream(ctx context.Context, input string) (*FrameStream, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}

	args := []string{
		"-v", "error",
		"-i", input,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
	}
	if e.threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", e.threads))
	}
	args = append(args, "pipe:1")

	e.logger.Debug().
		Str("input", input).
		Strs("args", args).
		Msg("opening raw frame stream")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &FrameStream{
		reader: bufio.NewReaderSize(stdout, 1<<20),
		cmd:    cmd,
	}, nil
}

// ReadFrame fills buf with exactly one frame worth of bytes. Returns io.EOF
// once the source is exhausted; a truncated trailing frame is treated as EOF.
func (s *FrameStream) ReadFrame(buf []byte) error {
	_, err := io.ReadFull(s.reader, buf)
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// Close releases the decoding process. Safe to call after normal exhaustion
// or mid-stream on abort.
func (s *FrameStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
