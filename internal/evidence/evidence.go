package evidence

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/keagan/examwarden/pkg/util"
)

// Writer captures evidence frames for fired alerts. Implementations return
// the stored reference; a failed capture must not block the alert itself.
type Writer interface {
	Save(tag string, frameIndex int, img image.Image) (string, error)
}

// DirWriter stores JPEG evidence under a per-session directory. Keys are
// <tag>_<rawFrameIndex>, which cannot collide within a session because raw
// frame indices are strictly increasing.
type DirWriter struct {
	dir string
}

// NewDirWriter creates the session evidence directory under root
func NewDirWriter(root, sessionID string) (*DirWriter, error) {
	dir := filepath.Join(root, sessionID)
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create evidence dir: %w", err)
	}
	return &DirWriter{dir: dir}, nil
}

// Save encodes the frame as JPEG and returns its path
func (w *DirWriter) Save(tag string, frameIndex int, img image.Image) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%d.jpg", tag, frameIndex))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create evidence file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode evidence: %w", err)
	}

	return path, nil
}
