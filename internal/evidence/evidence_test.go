package evidence

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveWritesDecodableJPEG(t *testing.T) {
	root := t.TempDir()
	w, err := NewDirWriter(root, "session_1")
	if err != nil {
		t.Fatalf("NewDirWriter failed: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	path, err := w.Save("gaze_away", 30, img)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	want := filepath.Join(root, "session_1", "gaze_away_30.jpg")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("evidence file missing: %v", err)
	}
	defer f.Close()

	decoded, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("evidence is not valid JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 8 || decoded.Bounds().Dy() != 6 {
		t.Errorf("decoded size %v, want 8x6", decoded.Bounds())
	}
}

func TestKeysDoNotCollideAcrossIndices(t *testing.T) {
	w, err := NewDirWriter(t.TempDir(), "s")
	if err != nil {
		t.Fatalf("NewDirWriter failed: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	p1, err := w.Save("object", 5, img)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := w.Save("object", 10, img)
	if err != nil {
		t.Fatal(err)
	}

	if p1 == p2 {
		t.Errorf("evidence paths collide: %q", p1)
	}
}
