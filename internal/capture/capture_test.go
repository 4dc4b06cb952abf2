package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestScanJPEGSplitsStream(t *testing.T) {
	a := testJPEG(t, 8, 8)
	b := testJPEG(t, 16, 4)

	var stream bytes.Buffer
	stream.WriteString("noise")
	stream.Write(a)
	stream.Write([]byte{0x00, 0x01})
	stream.Write(b)
	stream.Write(jpegSOI) // truncated trailing image

	scanner := bufio.NewScanner(&stream)
	scanner.Buffer(make([]byte, 0, 64), 1<<20)
	scanner.Split(scanJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], a) || !bytes.Equal(frames[1], b) {
		t.Error("frames do not match the source images")
	}
}

func TestEncodeStillDownscales(t *testing.T) {
	src := testJPEG(t, 64, 32)

	tests := []struct {
		name     string
		maxWidth int
		wantW    int
		wantH    int
	}{
		{"no limit", 0, 64, 32},
		{"wider than limit", 16, 16, 8},
		{"narrower than limit", 128, 64, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := encodeStill(src, DefaultQuality, tt.maxWidth)
			if err != nil {
				t.Fatalf("encodeStill: %v", err)
			}
			if f.Width != tt.wantW || f.Height != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", f.Width, f.Height, tt.wantW, tt.wantH)
			}
			if _, err := jpeg.Decode(bytes.NewReader(f.Data)); err != nil {
				t.Errorf("output is not a JPEG: %v", err)
			}
		})
	}
}

func TestStartMissingBinary(t *testing.T) {
	src := NewFFmpegSource(Config{
		Command: func(ctx context.Context) *exec.Cmd {
			return exec.CommandContext(ctx, "/nonexistent/ffmpeg")
		},
	})

	err := src.Start(t.Context())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Start err = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := src.Capture(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Capture err = %v, want ErrNoFrame", err)
	}
	if src.Available() {
		t.Error("source should be unavailable")
	}
	if err := src.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestStartMissingDevice(t *testing.T) {
	src := NewFFmpegSource(Config{Device: "/dev/samarth-no-such-camera"})
	if err := src.Start(t.Context()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Start err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestStartProcessExitsWithoutFrame(t *testing.T) {
	src := NewFFmpegSource(Config{
		Command: func(ctx context.Context) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", "echo 'permission denied' >&2; exit 1")
		},
	})

	err := src.Start(t.Context())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Start err = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := src.Capture(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Capture err = %v, want ErrNoFrame", err)
	}
}

func TestCaptureAndStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.mjpeg")
	stream := append(testJPEG(t, 40, 20), testJPEG(t, 40, 20)...)
	if err := os.WriteFile(path, stream, 0o644); err != nil {
		t.Fatalf("write stream: %v", err)
	}

	src := NewFFmpegSource(Config{
		MaxWidth: 20,
		Command: func(ctx context.Context) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", "cat \"$0\" && exec sleep 30", path)
		},
	})

	if err := src.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !src.Available() {
		t.Error("source should be available")
	}

	a, err := src.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if a.Width != 20 || a.Height != 10 {
		t.Errorf("size = %dx%d, want 20x10", a.Width, a.Height)
	}
	b, err := src.Capture()
	if err != nil {
		t.Fatalf("second Capture: %v", err)
	}
	if &a.Data[0] == &b.Data[0] {
		t.Error("captures share a buffer")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- src.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not release the capture process")
	}

	if _, err := src.Capture(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Capture after Stop err = %v, want ErrNoFrame", err)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
