package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config describes the capture device.
type Config struct {
	Binary      string // ffmpeg binary
	InputFormat string // ffmpeg demuxer, v4l2 on Linux
	Device      string
	// Facing is the requested camera orientation, "environment" for the
	// back camera. Multi-camera hosts map it to Device.
	Facing       string
	FrameRate    int
	Quality      int
	MaxWidth     int
	StartTimeout time.Duration

	// Command overrides the capture process. The process must write an
	// MJPEG stream to stdout.
	Command func(ctx context.Context) *exec.Cmd
}

func (c *Config) defaults() {
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "v4l2"
	}
	if c.Device == "" {
		c.Device = "/dev/video0"
	}
	if c.Facing == "" {
		c.Facing = "environment"
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 5
	}
	if c.Quality <= 0 {
		c.Quality = DefaultQuality
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 5 * time.Second
	}
}

// FFmpegSource keeps a camera stream open through an ffmpeg child process
// and retains the latest decoded image for snapshot capture.
type FFmpegSource struct {
	cfg Config

	mu       sync.RWMutex
	running  bool
	failed   error
	latest   []byte
	cancel   context.CancelFunc
	exited   chan struct{}
	readDone chan struct{}
}

// NewFFmpegSource creates a stopped source.
func NewFFmpegSource(cfg Config) *FFmpegSource {
	cfg.defaults()
	return &FFmpegSource{cfg: cfg}
}

func (s *FFmpegSource) command(ctx context.Context) *exec.Cmd {
	if s.cfg.Command != nil {
		return s.cfg.Command(ctx)
	}
	return exec.CommandContext(ctx, s.cfg.Binary,
		"-hide_banner", "-loglevel", "error",
		"-f", s.cfg.InputFormat,
		"-framerate", strconv.Itoa(s.cfg.FrameRate),
		"-i", s.cfg.Device,
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3",
		"-",
	)
}

// Start opens the camera. It waits until the first frame arrives, the
// process exits or the start timeout passes. A process that exits before
// producing a frame marks the source unavailable.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	if s.cfg.Command == nil && strings.HasPrefix(s.cfg.Device, "/dev/") {
		if _, err := os.Stat(s.cfg.Device); err != nil {
			s.failed = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
			s.mu.Unlock()
			return s.failed
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := s.command(runCtx)
	pr, pw := io.Pipe()
	var stderr bytes.Buffer
	cmd.Stdout = pw
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		s.failed = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		s.mu.Unlock()
		return s.failed
	}

	s.running = true
	s.failed = nil
	s.latest = nil
	s.cancel = cancel
	s.exited = make(chan struct{})
	s.readDone = make(chan struct{})
	exited, readDone := s.exited, s.readDone
	s.mu.Unlock()

	firstFrame := make(chan struct{})

	go func() {
		err := cmd.Wait()
		if err == nil {
			err = io.EOF
		}
		pw.CloseWithError(err)
		close(exited)
	}()
	go s.readFrames(runCtx, pr, firstFrame, readDone)

	slog.InfoContext(ctx, "camera starting",
		slog.String("device", s.cfg.Device),
		slog.String("facing", s.cfg.Facing))

	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case <-firstFrame:
		return nil
	case <-exited:
		<-readDone
		msg := strings.TrimSpace(stderr.String())
		err := fmt.Errorf("%w: capture process exited: %s", ErrDeviceUnavailable, msg)
		s.mu.Lock()
		s.failed = err
		s.running = false
		s.mu.Unlock()
		cancel()
		return err
	case <-timer.C:
		slog.WarnContext(ctx, "camera started without a frame", slog.Duration("waited", s.cfg.StartTimeout))
		return nil
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}
}

func (s *FFmpegSource) readFrames(ctx context.Context, r io.Reader, firstFrame, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	scanner.Split(scanJPEG)

	first := true
	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()

		if first {
			close(firstFrame)
			first = false
		}
	}

	if ctx.Err() != nil {
		return
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.failed = fmt.Errorf("%w: stream ended: %v", ErrDeviceUnavailable, err)
	s.latest = nil
	s.mu.Unlock()
	slog.Warn("camera stream ended", slog.String("error", err.Error()))
}

// Capture returns the current frame as a fresh JPEG still.
func (s *FFmpegSource) Capture() (Frame, error) {
	s.mu.RLock()
	latest, failed := s.latest, s.failed
	s.mu.RUnlock()

	if failed != nil || latest == nil {
		return Frame{}, ErrNoFrame
	}
	frame, err := encodeStill(latest, s.cfg.Quality, s.cfg.MaxWidth)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	return frame, nil
}

// Available reports whether the source is running without failure.
func (s *FFmpegSource) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running && s.failed == nil
}

// Stop releases the camera. It is safe to call more than once.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, exited, readDone := s.cancel, s.exited, s.readDone
	s.running = false
	s.mu.Unlock()

	cancel()
	<-exited
	<-readDone

	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
	return nil
}
