package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// CommandSink pipes PCM into an external player process such as aplay or
// ffplay. The process is killed when the playback context is cancelled.
type CommandSink struct {
	Binary string
	Args   func(f Format) []string
}

// NewAplaySink returns a sink that plays through ALSA's aplay.
func NewAplaySink(binary string) *CommandSink {
	if binary == "" {
		binary = "aplay"
	}
	return &CommandSink{
		Binary: binary,
		Args: func(f Format) []string {
			return []string{"-q", "-t", "raw", "-f", "S16_LE",
				"-r", strconv.Itoa(f.SampleRate), "-c", strconv.Itoa(f.Channels)}
		},
	}
}

// NewFFplaySink returns a sink that plays through ffplay.
func NewFFplaySink(binary string) *CommandSink {
	if binary == "" {
		binary = "ffplay"
	}
	return &CommandSink{
		Binary: binary,
		Args: func(f Format) []string {
			return []string{"-nodisp", "-autoexit", "-loglevel", "error",
				"-f", "s16le", "-ar", strconv.Itoa(f.SampleRate), "-ch_layout", channelLayout(f.Channels), "-i", "pipe:0"}
		},
	}
}

func channelLayout(n int) string {
	if n == 2 {
		return "stereo"
	}
	return "mono"
}

// Open starts the player process and returns its stdin.
func (s *CommandSink) Open(ctx context.Context, f Format) (io.WriteCloser, error) {
	cmd := exec.CommandContext(ctx, s.Binary, s.Args(f)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("player stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.Binary, err)
	}
	return &procWriter{WriteCloser: stdin, cmd: cmd}, nil
}

type procWriter struct {
	io.WriteCloser
	cmd *exec.Cmd
}

// Close ends the input stream and waits for the player to drain it.
func (w *procWriter) Close() error {
	cerr := w.WriteCloser.Close()
	werr := w.cmd.Wait()
	if werr != nil {
		return werr
	}
	return cerr
}

// DiscardSink drops audio. It is used when no output device is configured.
type DiscardSink struct{}

func (DiscardSink) Open(context.Context, Format) (io.WriteCloser, error) {
	return nopCloser{io.Discard}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
