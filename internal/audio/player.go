// Package audio plays synthesized speech payloads, one at a time.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/go-mp3"

	"github.com/samarth-ai/samarth/internal/engine"
)

// ErrPreempted is returned by Play when a newer Play or Stop interrupted it.
var ErrPreempted = errors.New("playback preempted")

const (
	defaultPCMRate     = 24000
	defaultPCMChannels = 1
	chunkSize          = 4096
)

// Format describes signed 16-bit little-endian PCM handed to a Sink.
type Format struct {
	SampleRate int
	Channels   int
}

// Sink opens an output stream for PCM. The stream must stop when ctx is
// cancelled.
type Sink interface {
	Open(ctx context.Context, f Format) (io.WriteCloser, error)
}

// Player serializes playback: starting a new payload preempts the current one.
type Player struct {
	sink Sink

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayer creates a player writing to sink.
func NewPlayer(sink Sink) *Player {
	return &Player{sink: sink}
}

// Play blocks until a has been written to the sink, the caller's context is
// done, or a newer Play preempts it.
func (p *Player) Play(ctx context.Context, a engine.Audio) error {
	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	prevCancel, prevDone := p.cancel, p.done
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	defer func() {
		cancel()
		close(done)
		p.mu.Lock()
		if p.done == done {
			p.cancel, p.done = nil, nil
		}
		p.mu.Unlock()
	}()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	err := p.stream(playCtx, a)
	if err != nil && playCtx.Err() != nil && ctx.Err() == nil {
		return ErrPreempted
	}
	return err
}

// Stop interrupts the current playback, if any, and waits for it to end.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Player) stream(ctx context.Context, a engine.Audio) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pcm, format, err := decode(a)
	if err != nil {
		return err
	}

	w, err := p.sink.Open(ctx, format)
	if err != nil {
		return fmt.Errorf("open audio sink: %w", err)
	}

	buf := make([]byte, chunkSize)
	var copyErr error
	for {
		if err := ctx.Err(); err != nil {
			copyErr = err
			break
		}
		n, rerr := pcm.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				copyErr = werr
				break
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			copyErr = fmt.Errorf("decode audio: %w", rerr)
			break
		}
	}

	closeErr := w.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return copyErr
	}
	if closeErr != nil && ctx.Err() == nil {
		return fmt.Errorf("close audio sink: %w", closeErr)
	}
	return ctx.Err()
}

func decode(a engine.Audio) (io.Reader, Format, error) {
	switch a.Encoding {
	case engine.EncodingMP3:
		d, err := mp3.NewDecoder(bytes.NewReader(a.Data))
		if err != nil {
			return nil, Format{}, fmt.Errorf("decode mp3: %w", err)
		}
		// go-mp3 always produces 16-bit stereo.
		return d, Format{SampleRate: d.SampleRate(), Channels: 2}, nil
	case engine.EncodingPCM, "":
		f := Format{SampleRate: a.SampleRate, Channels: a.Channels}
		if f.SampleRate <= 0 {
			f.SampleRate = defaultPCMRate
		}
		if f.Channels <= 0 {
			f.Channels = defaultPCMChannels
		}
		return bytes.NewReader(a.Data), f, nil
	default:
		return nil, Format{}, fmt.Errorf("unsupported audio encoding %q", a.Encoding)
	}
}
