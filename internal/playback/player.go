// Package playback drives a frame cursor over a session's predictions and
// pushes every frame it lands on to the configured sinks.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"armpose/internal/infrastructure"
	"armpose/internal/kinematics"
	"armpose/internal/prediction"
)

// ErrNoFrames is returned by Play when there is nothing to play
var ErrNoFrames = errors.New("no frames to play")

// Frame is one published playback position
type Frame struct {
	SessionID  string                `json:"session_id"`
	Index      int                   `json:"index"`
	Total      int                   `json:"total"`
	Label      string                `json:"label"`
	Prediction prediction.Prediction `json:"prediction"`
	Pose       kinematics.Pose       `json:"pose"`
}

// Sink receives frames as the cursor moves
type Sink interface {
	Name() string
	PublishFrame(ctx context.Context, f Frame) error
}

// State is the JSON view of the cursor
type State struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Playing bool   `json:"playing"`
	Label   string `json:"label"`
	Frame   *Frame `json:"frame,omitempty"`
}

// Options configures a Player
type Options struct {
	SessionID string
	Geometry  kinematics.Geometry
	Tick      time.Duration
	Sinks     []Sink
	Logger    *slog.Logger
	Metrics   *infrastructure.BusinessMetrics
	// Base bounds the lifetime of the playback goroutine. Defaults to
	// context.Background.
	Base context.Context
}

// Player is a play/pause/reset cursor advancing one frame per tick and
// stopping on the last frame.
type Player struct {
	opts  Options
	preds []prediction.Prediction

	mu      sync.Mutex
	current int
	playing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a stopped player on frame 0
func New(preds []prediction.Prediction, opts Options) *Player {
	if opts.Tick <= 0 {
		opts.Tick = 50 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = infrastructure.GetLogger()
	}
	if opts.Base == nil {
		opts.Base = context.Background()
	}
	opts.Logger = opts.Logger.With(slog.String("component", "playback"), slog.String("session_id", opts.SessionID))
	return &Player{opts: opts, preds: preds}
}

// Play starts advancing. Playing an already playing cursor is a no-op.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.preds) == 0 {
		return ErrNoFrames
	}
	if p.playing {
		return nil
	}

	ctx, cancel := context.WithCancel(p.opts.Base)
	p.playing = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Pause stops advancing and keeps the current frame. It returns once the
// playback goroutine has exited.
func (p *Player) Pause() {
	p.stop(false)
}

// Reset stops playback and rewinds to frame 0
func (p *Player) Reset() {
	p.stop(true)
}

func (p *Player) stop(rewind bool) {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.playing = false
	p.cancel, p.done = nil, nil
	if rewind {
		p.current = 0
	}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// State returns the cursor position and the frame under it
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := State{Current: p.current, Total: len(p.preds), Playing: p.playing}
	if len(p.preds) > 0 {
		f := p.frame(p.current)
		st.Label = f.Label
		st.Frame = &f
	}
	return st
}

func (p *Player) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.opts.Tick)
	defer ticker.Stop()

	for {
		frame, ok := p.advance()
		if !ok {
			return
		}
		p.publish(ctx, frame)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// advance moves to the next frame. It reports false, and stops playing,
// once the cursor sits on the last frame.
func (p *Player) advance() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return Frame{}, false
	}
	if p.current >= len(p.preds)-1 {
		p.playing = false
		if p.cancel != nil {
			p.cancel()
		}
		p.cancel, p.done = nil, nil
		return Frame{}, false
	}
	p.current++
	return p.frame(p.current), true
}

func (p *Player) frame(i int) Frame {
	pred := p.preds[i]
	return Frame{
		SessionID:  p.opts.SessionID,
		Index:      i,
		Total:      len(p.preds),
		Label:      kinematics.FrameLabel(i, len(p.preds)),
		Prediction: pred,
		Pose:       p.opts.Geometry.Solve(pred),
	}
}

func (p *Player) publish(ctx context.Context, f Frame) {
	for _, sink := range p.opts.Sinks {
		if err := sink.PublishFrame(ctx, f); err != nil {
			p.opts.Logger.WarnContext(ctx, "frame publish failed",
				slog.String("sink", sink.Name()),
				slog.Int("frame", f.Index),
				slog.String("error", err.Error()))
			continue
		}
		infrastructure.RecordFramePublished(ctx, p.opts.Metrics, sink.Name())
	}
}
