package websocket

import (
	"context"

	"armpose/internal/playback"
)

// EventTypePlaybackFrame carries one playback.Frame to browser clients
const EventTypePlaybackFrame = "playback:frame"

// SinkName identifies the hub in playback logs and metrics
const SinkName = "websocket"

// Sink forwards playback frames to every connected client
type Sink struct {
	hub *Hub
}

// NewSink wraps hub as a playback sink
func NewSink(hub *Hub) *Sink {
	return &Sink{hub: hub}
}

// Name implements playback.Sink
func (s *Sink) Name() string { return SinkName }

// PublishFrame implements playback.Sink. Delivery is best effort; the
// hub drops frames when its queue is full.
func (s *Sink) PublishFrame(ctx context.Context, f playback.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.hub.BroadcastUpdate(EventTypePlaybackFrame, "", "", f)
	return nil
}

var _ playback.Sink = (*Sink)(nil)
