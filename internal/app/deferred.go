package app

import (
	"context"
	"sync/atomic"

	"github.com/ariahome/aria/internal/speech"
	"github.com/ariahome/aria/pkg/provider/tts"
)

// The pipeline wiring is circular: the speech channel plays through the
// gateway, but the gateway needs the finished engine, which needs the speech
// channel. These adapters let the channel and the listener be constructed
// first and have their gateway/engine edges bound once those exist. Both
// are resolved before Run, so the unset branches only cover construction.

// deferredSink is a speech.Sink bound to the gateway after construction.
type deferredSink struct {
	sink atomic.Pointer[speech.Sink]
}

func (d *deferredSink) set(s speech.Sink) {
	d.sink.Store(&s)
}

func (d *deferredSink) Play(ctx context.Context, clip tts.Clip) error {
	if s := d.sink.Load(); s != nil {
		return (*s).Play(ctx, clip)
	}
	return speech.ErrPlaybackNotAllowed
}

func (d *deferredSink) SetGain(gain float64) {
	if s := d.sink.Load(); s != nil {
		(*s).SetGain(gain)
	}
}

var _ speech.Sink = (*deferredSink)(nil)

// deferredStatus is a listen.Status bound to the engine after construction.
type deferredStatus struct {
	engine atomic.Pointer[statusSource]
}

// statusSource is the engine surface the listener polls.
type statusSource interface {
	Speaking() bool
	Executing() bool
}

func (d *deferredStatus) set(s statusSource) {
	d.engine.Store(&s)
}

func (d *deferredStatus) Speaking() bool {
	if s := d.engine.Load(); s != nil {
		return (*s).Speaking()
	}
	return false
}

func (d *deferredStatus) Executing() bool {
	if s := d.engine.Load(); s != nil {
		return (*s).Executing()
	}
	return false
}
