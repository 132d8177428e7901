// Package mock provides an in-memory stt.Provider for tests. Test code pushes
// transcripts and error events into a session; the code under test consumes
// them through the regular Events channel.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariahome/aria/pkg/provider/stt"
)

// Provider implements stt.Provider. Every StartSession call creates a new
// [Session] and records it; tests drive the most recent one.
type Provider struct {
	mu       sync.Mutex
	sessions []*Session

	// StartErr, when non-nil, is returned by StartSession.
	StartErr error
}

var _ stt.Provider = (*Provider)(nil)

// New creates an empty mock provider.
func New() *Provider {
	return &Provider{}
}

// StartSession implements stt.Provider.
func (p *Provider) StartSession(ctx context.Context, _ stt.SessionConfig) (stt.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.StartErr != nil {
		return nil, p.StartErr
	}

	s := &Session{events: make(chan stt.Event, 64)}

	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Sessions returns all sessions created so far, oldest first.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Last returns the most recently created session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Session implements stt.Session with test-controlled event emission.
type Session struct {
	mu     sync.Mutex
	events chan stt.Event
	closed bool

	// Audio records every chunk passed to SendAudio.
	Audio [][]byte
}

var _ stt.Session = (*Session)(nil)

// SendAudio implements stt.Session.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Audio = append(s.Audio, cp)
	return nil
}

// Events implements stt.Session.
func (s *Session) Events() <-chan stt.Event {
	return s.events
}

// Close implements stt.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// EmitFinal pushes a final transcript with the current time.
func (s *Session) EmitFinal(text string) {
	s.emit(stt.Event{Kind: stt.EventTranscript, Transcript: stt.Transcript{
		Text:      text,
		IsFinal:   true,
		Timestamp: time.Now(),
	}})
}

// EmitError pushes a recognition error event.
func (s *Session) EmitError(code stt.ErrorCode, msg string) {
	s.emit(stt.Event{Kind: stt.EventError, Code: code, Message: msg})
}

// EmitEnd pushes a natural end-of-session event.
func (s *Session) EmitEnd() {
	s.emit(stt.Event{Kind: stt.EventEnd})
}

func (s *Session) emit(ev stt.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}
