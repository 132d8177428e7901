package listen_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariahome/aria/internal/listen"
	"github.com/ariahome/aria/pkg/provider/stt"
	sttmock "github.com/ariahome/aria/pkg/provider/stt/mock"
)

// fakeStatus is a controllable listen.Status.
type fakeStatus struct {
	speaking  atomic.Bool
	executing atomic.Bool
}

func (s *fakeStatus) Speaking() bool  { return s.speaking.Load() }
func (s *fakeStatus) Executing() bool { return s.executing.Load() }

func newController(t *testing.T) (*listen.Controller, *sttmock.Provider, *fakeStatus) {
	t.Helper()
	p := sttmock.New()
	status := &fakeStatus{}
	c := listen.New(p, status, stt.SessionConfig{SampleRate: 16000, Channels: 1},
		listen.WithSettleDelay(10*time.Millisecond),
		listen.WithRestartDelay(5*time.Millisecond),
	)
	return c, p, status
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStart_OpensSingleSession(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second Start must not open another session.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if n := len(p.Sessions()); n != 1 {
		t.Errorf("sessions opened = %d; want 1", n)
	}
	if !c.Running() {
		t.Error("Running() = false after Start")
	}
}

func TestTranscripts_ForwardsFinals(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.Last().EmitFinal("add milk to my list")

	select {
	case tr := <-c.Transcripts():
		if tr.Text != "add milk to my list" {
			t.Errorf("transcript text = %q; want %q", tr.Text, "add milk to my list")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}
}

func TestStop_ClosesSession(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()

	if !p.Last().Closed() {
		t.Error("session not closed after Stop")
	}
	if c.Running() {
		t.Error("Running() = true after Stop")
	}
	if err := c.SendAudio([]byte{0, 0}); !errors.Is(err, listen.ErrNotListening) {
		t.Errorf("SendAudio after Stop = %v; want ErrNotListening", err)
	}
}

func TestSuspendResume_ReopensSession(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Suspend()
	if !p.Last().Closed() {
		t.Error("session not closed after Suspend")
	}
	if err := c.SendAudio([]byte{0, 0}); !errors.Is(err, listen.ErrNotListening) {
		t.Errorf("SendAudio while suspended = %v; want ErrNotListening", err)
	}

	c.Resume(context.Background())
	waitFor(t, func() bool { return len(p.Sessions()) == 2 },
		"no new session opened after Resume")
}

func TestSuspendDuringSettle_SupersedesPendingResume(t *testing.T) {
	t.Parallel()

	p := sttmock.New()
	status := &fakeStatus{}
	c := listen.New(p, status, stt.SessionConfig{SampleRate: 16000, Channels: 1},
		listen.WithSettleDelay(100*time.Millisecond),
	)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Suspend()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Resume(context.Background())
	}()

	// A second Suspend lands inside the first Resume's settle window: the
	// next utterance started playing before the previous settle elapsed.
	time.Sleep(20 * time.Millisecond)
	c.Suspend()
	<-done

	// The stale Resume must not have reopened recognition.
	time.Sleep(150 * time.Millisecond)
	if n := len(p.Sessions()); n != 1 {
		t.Fatalf("sessions = %d; want 1 (stale Resume reopened recognition)", n)
	}
	if err := c.SendAudio([]byte{0, 0}); !errors.Is(err, listen.ErrNotListening) {
		t.Errorf("SendAudio = %v; want ErrNotListening (suspension must hold)", err)
	}

	// The Resume paired with the second Suspend still works.
	c.Resume(context.Background())
	waitFor(t, func() bool { return len(p.Sessions()) == 2 },
		"no new session opened after the matching Resume")
}

func TestResume_StaysSuspendedWhileSpeaking(t *testing.T) {
	t.Parallel()

	c, p, status := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Suspend()
	status.speaking.Store(true)
	c.Resume(context.Background())

	if n := len(p.Sessions()); n != 1 {
		t.Fatalf("sessions = %d; want 1 (must not reopen while output is active)", n)
	}

	status.speaking.Store(false)
	c.Resume(context.Background())
	waitFor(t, func() bool { return len(p.Sessions()) == 2 },
		"no new session opened once output finished")
}

func TestResume_WithoutSuspend_IsNoOp(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Resume(context.Background())

	if n := len(p.Sessions()); n != 1 {
		t.Errorf("sessions = %d; want 1 (Resume without Suspend must not reopen)", n)
	}
}

func TestRecoverableError_RestartsSession(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.Last().EmitError(stt.ErrCodeNoSpeech, "nothing heard")

	waitFor(t, func() bool { return len(p.Sessions()) == 2 },
		"session not restarted after recoverable error")
	if !c.Running() {
		t.Error("Running() = false after a single recoverable error")
	}
}

func TestRetryCeiling_GivesUp(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Errors 1..3 restart; the 4th exceeds the ceiling.
	for i := 0; i < 3; i++ {
		n := len(p.Sessions())
		p.Last().EmitError(stt.ErrCodeAudioCapture, "device busy")
		waitFor(t, func() bool { return len(p.Sessions()) == n+1 },
			"session not restarted within retry budget")
	}
	p.Last().EmitError(stt.ErrCodeAudioCapture, "device busy")

	waitFor(t, func() bool { return !c.Running() },
		"controller still running past the retry ceiling")
	if n := len(p.Sessions()); n != 4 {
		t.Errorf("sessions opened = %d; want 4 (initial + 3 retries)", n)
	}
}

func TestAbortedError_DoesNotRestart(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.Last().EmitError(stt.ErrCodeAborted, "deliberately stopped")

	// Give the watcher a moment; no new session must appear.
	time.Sleep(50 * time.Millisecond)
	if n := len(p.Sessions()); n != 1 {
		t.Errorf("sessions = %d; want 1 (aborted must not restart)", n)
	}
}

func TestNaturalEnd_RestartsWhenIdle(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.Last().EmitEnd()

	waitFor(t, func() bool { return len(p.Sessions()) == 2 },
		"session not restarted after natural end while idle")
}

func TestNaturalEnd_NoRestartWhileSpeaking(t *testing.T) {
	t.Parallel()

	c, p, status := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status.speaking.Store(true)
	p.Last().EmitEnd()

	time.Sleep(50 * time.Millisecond)
	if n := len(p.Sessions()); n != 1 {
		t.Errorf("sessions = %d; want 1 (must not restart while speaking)", n)
	}
}

func TestNaturalEnd_NoRestartWhileExecuting(t *testing.T) {
	t.Parallel()

	c, p, status := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status.executing.Store(true)
	p.Last().EmitEnd()

	time.Sleep(50 * time.Millisecond)
	if n := len(p.Sessions()); n != 1 {
		t.Errorf("sessions = %d; want 1 (must not restart while executing)", n)
	}
}

func TestSendAudio_ForwardsToActiveSession(t *testing.T) {
	t.Parallel()

	c, p, _ := newController(t)
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	audio := p.Last().Audio
	if len(audio) != 1 || len(audio[0]) != 4 {
		t.Errorf("session audio = %v; want one 4-byte chunk", audio)
	}
}

func TestStartError_Propagates(t *testing.T) {
	t.Parallel()

	p := sttmock.New()
	p.StartErr = errors.New("backend unreachable")
	c := listen.New(p, &fakeStatus{}, stt.SessionConfig{})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start should propagate provider error")
	}
}
