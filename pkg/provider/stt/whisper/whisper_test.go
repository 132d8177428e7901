package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariahome/aria/pkg/provider/stt"
	"github.com/ariahome/aria/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing the provided responseText. It increments *callCount on
// every matched request.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// makeSpeechPCM generates a sine-wave PCM buffer at 440 Hz whose RMS is well
// above the silence threshold. The buffer contains `samples` 16-bit
// little-endian signed samples.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0 // RMS ≈ 7071, well above 300
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued PCM buffer (RMS = 0, below any
// threshold). The buffer contains `samples` 16-bit little-endian samples.
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

// mustStartSession calls StartSession and fails the test on error.
func mustStartSession(t *testing.T, p *whisper.Provider, cfg stt.SessionConfig) stt.Session {
	t.Helper()
	s, err := p.StartSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return s
}

// waitForEvent blocks until the session emits an event of the given kind or
// the timeout expires.
func waitForEvent(t *testing.T, s stt.Session, kind stt.EventKind, timeout time.Duration) stt.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, open := <-s.Events():
			if !open {
				t.Fatalf("event channel closed before %v event arrived", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_ValidServerURL_ReturnsProvider(t *testing.T) {
	p, err := whisper.New("http://localhost:8080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithSampleRate(16000),
		whisper.WithSilenceThresholdMs(300),
		whisper.WithMaxBufferDurationMs(5000),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- session creation -------------------------------------------------------

func TestStartSession_EventsChannel_NonNil(t *testing.T) {
	srv := newMockServer(t, "", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	defer s.Close()

	if s.Events() == nil {
		t.Error("Events() returned nil channel")
	}
}

func TestStartSession_CancelledContext_ReturnsError(t *testing.T) {
	srv := newMockServer(t, "", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled

	_, err := p.StartSession(ctx, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

// ---- silence detection / buffering ------------------------------------------

func TestSilenceAloneDoesNotTriggerInference(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls)
	defer srv.Close()

	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(50),
		whisper.WithSampleRate(16000),
	)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})

	// 1 second of silence (16000 samples × 2 bytes).
	_ = s.SendAudio(makeSilencePCM(16000))

	// Give the processing goroutine time to act (it shouldn't).
	time.Sleep(150 * time.Millisecond)
	s.Close()

	if n := calls.Load(); n != 0 {
		t.Errorf("inference called %d time(s) for silence-only audio; want 0", n)
	}
}

func TestSpeechFollowedBySilenceEmitsTranscript(t *testing.T) {
	const wantText = "add milk to the shopping list"
	srv := newMockServer(t, wantText, nil)
	defer srv.Close()

	// Use a short silence threshold so the test is fast.
	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(100),
		whisper.WithSampleRate(16000),
	)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	defer s.Close()

	// 100 ms of speech (1600 samples at 16 kHz).
	if err := s.SendAudio(makeSpeechPCM(1600)); err != nil {
		t.Fatalf("SendAudio (speech): %v", err)
	}

	// 100 ms of silence, meets the silence threshold and triggers a flush.
	if err := s.SendAudio(makeSilencePCM(1600)); err != nil {
		t.Fatalf("SendAudio (silence): %v", err)
	}

	ev := waitForEvent(t, s, stt.EventTranscript, 5*time.Second)
	if ev.Transcript.Text != wantText {
		t.Errorf("transcript text = %q; want %q", ev.Transcript.Text, wantText)
	}
	if !ev.Transcript.IsFinal {
		t.Error("transcript should have IsFinal = true")
	}
	if ev.Transcript.Timestamp.IsZero() {
		t.Error("transcript should carry a timestamp")
	}
}

func TestMaxBufferExceededForcesFlush(t *testing.T) {
	const wantText = "turn off the kitchen lights"
	srv := newMockServer(t, wantText, nil)
	defer srv.Close()

	// maxBuffer = 200 ms; silence threshold = 10 s (will never be reached).
	// The force-flush should kick in once we send > 200 ms of speech.
	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(10_000),
		whisper.WithMaxBufferDurationMs(200),
		whisper.WithSampleRate(16000),
	)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	defer s.Close()

	// Send 210 ms of continuous speech (3360 samples at 16 kHz).
	if err := s.SendAudio(makeSpeechPCM(3360)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	ev := waitForEvent(t, s, stt.EventTranscript, 5*time.Second)
	if ev.Transcript.Text != wantText {
		t.Errorf("transcript text = %q; want %q", ev.Transcript.Text, wantText)
	}
}

// ---- session close ----------------------------------------------------------

func TestClose_EmitsEndAndClosesEvents(t *testing.T) {
	srv := newMockServer(t, "", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	s.Close()

	sawEnd := false
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-s.Events():
			if !open {
				if !sawEnd {
					t.Error("event channel closed without an end event")
				}
				return
			}
			if ev.Kind == stt.EventEnd {
				sawEnd = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for event channel to close")
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := newMockServer(t, "", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})

	if err := s.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
}

func TestSendAudio_AfterClose_ReturnsError(t *testing.T) {
	srv := newMockServer(t, "", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	s.Close()

	// Small sleep to let the processLoop goroutine exit cleanly.
	time.Sleep(50 * time.Millisecond)

	if err := s.SendAudio(makeSpeechPCM(100)); err == nil {
		t.Fatal("SendAudio after Close() should return an error")
	}
}

func TestClose_FlushesRemainingBuffer(t *testing.T) {
	const wantText = "set a timer for ten minutes"
	srv := newMockServer(t, wantText, nil)
	defer srv.Close()

	// Very long silence threshold, so the flush only happens on Close().
	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(60_000),
		whisper.WithSampleRate(16000),
	)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})

	_ = s.SendAudio(makeSpeechPCM(1600))
	// Wait briefly to ensure the chunk is processed before Close().
	time.Sleep(50 * time.Millisecond)

	s.Close()

	// The close-flush should have produced the transcript before the end
	// event and channel close.
	for ev := range s.Events() {
		if ev.Kind == stt.EventTranscript && ev.Transcript.Text != wantText {
			t.Errorf("received unexpected transcript %q on close-flush; want %q", ev.Transcript.Text, wantText)
		}
	}
}

// ---- error handling ---------------------------------------------------------

func TestInference_ServerError_EmitsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(100),
		whisper.WithSampleRate(16000),
	)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	defer s.Close()

	_ = s.SendAudio(makeSpeechPCM(1600))
	_ = s.SendAudio(makeSilencePCM(1600))

	ev := waitForEvent(t, s, stt.EventError, 5*time.Second)
	if ev.Code != stt.ErrCodeNetwork {
		t.Errorf("error code = %q; want %q", ev.Code, stt.ErrCodeNetwork)
	}
	if ev.Code.Recoverable() {
		t.Error("network errors should not be recoverable")
	}
}

func TestInference_EmptyResponse_EmitsNoSpeech(t *testing.T) {
	srv := newMockServer(t, "", nil) // server returns empty text
	defer srv.Close()

	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(100),
		whisper.WithSampleRate(16000),
	)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	defer s.Close()

	_ = s.SendAudio(makeSpeechPCM(1600))
	_ = s.SendAudio(makeSilencePCM(1600))

	ev := waitForEvent(t, s, stt.EventError, 5*time.Second)
	if ev.Code != stt.ErrCodeNoSpeech {
		t.Errorf("error code = %q; want %q", ev.Code, stt.ErrCodeNoSpeech)
	}
	if !ev.Code.Recoverable() {
		t.Error("no-speech errors should be recoverable")
	}
}

// ---- concurrent use ---------------------------------------------------------

func TestConcurrentSendAudio_DoesNotRace(t *testing.T) {
	srv := newMockServer(t, "hello", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(100),
		whisper.WithSampleRate(16000),
	)
	s := mustStartSession(t, p, stt.SessionConfig{SampleRate: 16000, Channels: 1})
	defer s.Close()

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				_ = s.SendAudio(makeSpeechPCM(160))
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
}
