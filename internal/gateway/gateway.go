// Package gateway is the WebSocket voice transport. A browser client
// connects to /voice/stream, announces its user context, and streams
// microphone audio up; the assistant streams transcripts, responses,
// synthesized audio, and UI directives back down.
//
// The gateway sits at both ends of the pipeline: it feeds decoded PCM into
// the recognition controller and implements the audio output sink the
// speech channel plays into. One client connection is active at a time; a
// newer connection replaces the current one.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ariahome/aria/internal/convo"
	"github.com/ariahome/aria/internal/intent"
	"github.com/ariahome/aria/internal/observe"
	"github.com/ariahome/aria/internal/session"
	"github.com/ariahome/aria/internal/speech"
	"github.com/ariahome/aria/pkg/provider/tts"
)

// Engine is the conversation surface the gateway drives.
type Engine interface {
	Press(b convo.Button)
	Submit(text string)
	Interrupt()
	Reset()
}

// AudioSink receives decoded PCM microphone audio.
type AudioSink interface {
	SendAudio(chunk []byte) error
}

// Classifier is warmed with the persisted conversation log on reconnect.
type Classifier interface {
	SeedHistory(turns []intent.Turn)
}

// writeTimeout bounds a single outbound message write.
const writeTimeout = 5 * time.Second

// Config wires a Gateway.
type Config struct {
	Engine     Engine
	Audio      AudioSink
	Classifier Classifier

	// Sessions persists the conversation log and voice preferences. May be
	// nil; context messages then skip history warm-up.
	Sessions session.Log

	// OnPreferences fires when a context message carries voice
	// preferences. May be nil.
	OnPreferences func(v tts.Voice)

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Gateway accepts voice streaming connections and bridges them to the
// conversation engine.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	userID  string
}

// New creates a Gateway. Engine and Audio are required.
func New(cfg Config) (*Gateway, error) {
	if cfg.Engine == nil {
		return nil, errors.New("gateway: engine must not be nil")
	}
	if cfg.Audio == nil {
		return nil, errors.New("gateway: audio sink must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gateway{cfg: cfg, logger: cfg.Logger}, nil
}

// inbound is a client → server message.
type inbound struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`   // context payload
	Audio  string          `json:"audio,omitempty"`  // base64 audio
	Format string          `json:"format,omitempty"` // "opus" (default) or "pcm"
	Button string          `json:"button,omitempty"` // confirm payload
	Text   string          `json:"text,omitempty"`   // typed input
}

// contextData is the payload of a context message.
type contextData struct {
	UserID           string               `json:"userId"`
	UserName         string               `json:"userName"`
	VoicePreferences *session.Preferences `json:"voicePreferences,omitempty"`
}

// outbound is a server → client message.
type outbound struct {
	Type    string   `json:"type"`
	Status  string   `json:"status,omitempty"` // processing: "start"/"end"
	Text    string   `json:"text,omitempty"`
	Audio   string   `json:"audio,omitempty"`
	Target  string   `json:"target,omitempty"`
	Modal   string   `json:"modal,omitempty"`
	Gain    *float64 `json:"gain,omitempty"`
	Message string   `json:"message,omitempty"` // error detail
}

// Register adds the /voice/stream route to mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /voice/stream", g.handleStream)
}

// handleStream upgrades the connection and runs its read loop until the
// client disconnects or is replaced.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The browser client is served from another origin in development.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}

	g.attach(conn)
	if g.cfg.Metrics != nil {
		g.cfg.Metrics.ActiveSessions.Add(r.Context(), 1)
	}
	g.logger.Info("voice client connected", "remote", r.RemoteAddr)

	defer func() {
		g.detach(conn)
		if g.cfg.Metrics != nil {
			g.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
		}
		conn.Close(websocket.StatusNormalClosure, "")
		g.logger.Info("voice client disconnected", "remote", r.RemoteAddr)
	}()

	g.readLoop(r.Context(), conn)
}

// attach makes conn the active connection, replacing any previous one.
func (g *Gateway) attach(conn *websocket.Conn) {
	g.mu.Lock()
	old := g.conn
	g.conn = conn
	g.userID = ""
	g.mu.Unlock()

	if old != nil {
		old.Close(websocket.StatusPolicyViolation, "replaced by newer connection")
	}
}

// detach clears conn if it is still the active connection.
func (g *Gateway) detach(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == conn {
		g.conn = nil
		g.userID = ""
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) {
	dec := newOpusStream()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && ctx.Err() == nil {
				g.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			g.sendError(ctx, "malformed message")
			continue
		}

		switch msg.Type {
		case "context":
			g.handleContext(ctx, msg.Data)
		case "audio":
			g.handleAudio(ctx, dec, msg)
		case "confirm":
			g.handleConfirm(msg.Button)
		case "text":
			if msg.Text != "" {
				g.cfg.Engine.Submit(msg.Text)
			}
		case "interrupt":
			g.cfg.Engine.Interrupt()
		case "reset":
			g.cfg.Engine.Reset()
		default:
			g.sendError(ctx, fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

// handleContext stores the user identity, warms the classifier from the
// persisted conversation log, applies voice preferences, and acknowledges
// with a ready message.
func (g *Gateway) handleContext(ctx context.Context, raw json.RawMessage) {
	var cd contextData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cd); err != nil {
			g.sendError(ctx, "malformed context payload")
			return
		}
	}

	g.mu.Lock()
	g.userID = cd.UserID
	g.mu.Unlock()

	if cd.UserID != "" && g.cfg.Sessions != nil {
		turns, err := g.cfg.Sessions.RecentTurns(ctx, cd.UserID, session.DefaultRecent)
		if err != nil {
			g.logger.Warn("failed to load conversation log", "error", err)
		} else if len(turns) > 0 && g.cfg.Classifier != nil {
			seed := make([]intent.Turn, 0, len(turns))
			for _, t := range turns {
				seed = append(seed, intent.Turn{Role: t.Role, Content: t.Content})
			}
			g.cfg.Classifier.SeedHistory(seed)
			g.logger.Debug("classifier warmed from session log",
				"user", cd.UserID, "turns", len(seed))
		}
	}

	switch {
	case cd.VoicePreferences != nil:
		if cd.UserID != "" && g.cfg.Sessions != nil {
			if err := g.cfg.Sessions.SavePreferences(ctx, cd.UserID, *cd.VoicePreferences); err != nil {
				g.logger.Warn("failed to save voice preferences", "error", err)
			}
		}
		if g.cfg.OnPreferences != nil {
			g.cfg.OnPreferences(cd.VoicePreferences.Voice())
		}

	case cd.UserID != "" && g.cfg.Sessions != nil && g.cfg.OnPreferences != nil:
		// No preferences on the wire; fall back to the persisted ones so a
		// reconnecting user keeps their chosen voice.
		p, ok, err := g.cfg.Sessions.LoadPreferences(ctx, cd.UserID)
		if err != nil {
			g.logger.Warn("failed to load voice preferences", "error", err)
		} else if ok {
			g.cfg.OnPreferences(p.Voice())
		}
	}

	g.send(ctx, outbound{Type: "ready", Message: "voice service ready"})
}

// handleAudio decodes one audio frame and forwards it to recognition.
// Frames that arrive while recognition is stopped or suspended are dropped.
func (g *Gateway) handleAudio(ctx context.Context, dec *opusStream, msg inbound) {
	raw, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		g.sendError(ctx, "malformed audio payload")
		return
	}

	pcm := raw
	if msg.Format != "pcm" {
		pcm, err = dec.Decode(raw)
		if err != nil {
			g.logger.Warn("opus decode failed", "error", err)
			return
		}
	}

	if err := g.cfg.Audio.SendAudio(pcm); err != nil {
		// Muted or restarting; the frame is intentionally lost.
		g.logger.Debug("audio frame dropped", "error", err)
	}
}

func (g *Gateway) handleConfirm(button string) {
	switch button {
	case "yes":
		g.cfg.Engine.Press(convo.ButtonYes)
	case "no":
		g.cfg.Engine.Press(convo.ButtonNo)
	case "cancel":
		g.cfg.Engine.Press(convo.ButtonCancel)
	}
}

// Hooks returns conversation hooks that mirror engine activity to the
// connected client.
func (g *Gateway) Hooks() convo.Hooks {
	return convo.Hooks{
		Navigate: func(target string) {
			g.send(context.Background(), outbound{Type: "navigate", Target: target})
		},
		Modal: func(modalType string) {
			g.send(context.Background(), outbound{Type: "modal", Modal: modalType})
		},
		Transcript: func(text string) {
			g.send(context.Background(), outbound{Type: "transcript", Text: text})
			g.logTurn("user", text)
		},
		Assistant: func(text string) {
			g.send(context.Background(), outbound{Type: "response", Text: text})
			g.logTurn("assistant", text)
		},
		PhaseChanged: func(p convo.Phase) {
			switch p {
			case convo.PhaseAnalyzing:
				g.send(context.Background(), outbound{Type: "processing", Status: "start"})
			case convo.PhaseAwaiting, convo.PhaseIdle:
				g.send(context.Background(), outbound{Type: "processing", Status: "end"})
			}
		},
	}
}

// logTurn appends one conversation turn to the persisted session log for
// the announced user. Silently skipped when no store or identity is wired.
func (g *Gateway) logTurn(role, text string) {
	if g.cfg.Sessions == nil {
		return
	}
	g.mu.Lock()
	userID := g.userID
	g.mu.Unlock()
	if userID == "" {
		return
	}

	turn := session.Turn{Role: role, Content: text, Timestamp: time.Now()}
	if err := g.cfg.Sessions.AppendTurn(context.Background(), userID, turn); err != nil {
		g.logger.Warn("failed to persist conversation turn", "error", err)
	}
}

// Play implements speech.Sink: synthesized audio is shipped to the client
// as a base64 PCM clip, then Play holds the call open for the clip's
// audible length so the pipeline treats the client-side playback window as
// speaking time. With no client connected, playback is reported as not
// allowed so the speech channel parks the utterance.
func (g *Gateway) Play(ctx context.Context, clip tts.Clip) error {
	g.mu.Lock()
	connected := g.conn != nil
	g.mu.Unlock()
	if !connected {
		return speech.ErrPlaybackNotAllowed
	}

	if err := g.send(ctx, outbound{
		Type:  "audio",
		Audio: base64.StdEncoding.EncodeToString(clip.PCM),
	}); err != nil {
		return err
	}

	d := clipDuration(clip)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clipDuration computes the real-time length of a 16-bit PCM clip.
func clipDuration(clip tts.Clip) time.Duration {
	bytesPerSec := clip.SampleRate * clip.Channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(float64(len(clip.PCM)) / float64(bytesPerSec) * float64(time.Second))
}

// SetGain implements speech.Sink: the client applies the gain to its output
// element, which is how interruption fades reach the ear.
func (g *Gateway) SetGain(gain float64) {
	g.send(context.Background(), outbound{Type: "gain", Gain: &gain})
}

var _ speech.Sink = (*Gateway)(nil)

// send writes one message to the active connection. A missing connection
// or write failure is returned but not fatal to the gateway.
func (g *Gateway) send(ctx context.Context, msg outbound) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return errors.New("gateway: no active connection")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gateway: encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("gateway: write %s message: %w", msg.Type, err)
	}
	return nil
}

func (g *Gateway) sendError(ctx context.Context, detail string) {
	_ = g.send(ctx, outbound{Type: "error", Message: detail})
}

// UserID returns the identity announced by the current connection, or "".
func (g *Gateway) UserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.userID
}
