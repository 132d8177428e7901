// Package app wires all Aria subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the conversation loop and the HTTP server, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSessionLog, WithHouseholdStore, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ariahome/aria/internal/action"
	"github.com/ariahome/aria/internal/config"
	"github.com/ariahome/aria/internal/convo"
	"github.com/ariahome/aria/internal/convo/textmatch"
	"github.com/ariahome/aria/internal/gateway"
	"github.com/ariahome/aria/internal/health"
	"github.com/ariahome/aria/internal/household"
	"github.com/ariahome/aria/internal/intent"
	"github.com/ariahome/aria/internal/listen"
	"github.com/ariahome/aria/internal/moderation"
	"github.com/ariahome/aria/internal/observe"
	"github.com/ariahome/aria/internal/resilience"
	"github.com/ariahome/aria/internal/session"
	"github.com/ariahome/aria/internal/speech"
	"github.com/ariahome/aria/internal/tools"
	"github.com/ariahome/aria/pkg/provider/llm"
	"github.com/ariahome/aria/pkg/provider/stt"
	sttmock "github.com/ariahome/aria/pkg/provider/stt/mock"
	"github.com/ariahome/aria/pkg/provider/tts"
	ttsmock "github.com/ariahome/aria/pkg/provider/tts/mock"
)

// defaultWakePhrases activate command capture when no phrases are configured.
var defaultWakePhrases = []string{"hey aria", "aria"}

// defaultHouseholdID scopes household actions when none is configured.
const defaultHouseholdID = "default"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// HouseholdStore is the full household persistence surface. Both
// [household.MemStore] and [household.PostgresStore] satisfy it.
type HouseholdStore interface {
	household.CalendarStore
	household.ListStore
	household.BudgetStore
}

// App owns all subsystem lifetimes and composes the Aria voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger

	// Subsystems, initialised in New, torn down in Shutdown.
	redis      *redis.Client
	pool       *pgxpool.Pool
	store      HouseholdStore
	sessions   session.Log
	modStore   moderation.Store
	moderator  *moderation.Tracker
	classifier *intent.Classifier
	router     *action.Router
	toolHost   *tools.Host
	speaker    *speech.Channel
	listener   *listen.Controller
	engine     *convo.Engine
	gateway    *gateway.Gateway
	metrics    *observe.Metrics
	health     *health.Handler
	server     *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithSessionLog injects a session log instead of creating one from config.
func WithSessionLog(log session.Log) Option {
	return func(a *App) { a.sessions = log }
}

// WithHouseholdStore injects a household store instead of creating one from config.
func WithHouseholdStore(s HouseholdStore) Option {
	return func(a *App) { a.store = s }
}

// WithModerationStore injects a moderation store instead of creating one from config.
func WithModerationStore(s moderation.Store) Option {
	return func(a *App) { a.modStore = s }
}

// WithToolHost injects an MCP tool host instead of creating one from config.
func WithToolHost(h *tools.Host) Option {
	return func(a *App) { a.toolHost = h }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connections, MCP
// server registration, pipeline assembly, and HTTP routing. Nothing listens
// or speaks until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	a.metrics = observe.DefaultMetrics()

	// The pipeline needs a recognition and a synthesis backend to exist;
	// missing ones are replaced with mocks so a bare config still starts in
	// degraded mode (no recognised audio, silent clips).
	if a.providers.STT == nil {
		a.providers.STT = sttmock.New()
		a.logger.Warn("no stt provider configured, using mock")
	}
	if a.providers.TTS == nil {
		a.providers.TTS = ttsmock.New()
		a.logger.Warn("no tts provider configured, using mock")
	}

	if err := a.initRedis(ctx); err != nil {
		return nil, fmt.Errorf("app: init redis: %w", err)
	}
	if err := a.initHousehold(ctx); err != nil {
		return nil, fmt.Errorf("app: init household store: %w", err)
	}
	if err := a.initTools(ctx); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	a.wrapProviders()
	a.initRouter()
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initHTTP()

	return a, nil
}

// initRedis connects the Redis-backed session log and moderation store, or
// falls back to the in-memory equivalents when no URL is configured.
func (a *App) initRedis(ctx context.Context) error {
	householdID := a.cfg.User.HouseholdID
	if householdID == "" {
		householdID = defaultHouseholdID
	}

	if url := a.cfg.Session.RedisURL; url != "" && (a.sessions == nil || a.modStore == nil) {
		redisOpts, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		a.logger.Info("connected to redis", "addr", redisOpts.Addr)
	}

	if a.sessions == nil {
		if a.redis != nil {
			log, err := session.NewRedisLog(a.redis)
			if err != nil {
				return err
			}
			a.sessions = log
		} else {
			a.sessions = session.NewMemLog()
		}
	}

	if a.modStore == nil {
		if a.redis != nil {
			store, err := moderation.NewRedisStore(a.redis, householdID)
			if err != nil {
				return err
			}
			a.modStore = store
		} else {
			a.modStore = moderation.NewMemStore()
		}
	}
	a.moderator = moderation.New(a.modStore)

	return nil
}

// initHousehold connects the PostgreSQL household store and applies the
// schema, or falls back to the in-memory store.
func (a *App) initHousehold(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Household.PostgresDSN
	if dsn == "" {
		a.store = household.NewMemStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	store := household.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate household schema: %w", err)
	}
	a.store = store
	a.logger.Info("connected to postgres household store")
	return nil
}

// initTools sets up the MCP host and registers the configured servers.
func (a *App) initTools(ctx context.Context) error {
	if a.toolHost == nil {
		a.toolHost = tools.New()
		a.closers = append(a.closers, a.toolHost.Close)
	}

	for _, srv := range a.cfg.MCP.Servers {
		if err := a.toolHost.RegisterServer(ctx, srv); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		a.logger.Info("registered MCP server", "name", srv.Name)
	}
	return nil
}

// wrapProviders puts each configured provider behind a circuit-breaking
// failover so a flapping backend is skipped during its cooldown instead of
// stalling every conversation turn.
func (a *App) wrapProviders() {
	breaker := resilience.Config{Logger: a.logger}

	if a.providers.LLM != nil {
		a.providers.LLM = resilience.NewLLMFailover(a.providers.LLM, a.cfg.Providers.LLM.Name, breaker)
	}
	if a.providers.STT != nil {
		a.providers.STT = resilience.NewSTTFailover(a.providers.STT, a.cfg.Providers.STT.Name, breaker)
	}
	if a.providers.TTS != nil {
		a.providers.TTS = resilience.NewTTSFailover(a.providers.TTS, a.cfg.Providers.TTS.Name, breaker)
	}
}

// initRouter builds the action handler chain. Order matters only in that the
// MCP handler runs first so an intent explicitly naming a tool is never
// swallowed by a category handler.
func (a *App) initRouter() {
	a.router = action.NewRouter(action.NewFallbackHandler(), action.WithLogger(a.logger))
	a.router.Register(action.NewMCPHandler(a.toolHost))
	a.router.Register(action.NewWeatherHandler(nil))
	a.router.Register(action.NewCalendarHandler(a.store))
	a.router.Register(action.NewListHandler(a.store))
	a.router.Register(action.NewBudgetHandler(a.store))
	a.router.Register(action.NewNavigationHandler())
	a.router.Register(action.NewSettingsHandler())
	a.router.Register(action.NewSmalltalkHandler())
}

// initPipeline assembles the voice pipeline. The pipeline is circular (the
// engine speaks through the channel, the channel plays through the gateway,
// the gateway feeds the engine), so the gateway-facing edges go through
// late-bound adapters resolved at the end.
func (a *App) initPipeline() error {
	a.classifier = intent.New(a.providers.LLM,
		intent.WithLogger(a.logger),
		intent.WithMetrics(a.metrics),
	)

	sink := &deferredSink{}
	status := &deferredStatus{}

	a.listener = listen.New(a.providers.STT, status, stt.SessionConfig{
		SampleRate: 48000,
		Channels:   2,
		Language:   "en-US",
	}, listen.WithLogger(a.logger))

	a.speaker = speech.New(a.providers.TTS, sink, a.listener,
		speech.WithLogger(a.logger),
		speech.WithMetrics(a.metrics),
		speech.WithPermissionPrompt(func() {
			// The browser refused unattended playback; ask the client to
			// show its interaction prompt.
			a.gateway.Hooks().Modal("audio-permission")
		}),
	)

	actx := action.Context{
		HouseholdID: a.cfg.User.HouseholdID,
		UserName:    a.cfg.User.UserName,
	}
	if actx.HouseholdID == "" {
		actx.HouseholdID = defaultHouseholdID
	}

	engineOpts := []convo.Option{
		convo.WithLogger(a.logger),
		convo.WithMetrics(a.metrics),
		convo.WithVoice(configVoice(a.cfg.User.Voice)),
	}
	if secs := a.cfg.Conversation.ConfirmationTimeoutSeconds; secs > 0 {
		engineOpts = append(engineOpts, convo.WithConfirmationTimeout(time.Duration(secs)*time.Second))
	}

	a.engine = convo.New(a.speaker, a.classifier, a.router, a.moderator,
		newWakeDetector(a.cfg.User.WakePhrases), actx, engineOpts...)
	a.engine.AttachListener(a.listener)
	status.set(a.engine)

	gw, err := gateway.New(gateway.Config{
		Engine:        a.engine,
		Audio:         a.listener,
		Classifier:    a.classifier,
		Sessions:      a.sessions,
		OnPreferences: a.engine.SetVoice,
		Logger:        a.logger,
		Metrics:       a.metrics,
	})
	if err != nil {
		return err
	}
	a.gateway = gw
	sink.set(gw)

	a.engine.SetHooks(gw.Hooks())
	return nil
}

// initHTTP builds the mux and the HTTP server. The voice stream, health
// probes, and the Prometheus scrape endpoint share one listener.
func (a *App) initHTTP() {
	checkers := []health.Checker{}
	if a.redis != nil {
		checkers = append(checkers, health.Redis(a.redis))
	}
	if a.pool != nil {
		checkers = append(checkers, health.Postgres(a.pool))
	}
	if a.providers.TTS != nil {
		checkers = append(checkers, health.Synthesis(a.providers.TTS))
	}
	a.health = health.New(checkers...)

	mux := http.NewServeMux()
	a.gateway.Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Gateway returns the WebSocket voice gateway.
func (a *App) Gateway() *gateway.Gateway { return a.gateway }

// Engine returns the conversation engine.
func (a *App) Engine() *convo.Engine { return a.engine }

// ApplyConfigChange applies a hot-reloadable config diff to the running
// pipeline. Called by the config watcher; restart-only changes are ignored
// here and logged by the watcher callback in main.
func (a *App) ApplyConfigChange(d config.ConfigDiff) {
	if d.VoiceChanged {
		a.engine.SetVoice(configVoice(d.NewVoice))
		a.logger.Info("voice updated", "name", d.NewVoice.Name)
	}
	if d.WakePhrasesChanged {
		a.engine.SetWakeDetector(newWakeDetector(d.NewWakePhrases))
		a.logger.Info("wake phrases updated", "count", len(d.NewWakePhrases))
	}
	if d.ConfirmationTimeoutChanged && d.NewConfirmationTimeout > 0 {
		a.engine.SetConfirmationTimeout(time.Duration(d.NewConfirmationTimeout) * time.Second)
		a.logger.Info("confirmation timeout updated", "seconds", d.NewConfirmationTimeout)
	}
}

// Run starts the conversation engine and the HTTP server and blocks until
// ctx is cancelled or either fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.engine.Run(ctx)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("app: conversation engine: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if tlsCfg := a.cfg.Server.TLS; tlsCfg != nil {
			a.logger.Info("https server listening", "addr", a.server.Addr)
			err = a.server.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			a.logger.Info("http server listening", "addr", a.server.Addr)
			err = a.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	a.logger.Info("aria running")
	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// newWakeDetector builds a detector from the configured phrases, falling
// back to the defaults when none are configured.
func newWakeDetector(phrases []string) *textmatch.WakeDetector {
	if len(phrases) == 0 {
		phrases = defaultWakePhrases
	}
	return textmatch.NewWakeDetector(phrases)
}

// configVoice converts a config.VoiceConfig to tts.Voice.
func configVoice(vc config.VoiceConfig) tts.Voice {
	v := tts.Voice{
		Name:   vc.Name,
		Pitch:  vc.Pitch,
		Rate:   vc.Rate,
		Volume: vc.Volume,
	}
	if v.Name == "" {
		v.Name = session.DefaultVoiceName
	}
	if v.Rate == 0 {
		v.Rate = 1.0
	}
	if v.Volume == 0 {
		v.Volume = 1.0
	}
	return v
}
