// Package app wires together the HTTP server, WebSocket hub, MQTT emitter,
// keypoint source and session pipeline. It owns the daemon's lifecycle and
// is the single source of truth for the current operating state.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/emitter"
	"github.com/large-farva/rehab-engine/internal/quality"
	"github.com/large-farva/rehab-engine/internal/runner"
	"github.com/large-farva/rehab-engine/internal/session"
	"github.com/large-farva/rehab-engine/internal/source"
	"github.com/large-farva/rehab-engine/internal/telemetry"
	"github.com/large-farva/rehab-engine/internal/ws"
)

const component = "rehabd"

// Daemon states.
const (
	StateBooting      = "BOOTING"
	StateRunning      = "RUNNING"
	StateSourceClosed = "SOURCE_CLOSED"
	StateStopping     = "STOPPING"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *log.Logger
	Cfg        config.Config
	ConfigPath string
	Bind       string
	// Record, when set, tees every source frame into a replay file.
	Record string
	// Source overrides the configured source. Used by tests.
	Source source.Source
}

// App is the top-level daemon process.
type App struct {
	log         *log.Logger
	bind        string
	record      string
	server      *http.Server
	srcOverride source.Source

	cfgMu      sync.RWMutex
	cfg        config.Config
	configPath string
	trained    bool

	startedAt time.Time
	state     atomic.Value

	wsHub    *ws.Hub
	logs     *logRing
	mqtt     *emitter.MQTT
	sink     telemetry.Fanout
	pipeline *session.Pipeline
	runner   atomic.Pointer[runner.Runner]
}

// New builds the App and its session pipeline. A bad classifier model is
// logged and replaced with the untrained fallback; a bad exercise table is
// an error.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	a := &App{
		log:         logger,
		bind:        opts.Bind,
		record:      opts.Record,
		srcOverride: opts.Source,
		cfg:         opts.Cfg,
		configPath:  opts.ConfigPath,
		startedAt:   time.Now(),
		wsHub:       ws.NewHub(),
		logs:        newLogRing(logRingSize),
	}
	a.state.Store(StateBooting)
	a.sink = telemetry.Fanout{a.logs, a.wsHub}

	classifier, trained := a.loadClassifier(opts.Cfg.Classifier)
	a.trained = trained
	p, err := session.New(session.Options{Cfg: opts.Cfg, Classifier: classifier, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	a.pipeline = p
	return a, nil
}

// loadClassifier falls back to Untrained on any error and reports whether a
// model is in use.
func (a *App) loadClassifier(cfg config.ClassifierConfig) (quality.Classifier, bool) {
	c, err := quality.Load(cfg)
	if err != nil {
		a.logf("warn", "classifier: %v; continuing untrained", err)
	}
	_, untrained := c.(quality.Untrained)
	if untrained && err == nil && cfg.ModelPath != "" {
		a.logf("warn", "classifier: model %s not found; continuing untrained", cfg.ModelPath)
	}
	return c, !untrained
}

// reconfigure applies cfg to the pipeline. The stored config and the
// classifier state only change once the pipeline has accepted it.
func (a *App) reconfigure(cfg config.Config) (prev, next string, err error) {
	classifier, trained := a.loadClassifier(cfg.Classifier)
	prev, next, err = a.pipeline.Reconfigure(cfg, classifier)
	if err != nil {
		return "", "", err
	}
	a.cfgMu.Lock()
	a.cfg = cfg
	a.trained = trained
	a.cfgMu.Unlock()
	return prev, next, nil
}

// Handler returns the HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/exercises", a.handleExercises)
	mux.HandleFunc("/api/exercise", a.handleSelectExercise)
	mux.HandleFunc("/api/reps", a.handleReps)
	mux.HandleFunc("/api/reset", a.handleReset)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/reload", a.handleReload)
	mux.HandleFunc("/api/logs", a.handleLogs)
	mux.Handle("/ws", a.wsHub.Handler())
	return mux
}

// Run starts the HTTP server, WebSocket hub, heartbeat ticker, optional MQTT
// emitter, and the frame loop. It blocks until the context is cancelled or
// the server returns an error.
func (a *App) Run(ctx context.Context) error {
	cfg := a.getConfig()
	bind := a.bind
	if bind == "" && cfg.Server.Bind != "" {
		bind = cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	a.log.Printf("listening on http://%s", bind)

	go a.wsHub.Run(ctx)

	if cfg.MQTT.Enabled {
		a.mqtt = emitter.NewMQTT(cfg.MQTT, a.log)
		if err := a.mqtt.Connect(); err != nil {
			a.logf("warn", "%v", err)
		}
		a.sink = append(a.sink, a.mqtt)
		defer a.mqtt.Disconnect()
	}

	src, closer, err := a.openSource(ctx, cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer closer.Close()

	r := runner.New(src, a.pipeline, a.sink, a.log)
	r.Debug = cfg.Logging.Level == "debug"
	a.runner.Store(r)

	a.transition(StateRunning)
	go a.heartbeatLoop(ctx)
	go func() {
		_ = r.Run(ctx)
		if ctx.Err() == nil {
			a.transition(StateSourceClosed)
		}
	}()

	go func() {
		<-ctx.Done()
		a.transition(StateStopping)
		a.log.Printf("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()

	err = a.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) openSource(ctx context.Context, cfg config.Config) (source.Source, io.Closer, error) {
	if a.srcOverride != nil {
		return a.srcOverride, nopCloser{}, nil
	}
	src, closer, err := source.Open(ctx, cfg.Source, a.record, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	a.logf("info", "source %s opened (%dx%d @ %g fps)", cfg.Source.Kind, cfg.Source.FrameWidth, cfg.Source.FrameHeight, cfg.Source.FPS)
	if a.record != "" {
		a.logf("info", "recording frames to %s", a.record)
	}
	return src, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// transition updates the daemon state and broadcasts the change.
func (a *App) transition(newState string) {
	old := a.state.Swap(newState).(string)
	if old == newState {
		return
	}
	a.sink.Publish(telemetry.StateTransition{
		Event: telemetry.NewEvent(telemetry.EventState, component),
		Scope: "daemon",
		From:  old,
		To:    newState,
	})
}

// heartbeatLoop sends a periodic heartbeat so clients can detect
// connectivity and follow the session without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sink.Publish(a.heartbeat())
		}
	}
}

func (a *App) heartbeat() telemetry.Heartbeat {
	st := a.pipeline.Snapshot()
	return telemetry.Heartbeat{
		Event:         telemetry.NewEvent(telemetry.EventHeartbeat, component),
		State:         a.state.Load().(string),
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
		SessionID:     st.SessionID,
		Exercise:      st.Exercise.String(),
		Phase:         string(st.Phase),
		Reps:          st.Reps,
		Clients:       a.wsHub.Clients(),
	}
}

// announceReset publishes a SessionReset event.
func (a *App) announceReset(prev, next, reason string) {
	a.sink.Publish(telemetry.SessionReset{
		Event:      telemetry.NewEvent(telemetry.EventSessionReset, component),
		SessionID:  next,
		PreviousID: prev,
		Exercise:   a.pipeline.Exercise().String(),
		Reason:     reason,
	})
}

func (a *App) getConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// logf writes to the daemon log and mirrors the line to the log ring and
// every WebSocket client. Debug lines are dropped unless logging.level is
// debug.
func (a *App) logf(level, format string, args ...any) {
	if level == "debug" && a.getConfig().Logging.Level != "debug" {
		return
	}
	msg := fmt.Sprintf(format, args...)
	a.log.Printf("%s: %s", level, msg)
	a.sink.Publish(telemetry.LogLine{
		Event:   telemetry.NewEvent(telemetry.EventLog, component),
		Level:   level,
		Message: msg,
	})
}
