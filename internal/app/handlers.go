package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/exercise"
	"github.com/large-farva/rehab-engine/internal/session"
)

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	cfg := a.getConfig()
	checks := map[string]any{}
	allOK := true

	switch state := a.state.Load().(string); state {
	case StateRunning, StateBooting:
		checks["source"] = map[string]any{"ok": true, "kind": cfg.Source.Kind, "state": state}
	default:
		checks["source"] = map[string]any{"ok": false, "kind": cfg.Source.Kind, "state": state}
		allOK = false
	}

	// An untrained classifier is reported but is not a failure.
	a.cfgMu.RLock()
	trained := a.trained
	a.cfgMu.RUnlock()
	checks["classifier"] = map[string]any{"ok": true, "trained": trained, "model_path": cfg.Classifier.ModelPath}

	if cfg.MQTT.Enabled {
		connected := a.mqtt != nil && a.mqtt.Stats().Connected
		checks["mqtt"] = map[string]any{"ok": connected, "broker": cfg.MQTT.Broker}
		if !connected {
			allOK = false
		}
	}

	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

// statusResponse is the /api/status body. The session fields (score,
// feedback, ai, reps) are the status-sink contract.
type statusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Source        string `json:"source"`
	Clients       int    `json:"clients"`
	session.Status
	Loop any `json:"loop,omitempty"`
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Name:          "rehab-engine",
		State:         a.state.Load().(string),
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
		Source:        a.getConfig().Source.Kind,
		Clients:       a.wsHub.Clients(),
		Status:        a.pipeline.Snapshot(),
	}
	if r := a.runner.Load(); r != nil {
		resp.Loop = r.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	goVersion := GoVersion
	if goVersion == "unknown" {
		goVersion = runtime.Version()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"go_version": goVersion,
		"built_at":   BuiltAt,
	})
}

type exerciseJSON struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	ID       int     `json:"id"`
	Measure  string  `json:"measure"`
	Up       float64 `json:"up"`
	Down     float64 `json:"down"`
	Selected bool    `json:"selected"`
}

func (a *App) handleExercises(w http.ResponseWriter, _ *http.Request) {
	current := a.pipeline.Exercise()
	specs := a.pipeline.Catalog().Specs()
	out := make([]exerciseJSON, len(specs))
	for i, s := range specs {
		out[i] = exerciseJSON{
			Key:      s.Kind.String(),
			Label:    s.Kind.Label(),
			ID:       s.Kind.ID(),
			Measure:  s.Measure.String(),
			Up:       s.Up,
			Down:     s.Down,
			Selected: s.Kind == current,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exercises": out})
}

func (a *App) handleReps(w http.ResponseWriter, _ *http.Request) {
	st := a.pipeline.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": st.SessionID,
		"exercise":   st.Exercise,
		"reps":       a.pipeline.History(),
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.getConfig())
}

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := a.logs.snapshot()

	levelFilter := r.URL.Query().Get("level")
	if levelFilter != "" {
		var filtered []logEntry
		for _, e := range entries {
			if e.Level == levelFilter {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}

	if entries == nil {
		entries = []logEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// ---------------------------------------------------------------------------
// Session commands
// ---------------------------------------------------------------------------

func (a *App) handleSelectExercise(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Exercise string `json:"exercise"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := exercise.ParseKind(body.Exercise)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	prev, id := a.pipeline.Select(kind)
	a.announceReset(prev, id, "exercise")
	a.logf("info", "exercise set to %s, session %s", kind.Label(), id)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"exercise":   kind,
		"label":      kind.Label(),
		"session_id": id,
	})
}

func (a *App) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	prev, id := a.pipeline.Reset()
	a.announceReset(prev, id, "reset")
	a.logf("info", "session reset, new session %s", id)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"session_id": id,
	})
}

// handleReload re-reads the config file and applies the pipeline settings.
// Source, server and MQTT settings only take effect on restart.
func (a *App) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.configPath == "" {
		jsonError(w, "no config file path set", http.StatusConflict)
		return
	}

	newCfg, err := config.Load(a.configPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		jsonError(w, "config reload failed: "+err.Error(), status)
		return
	}

	prev, id, err := a.reconfigure(newCfg)
	if err != nil {
		jsonError(w, "config reload failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	a.announceReset(prev, id, "reload")
	a.logf("info", "config reloaded from %s", a.configPath)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"message":    "configuration reloaded from " + a.configPath,
		"session_id": id,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}
