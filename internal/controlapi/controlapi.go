// Package controlapi is the operator-facing HTTP surface of the rig. Every
// runtime knob lives behind a small JSON endpoint; validation failures come
// back as 400 with a JSON error body so that test scripts can assert on
// them.
package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Typewise/mcp-chaos-rig/internal/activitylog"
	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/internal/contacts"
	"github.com/Typewise/mcp-chaos-rig/pkg/logging"
)

// SessionLister exposes the live protocol sessions for state snapshots.
type SessionLister interface {
	Sessions() []string
}

// Handler serves the control API.
type Handler struct {
	store    *config.Store
	log      *activitylog.Log
	sessions SessionLister
	contacts *contacts.Store
}

// New creates the control API handler.
func New(store *config.Store, log *activitylog.Log, sessions SessionLister, contactStore *contacts.Store) *Handler {
	return &Handler{
		store:    store,
		log:      log,
		sessions: sessions,
		contacts: contactStore,
	}
}

// Register mounts every control endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", h.handleState)
	mux.HandleFunc("GET /api/log", h.handleLogGet)
	mux.HandleFunc("DELETE /api/log", h.handleLogClear)
	mux.HandleFunc("POST /api/auth/mode", h.handleAuthMode)
	mux.HandleFunc("POST /api/auth/secret", h.handleAuthSecret)
	mux.HandleFunc("POST /api/auth/reject", h.handleAuthReject)
	mux.HandleFunc("POST /api/auth/ttl", h.handleAuthTTL)
	mux.HandleFunc("POST /api/auth/refresh-reject", h.handleRefreshReject)
	mux.HandleFunc("POST /api/chaos/slow", h.handleSlow)
	mux.HandleFunc("POST /api/chaos/flaky", h.handleFlaky)
	mux.HandleFunc("POST /api/tools/{name}/enabled", h.handleToolEnabled)
	mux.HandleFunc("POST /api/tools/{name}/version", h.handleToolVersion)
	mux.HandleFunc("POST /api/contacts/reset", h.handleContactsReset)
}

// toolState is the per-capability slice of the state snapshot.
type toolState struct {
	Enabled  bool     `json:"enabled"`
	Version  string   `json:"version"`
	Versions []string `json:"versions"`
}

// stateResponse is the full observable state of the rig.
type stateResponse struct {
	Auth struct {
		Mode                config.AuthMode   `json:"mode"`
		SharedSecret        string            `json:"sharedSecret"`
		RejectSharedSecret  config.RejectMode `json:"rejectSharedSecret"`
		RejectDelegatedFlow config.RejectMode `json:"rejectDelegatedFlow"`
		AccessTokenTTL      int               `json:"accessTokenTtlSeconds"`
		RejectRefresh       bool              `json:"rejectRefresh"`
	} `json:"auth"`
	Chaos struct {
		Slow  config.SlowConfig  `json:"slow"`
		Flaky config.FlakyConfig `json:"flaky"`
	} `json:"chaos"`
	Sessions struct {
		Count int      `json:"count"`
		IDs   []string `json:"ids"`
	} `json:"sessions"`
	Tools map[string]toolState `json:"tools"`
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	cfg := h.store.Snapshot()

	var resp stateResponse
	resp.Auth.Mode = cfg.AuthMode
	resp.Auth.SharedSecret = cfg.SharedSecret
	resp.Auth.RejectSharedSecret = cfg.RejectSharedSecret
	resp.Auth.RejectDelegatedFlow = cfg.RejectDelegatedFlow
	resp.Auth.AccessTokenTTL = cfg.AccessTokenTTLSeconds
	resp.Auth.RejectRefresh = cfg.RejectRefresh
	resp.Chaos.Slow = cfg.Slow
	resp.Chaos.Flaky = cfg.Flaky

	ids := h.sessions.Sessions()
	resp.Sessions.Count = len(ids)
	resp.Sessions.IDs = ids

	resp.Tools = make(map[string]toolState)
	for name, info := range h.store.DeclaredTools() {
		resp.Tools[name] = toolState{
			Enabled:  cfg.ToolEnabled[name],
			Version:  cfg.ToolVersion[name],
			Versions: info.Versions,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.log.Snapshot()})
}

func (h *Handler) handleLogClear(w http.ResponseWriter, r *http.Request) {
	h.log.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) handleAuthMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode config.AuthMode `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetAuthMode(req.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": req.Mode})
}

func (h *Handler) handleAuthSecret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Secret == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("secret must not be empty"))
		return
	}
	h.store.SetSharedSecret(req.Secret)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleAuthReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target config.AuthMode   `json:"target"`
		Mode   config.RejectMode `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetRejectMode(req.Target, req.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target": req.Target, "mode": req.Mode})
}

func (h *Handler) handleAuthTTL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetAccessTokenTTL(req.Seconds); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"seconds": req.Seconds})
}

func (h *Handler) handleRefreshReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reject bool `json:"reject"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.store.SetRejectRefresh(req.Reject)
	writeJSON(w, http.StatusOK, map[string]bool{"reject": req.Reject})
}

func (h *Handler) handleSlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled    bool `json:"enabled"`
		MinDelayMs int  `json:"minDelayMs"`
		MaxDelayMs int  `json:"maxDelayMs"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.store.SetSlow(req.Enabled, req.MinDelayMs, req.MaxDelayMs)
	writeJSON(w, http.StatusOK, h.store.Slow())
}

func (h *Handler) handleFlaky(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled        bool `json:"enabled"`
		FailurePercent int  `json:"failurePercent"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.store.SetFlaky(req.Enabled, req.FailurePercent)
	writeJSON(w, http.StatusOK, h.store.Flaky())
}

func (h *Handler) handleToolEnabled(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetToolEnabled(name, req.Enabled); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool": name, "enabled": req.Enabled})
}

func (h *Handler) handleToolVersion(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req struct {
		Version string `json:"version"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetToolVersion(name, req.Version); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tool": name, "version": req.Version})
}

func (h *Handler) handleContactsReset(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// decode parses a JSON request body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("ControlAPI", err, "writing response")
	}
}
