package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/Typewise/mcp-chaos-rig/internal/activitylog"
	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/pkg/logging"
)

// consentTemplate renders the interactive decision point. The four buttons
// cover every authorization outcome a client has to handle: success, denial,
// a code that will not exchange, and a tampered state value.
var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>mcp-chaos-rig authorization</title></head>
<body>
  <h1>Authorization request</h1>
  <p>Client <strong>{{.ClientID}}</strong> requests scope <strong>{{.Scope}}</strong>.</p>
  <form method="POST" action="/authorize/decision">
    <input type="hidden" name="pending_id" value="{{.ID}}">
    <button type="submit" name="action" value="approve">Approve</button>
    <button type="submit" name="action" value="decline">Decline</button>
    <button type="submit" name="action" value="wrong-code">Approve with broken code</button>
    <button type="submit" name="action" value="wrong-state">Approve with tampered state</button>
  </form>
</body>
</html>
`))

// Handler serves the authorization-code flow surface: the consent page,
// decision submission, token and introspection endpoints, and the OAuth
// discovery documents. The whole surface answers 404 unless the rig is in
// delegated-flow mode, so flow availability is observable to clients.
type Handler struct {
	engine  *Engine
	store   *config.Store
	log     *activitylog.Log
	baseURL string
}

// NewHandler creates the flow HTTP surface. baseURL is the externally
// reachable base of the rig listener and becomes the issuer in discovery
// documents.
func NewHandler(engine *Engine, store *config.Store, log *activitylog.Log, baseURL string) *Handler {
	return &Handler{
		engine:  engine,
		store:   store,
		log:     log,
		baseURL: baseURL,
	}
}

// Register mounts all flow endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /authorize", h.logged(h.handleAuthorize))
	mux.HandleFunc("POST /authorize/decision", h.logged(h.handleDecision))
	mux.HandleFunc("POST /token", h.logged(h.handleToken))
	mux.HandleFunc("POST /introspect", h.logged(h.handleIntrospect))
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", h.logged(h.handleAuthServerMetadata))
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", h.logged(h.handleProtectedResourceMetadata))
}

// logged records an inbound auth-transport activity entry around next,
// capturing the response status and a body preview for form posts.
func (h *Handler) logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var bodyPreview string
		if r.Body != nil && r.Method == http.MethodPost {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 2048))
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
			bodyPreview = string(body)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		h.log.Append(activitylog.Entry{
			Direction:   activitylog.DirectionIn,
			Transport:   activitylog.TransportAuth,
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       r.URL.RawQuery,
			BodyPreview: bodyPreview,
			StatusCode:  rec.status,
		})
	}
}

// active reports whether the flow surface is currently served, writing a 404
// when it is not.
func (h *Handler) active(w http.ResponseWriter, r *http.Request) bool {
	if h.store.AuthMode() != config.AuthModeDelegated {
		http.NotFound(w, r)
		return false
	}
	return true
}

// handleAuthorize parks the authorization request and renders the consent
// page instead of auto-deciding.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if !h.active(w, r) {
		return
	}

	q := r.URL.Query()
	auth, err := h.engine.BeginAuthorize(q.Get("client_id"), q.Get("redirect_uri"), q.Get("state"), q.Get("scope"))
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consentTemplate.Execute(w, auth); err != nil {
		logging.Error("Flow", err, "rendering consent page")
	}
}

// handleDecision resolves the consent point and redirects to the client's
// redirect target.
func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	if !h.active(w, r) {
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	result, err := h.engine.Decide(r.PostFormValue("pending_id"), Decision(r.PostFormValue("action")))
	switch {
	case errors.Is(err, ErrPendingConsumed):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "authorization request expired or already used")
		return
	case err != nil:
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// handleToken serves code and refresh exchange.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if !h.active(w, r) {
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	var (
		resp TokenResponse
		err  error
	)
	switch grantType := r.PostFormValue("grant_type"); grantType {
	case "authorization_code":
		resp, err = h.engine.ExchangeCode(r.PostFormValue("code"))
	case "refresh_token":
		resp, err = h.engine.ExchangeRefresh(r.PostFormValue("refresh_token"))
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type "+grantType)
		return
	}

	switch {
	case errors.Is(err, ErrInvalidCode):
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "invalid or expired authorization code")
	case errors.Is(err, ErrRefreshRejected), errors.Is(err, ErrInvalidToken):
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "invalid refresh token")
	case err != nil:
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleIntrospect serves token introspection.
func (h *Handler) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if !h.active(w, r) {
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	intro, err := h.engine.Introspect(r.PostFormValue("token"))
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "introspection failed")
		return
	}
	writeJSON(w, http.StatusOK, intro)
}

// handleAuthServerMetadata serves the RFC 8414 authorization server
// discovery document.
func (h *Handler) handleAuthServerMetadata(w http.ResponseWriter, r *http.Request) {
	if !h.active(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                h.baseURL,
		"authorization_endpoint":                h.baseURL + "/authorize",
		"token_endpoint":                        h.baseURL + "/token",
		"introspection_endpoint":                h.baseURL + "/introspect",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"token_endpoint_auth_methods_supported": []string{"none"},
	})
}

// handleProtectedResourceMetadata serves the RFC 9728 protected resource
// document pointing clients at this rig's authorization server.
func (h *Handler) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if !h.active(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource":              h.baseURL + "/mcp",
		"authorization_servers": []string{h.baseURL},
		"bearer_methods_supported": []string{
			"header",
		},
	})
}

// writeOAuthError writes an RFC 6749 error payload.
func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Flow", err, "encoding response")
	}
}

// statusRecorder captures the status code written by a downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
