// Package authgw gates the MCP endpoint. A strategy per authentication mode
// decides whether a request passes; operator-injected rejections short-
// circuit before any credential is inspected and are shaped exactly like
// real failures, so clients cannot special-case the rig.
package authgw

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Typewise/mcp-chaos-rig/internal/activitylog"
	"github.com/Typewise/mcp-chaos-rig/internal/chaos"
	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/internal/flow"
	"github.com/Typewise/mcp-chaos-rig/pkg/logging"
)

// sessionIDHeader is the MCP streamable HTTP session header.
const sessionIDHeader = "Mcp-Session-Id"

// TokenVerifier validates delegated-flow bearer tokens.
type TokenVerifier interface {
	Verify(token string) error
}

// Denial is a refused request: the HTTP status to write and the payload
// message. Injected and real denials use the same shape.
type Denial struct {
	Status  int
	Message string
}

// strategy is the per-mode authentication decision procedure.
type strategy interface {
	authenticate(r *http.Request) *Denial
}

// Gateway applies the transport-level chaos delay and the active
// authentication strategy in front of the MCP handler, and records inbound
// protocol activity.
type Gateway struct {
	store    *config.Store
	verifier TokenVerifier
	injector *chaos.Injector
	log      *activitylog.Log
	baseURL  string
}

// New creates a gateway. baseURL is used to advertise the protected
// resource metadata location on delegated-flow challenges.
func New(store *config.Store, verifier TokenVerifier, injector *chaos.Injector, log *activitylog.Log, baseURL string) *Gateway {
	return &Gateway{
		store:    store,
		verifier: verifier,
		injector: injector,
		log:      log,
		baseURL:  baseURL,
	}
}

// strategyForMode selects the decision procedure for the current mode.
func (g *Gateway) strategyForMode() strategy {
	switch g.store.AuthMode() {
	case config.AuthModeSharedSecret:
		return &sharedSecretStrategy{store: g.store}
	case config.AuthModeDelegated:
		return &delegatedStrategy{store: g.store, verifier: g.verifier}
	default:
		return noneStrategy{}
	}
}

// Middleware wraps the MCP handler: chaos delay, then authentication, then
// the handler, with an activity entry recorded for the exchange.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := activitylog.Entry{
			Direction: activitylog.DirectionIn,
			Transport: activitylog.TransportProtocol,
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			SessionID: r.Header.Get(sessionIDHeader),
		}
		g.annotateRPC(r, &entry)

		if err := g.injector.Delay(r.Context()); err != nil {
			// Client went away while we were stalling it.
			entry.StatusCode = 499
			g.log.Append(entry)
			return
		}

		if denial := g.strategyForMode().authenticate(r); denial != nil {
			g.writeDenial(w, denial)
			entry.StatusCode = denial.Status
			g.log.Append(entry)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry.StatusCode = rec.status
		g.log.Append(entry)
	})
}

// annotateRPC peeks at a POST body to record the JSON-RPC method, id and,
// for tool calls, the tool name and an arguments preview. The body is
// restored for the downstream handler.
func (g *Gateway) annotateRPC(r *http.Request, entry *activitylog.Entry) {
	if r.Method != http.MethodPost || r.Body == nil {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	entry.BodyPreview = string(body)

	var rpc struct {
		Method string          `json:"method"`
		ID     json.RawMessage `json:"id"`
		Params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"params"`
	}
	if err := json.Unmarshal(body, &rpc); err != nil {
		return
	}

	entry.RPCMethod = rpc.Method
	entry.RPCID = strings.Trim(string(rpc.ID), `"`)
	if rpc.Method == "tools/call" {
		entry.Tool = rpc.Params.Name
		entry.ArgsPreview = string(rpc.Params.Arguments)
	}
}

// writeDenial emits the refusal. 401s carry a bearer challenge; in
// delegated-flow mode the challenge points at the protected resource
// metadata so clients can discover the authorization server.
func (g *Gateway) writeDenial(w http.ResponseWriter, denial *Denial) {
	if denial.Status == http.StatusUnauthorized {
		challenge := "Bearer"
		if g.store.AuthMode() == config.AuthModeDelegated {
			challenge = fmt.Sprintf("Bearer resource_metadata=%q", g.baseURL+"/.well-known/oauth-protected-resource")
		}
		w.Header().Set("WWW-Authenticate", challenge)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(denial.Status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": denial.Message}); err != nil {
		logging.Error("AuthGW", err, "writing denial")
	}
}

// noneStrategy passes everything.
type noneStrategy struct{}

func (noneStrategy) authenticate(r *http.Request) *Denial { return nil }

// sharedSecretStrategy requires Authorization: Bearer <sharedSecret>.
type sharedSecretStrategy struct {
	store *config.Store
}

func (s *sharedSecretStrategy) authenticate(r *http.Request) *Denial {
	// Injected failures take precedence over looking at the request at all.
	if d := injectedDenial(s.store.RejectSharedSecret()); d != nil {
		return d
	}

	token, ok := bearerToken(r)
	if !ok || token != s.store.SharedSecret() {
		return unauthorized()
	}
	return nil
}

// delegatedStrategy requires a token issued by the rig's own flow engine.
type delegatedStrategy struct {
	store    *config.Store
	verifier TokenVerifier
}

func (s *delegatedStrategy) authenticate(r *http.Request) *Denial {
	if d := injectedDenial(s.store.RejectDelegatedFlow()); d != nil {
		return d
	}

	token, ok := bearerToken(r)
	if !ok {
		return unauthorized()
	}

	err := s.verifier.Verify(token)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, flow.ErrInjectedServerError):
		return serverError()
	default:
		return unauthorized()
	}
}

// bearerToken extracts the value of an `Authorization: Bearer <v>` header.
// A missing header or any other scheme reports false.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := header[len(prefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

func injectedDenial(mode config.RejectMode) *Denial {
	switch mode {
	case config.RejectUnauthorized:
		return unauthorized()
	case config.RejectServerError:
		return serverError()
	default:
		return nil
	}
}

func unauthorized() *Denial {
	return &Denial{Status: http.StatusUnauthorized, Message: "unauthorized"}
}

func serverError() *Denial {
	return &Denial{Status: http.StatusInternalServerError, Message: "internal server error"}
}

// statusRecorder captures the downstream status for the activity entry.
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
