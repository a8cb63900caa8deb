// Package harness runs the protocol side of the rig: an MCP server over
// the streamable HTTP transport whose exposed tool set tracks the live
// configuration. Tool toggles and version swaps re-register capabilities on
// the running server without severing open sessions; an auth-mode change
// force-closes every session so clients must re-establish trust.
package harness

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Typewise/mcp-chaos-rig/internal/activitylog"
	"github.com/Typewise/mcp-chaos-rig/internal/chaos"
	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/internal/tools"
	"github.com/Typewise/mcp-chaos-rig/pkg/logging"
)

const sessionIDHeader = "Mcp-Session-Id"

// Server owns the MCP server, its HTTP transport and the session registry,
// and reacts to configuration changes as a config.Store observer.
type Server struct {
	store    *config.Store
	catalog  *tools.Catalog
	injector *chaos.Injector
	log      *activitylog.Log

	registry  *sessionRegistry
	mcpServer *server.MCPServer
	transport *server.StreamableHTTPServer

	mu         sync.Mutex
	registered map[string]string // capability name -> active version tag
}

// New builds the harness and registers every capability that is enabled in
// the configuration at its configured version.
func New(store *config.Store, catalog *tools.Catalog, injector *chaos.Injector, log *activitylog.Log, serverVersion string) *Server {
	s := &Server{
		store:      store,
		catalog:    catalog,
		injector:   injector,
		log:        log,
		registry:   newSessionRegistry(),
		registered: make(map[string]string),
	}

	s.mcpServer = server.NewMCPServer(
		"mcp-chaos-rig",
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithToolHandlerMiddleware(s.faultMiddleware),
	)
	s.transport = server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithSessionIdManager(s.registry),
	)

	for _, cap := range catalog.Capabilities() {
		if !store.ToolEnabled(cap.Name) {
			continue
		}
		s.registerVersion(cap, store.ToolVersion(cap.Name))
	}

	store.Subscribe(s)
	return s
}

// Handler returns the protocol endpoint: a session guard in front of the
// streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return s.sessionGuard(s.transport)
}

// Sessions lists the identifiers of every live session.
func (s *Server) Sessions() []string {
	return s.registry.ids()
}

// RegisteredVersion reports the version tag a capability is currently
// exposed at, if it is registered at all.
func (s *Server) RegisteredVersion(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.registered[name]
	return tag, ok
}

// OnAuthChanged force-closes every live session. Trust established under
// the previous mode must not carry over.
func (s *Server) OnAuthChanged() {
	ids := s.registry.dropAll()
	for _, id := range ids {
		s.mcpServer.UnregisterSession(context.Background(), id)
	}
	if len(ids) > 0 {
		logging.Info("Harness", "auth mode changed, closed %d session(s)", len(ids))
	}
}

// OnToolChanged synchronizes the exposed tool set with a configuration
// change. Registration churn happens on the live server; connected clients
// receive a tools/list_changed notification instead of a disconnect.
func (s *Server) OnToolChanged(name string, kind config.ChangeKind, value string) {
	cap, ok := s.catalog.Lookup(name)
	if !ok {
		return
	}

	switch kind {
	case config.ChangeToggle:
		if value == "true" {
			s.ensureRegistered(cap, s.store.ToolVersion(name))
		} else {
			s.unregister(name)
		}
	case config.ChangeVersion:
		if s.store.ToolEnabled(name) {
			s.ensureRegistered(cap, value)
		}
	}
}

// ensureRegistered exposes the capability at the given version, replacing
// any existing registration in place.
func (s *Server) ensureRegistered(cap tools.Capability, tag string) {
	s.mu.Lock()
	current, ok := s.registered[cap.Name]
	s.mu.Unlock()
	if ok && current == tag {
		return
	}
	if ok {
		s.mcpServer.DeleteTools(cap.Name)
	}
	s.registerVersion(cap, tag)
	s.logListChanged()
	logging.Info("Harness", "tool %s registered at version %s", cap.Name, tag)
}

func (s *Server) unregister(name string) {
	s.mu.Lock()
	_, ok := s.registered[name]
	delete(s.registered, name)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.mcpServer.DeleteTools(name)
	s.logListChanged()
	logging.Info("Harness", "tool %s unregistered", name)
}

func (s *Server) registerVersion(cap tools.Capability, tag string) {
	version, ok := cap.Version(tag)
	if !ok {
		version, _ = cap.Version(cap.DefaultVersion)
	}
	s.mcpServer.AddTools(version.ServerTool)
	s.mu.Lock()
	s.registered[cap.Name] = version.Tag
	s.mu.Unlock()
}

// logListChanged records the asynchronous notification the server emits to
// connected clients after registration churn.
func (s *Server) logListChanged() {
	s.log.Append(activitylog.Entry{
		Direction: activitylog.DirectionOut,
		Transport: activitylog.TransportProtocol,
		RPCMethod: "notifications/tools/list_changed",
	})
}

// faultMiddleware applies the probabilistic failure roll to every tool
// call. A failed roll is reported as a failed tool result, not a transport
// error, mirroring a genuine capability execution failure.
func (s *Server) faultMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.injector.RollFailure() {
			logging.Debug("Harness", "injected failure for tool %s", request.Params.Name)
			return mcp.NewToolResultError("injected transient failure"), nil
		}
		return next(ctx, request)
	}
}

// sessionGuard rejects continuation, stream and termination requests that
// carry an unknown or missing session identifier before they reach the
// transport, so the failure shape is uniform.
func (s *Server) sessionGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(sessionIDHeader)
		switch r.Method {
		case http.MethodPost:
			// No id means session creation; that is the transport's job.
			if id != "" && !s.registry.known(id) {
				writeSessionFailure(w)
				return
			}
		case http.MethodGet, http.MethodDelete:
			if id == "" || !s.registry.known(id) {
				writeSessionFailure(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeSessionFailure(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing session"})
}
