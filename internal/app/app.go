// Package app wires the rig together and supervises its two listeners: the
// rig listener (MCP endpoint plus the authorization-code flow surface) and
// the control listener (operator API).
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Typewise/mcp-chaos-rig/internal/activitylog"
	"github.com/Typewise/mcp-chaos-rig/internal/authgw"
	"github.com/Typewise/mcp-chaos-rig/internal/chaos"
	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/internal/contacts"
	"github.com/Typewise/mcp-chaos-rig/internal/controlapi"
	"github.com/Typewise/mcp-chaos-rig/internal/flow"
	"github.com/Typewise/mcp-chaos-rig/internal/harness"
	"github.com/Typewise/mcp-chaos-rig/internal/tools"
	"github.com/Typewise/mcp-chaos-rig/pkg/logging"
)

// shutdownTimeout bounds graceful shutdown of the listeners.
const shutdownTimeout = 10 * time.Second

// Options configures the application.
type Options struct {
	// RigAddr is the listen address for the MCP and OAuth endpoints.
	RigAddr string
	// ControlAddr is the listen address for the control API.
	ControlAddr string
	// ConfigPath optionally points at a yaml startup configuration.
	ConfigPath string
	// Debug enables verbose logging.
	Debug bool
}

// Application holds the assembled rig.
type Application struct {
	opts     Options
	store    *config.Store
	contacts *contacts.Store
	rig      *http.Server
	control  *http.Server
}

// NewApplication assembles every component: configuration, chaos injector,
// activity log, contact store, tool catalog, flow engine, MCP harness, auth
// gateway and control API.
func NewApplication(opts Options) (*Application, error) {
	level := logging.LevelInfo
	if opts.Debug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store := config.NewStore(cfg)

	contactStore, err := contacts.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open contact store: %w", err)
	}

	catalog := tools.NewCatalog(contactStore)
	catalog.Declare(store)

	injector := chaos.New(store)
	log := activitylog.New()
	engine := flow.NewEngine(store)
	baseURL := "http://" + opts.RigAddr

	mcpHarness := harness.New(store, catalog, injector, log, appVersion())
	gateway := authgw.New(store, engine, injector, log, baseURL)

	rigMux := http.NewServeMux()
	rigMux.Handle("/mcp", gateway.Middleware(mcpHarness.Handler()))
	flow.NewHandler(engine, store, log, baseURL).Register(rigMux)

	controlMux := http.NewServeMux()
	controlapi.New(store, log, mcpHarness, contactStore).Register(controlMux)

	return &Application{
		opts:     opts,
		store:    store,
		contacts: contactStore,
		rig: &http.Server{
			Addr:    opts.RigAddr,
			Handler: rigMux,
		},
		control: &http.Server{
			Addr:    opts.ControlAddr,
			Handler: controlMux,
		},
	}, nil
}

// Run serves both listeners until ctx is canceled, then shuts them down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	logging.Info("App", "rig listening on %s, control API on %s", a.opts.RigAddr, a.opts.ControlAddr)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.rig.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("rig listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.control.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("control listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logging.Info("App", "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.rig.Shutdown(shutdownCtx); err != nil {
			logging.Error("App", err, "rig listener shutdown")
		}
		if err := a.control.Shutdown(shutdownCtx); err != nil {
			logging.Error("App", err, "control listener shutdown")
		}
		if err := a.contacts.Close(); err != nil {
			logging.Error("App", err, "closing contact store")
		}
		return nil
	})

	return g.Wait()
}

// appVersion is reported in the MCP initialize handshake.
func appVersion() string {
	return "1.0.0"
}
