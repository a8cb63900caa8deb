package authgw

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Typewise/mcp-chaos-rig/internal/activitylog"
	"github.com/Typewise/mcp-chaos-rig/internal/chaos"
	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/internal/flow"
)

type stubVerifier struct {
	err error
}

func (s *stubVerifier) Verify(token string) error { return s.err }

func newTestGateway(t *testing.T, verifier TokenVerifier) (*Gateway, *config.Store, *activitylog.Log) {
	t.Helper()
	store := config.NewStore(config.Default())
	log := activitylog.New()
	if verifier == nil {
		verifier = &stubVerifier{}
	}
	gw := New(store, verifier, chaos.New(store), log, "http://localhost:9090")
	return gw, store, log
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain so body restoration is exercised.
		if r.Body != nil {
			_, _ = io.Copy(io.Discard, r.Body)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestModeNonePassesWithoutCredentials(t *testing.T) {
	gw, _, _ := newTestGateway(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	rec := httptest.NewRecorder()
	gw.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSharedSecretExactMatch(t *testing.T) {
	gw, store, _ := newTestGateway(t, nil)
	require.NoError(t, store.SetAuthMode(config.AuthModeSharedSecret))
	store.SetSharedSecret("s3cret")

	handler := gw.Middleware(okHandler())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"correct secret", "Bearer s3cret", http.StatusOK},
		{"wrong secret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestInjectedRejectionBeatsValidCredentials(t *testing.T) {
	gw, store, _ := newTestGateway(t, nil)
	require.NoError(t, store.SetAuthMode(config.AuthModeSharedSecret))
	require.NoError(t, store.SetRejectMode(config.AuthModeSharedSecret, config.RejectUnauthorized))

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+store.SharedSecret())
	rec := httptest.NewRecorder()
	gw.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestInjectedServerError(t *testing.T) {
	gw, store, _ := newTestGateway(t, nil)
	require.NoError(t, store.SetAuthMode(config.AuthModeSharedSecret))
	require.NoError(t, store.SetRejectMode(config.AuthModeSharedSecret, config.RejectServerError))

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	gw.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestDelegatedModeVerifiesToken(t *testing.T) {
	verifier := &stubVerifier{}
	gw, store, _ := newTestGateway(t, verifier)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	handler := gw.Middleware(okHandler())

	t.Run("valid token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
		req.Header.Set("Authorization", "Bearer mcr_at_abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid token gets challenge with resource metadata", func(t *testing.T) {
		verifier.err = flow.ErrInvalidToken
		defer func() { verifier.err = nil }()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "resource_metadata=")
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "/.well-known/oauth-protected-resource")
	})

	t.Run("injected server error from verifier", func(t *testing.T) {
		verifier.err = flow.ErrInjectedServerError
		defer func() { verifier.err = nil }()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
		req.Header.Set("Authorization", "Bearer mcr_at_abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("missing token rejected without calling verifier", func(t *testing.T) {
		verifier.err = errors.New("must not be reached")
		defer func() { verifier.err = nil }()

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestActivityEntryRecordsRPCDetails(t *testing.T) {
	gw, _, log := newTestGateway(t, nil)

	body := `{"jsonrpc":"2.0","id":"42","method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set(sessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	gw.Middleware(okHandler()).ServeHTTP(rec, req)

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, activitylog.DirectionIn, e.Direction)
	assert.Equal(t, activitylog.TransportProtocol, e.Transport)
	assert.Equal(t, "tools/call", e.RPCMethod)
	assert.Equal(t, "42", e.RPCID)
	assert.Equal(t, "echo", e.Tool)
	assert.JSONEq(t, `{"text":"hi"}`, e.ArgsPreview)
	assert.Equal(t, "sess-1", e.SessionID)
	assert.Equal(t, http.StatusOK, e.StatusCode)
}

func TestBodyRestoredForDownstreamHandler(t *testing.T) {
	gw, _, _ := newTestGateway(t, nil)

	var seen string
	handler := gw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))

	body := `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, body, seen)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestDeniedRequestIsStillLogged(t *testing.T) {
	gw, store, log := newTestGateway(t, nil)
	require.NoError(t, store.SetAuthMode(config.AuthModeSharedSecret))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	gw.Middleware(okHandler()).ServeHTTP(rec, req)

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusUnauthorized, entries[0].StatusCode)
	assert.Equal(t, http.MethodGet, entries[0].Method)
}
