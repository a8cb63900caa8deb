package flow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Typewise/mcp-chaos-rig/internal/activitylog"
	"github.com/Typewise/mcp-chaos-rig/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *Engine, *config.Store, *activitylog.Log) {
	t.Helper()
	store := config.NewStore(config.Default())
	engine := NewEngine(store)
	log := activitylog.New()
	h := NewHandler(engine, store, log, "http://localhost:9090")
	return h, engine, store, log
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestFlowSurfaceIs404OutsideDelegatedMode(t *testing.T) {
	h, _, store, _ := newTestHandler(t)
	require.Equal(t, config.AuthModeNone, store.AuthMode())

	paths := []string{
		"/authorize?client_id=c&redirect_uri=http://x/cb",
		"/.well-known/oauth-authorization-server",
		"/.well-known/oauth-protected-resource",
	}
	for _, p := range paths {
		rec := serve(h, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "GET %s outside delegated mode", p)
	}

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("grant_type=authorization_code&code=x")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorizeRendersConsentPage(t *testing.T) {
	h, engine, store, _ := newTestHandler(t)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	rec := serve(h, httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=test-client&redirect_uri=http://localhost:7777/cb&state=st&scope=mcp", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "test-client")
	assert.Contains(t, body, `value="approve"`)
	assert.Contains(t, body, `value="wrong-state"`)
	assert.Equal(t, 1, engine.PendingCount(), "authorize parks, never auto-decides")
}

func TestAuthorizeRejectsMissingClient(t *testing.T) {
	h, _, store, _ := newTestHandler(t)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/authorize?redirect_uri=http://x/cb", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFullCodeFlowOverHTTP(t *testing.T) {
	h, engine, store, _ := newTestHandler(t)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	auth, err := engine.BeginAuthorize("client-1", "http://localhost:7777/cb", "st-1", "mcp")
	require.NoError(t, err)

	form := url.Values{"pending_id": {auth.ID}, "action": {"approve"}}
	req := httptest.NewRequest(http.MethodPost, "/authorize/decision", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(h, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "st-1", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	tokenForm := url.Values{"grant_type": {"authorization_code"}, "code": {code}}
	req = httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(tokenForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)

	introForm := url.Values{"token": {resp.AccessToken}}
	req = httptest.NewRequest(http.MethodPost, "/introspect", strings.NewReader(introForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var intro Introspection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intro))
	assert.True(t, intro.Active)
	assert.Equal(t, "client-1", intro.ClientID)
}

func TestTokenEndpointErrors(t *testing.T) {
	h, _, store, _ := newTestHandler(t)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return serve(h, req)
	}

	rec := post(url.Values{"grant_type": {"authorization_code"}, "code": {"mcr_code_bogus"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_grant")

	rec = post(url.Values{"grant_type": {"password"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_grant_type")

	store.SetRejectRefresh(true)
	rec = post(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"mcr_rt_present"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_grant")
}

func TestDoubleDecisionOverHTTP(t *testing.T) {
	h, engine, store, _ := newTestHandler(t)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	auth, err := engine.BeginAuthorize("c", "http://localhost:7777/cb", "s", "")
	require.NoError(t, err)

	form := url.Values{"pending_id": {auth.ID}, "action": {"decline"}}
	req := httptest.NewRequest(http.MethodPost, "/authorize/decision", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(h, req)
	require.Equal(t, http.StatusFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/authorize/decision", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired or already used")
}

func TestDiscoveryDocuments(t *testing.T) {
	h, _, store, _ := newTestHandler(t)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "http://localhost:9090", meta["issuer"])
	assert.Equal(t, "http://localhost:9090/token", meta["token_endpoint"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "http://localhost:9090/mcp", meta["resource"])
}

func TestAuthTrafficIsLogged(t *testing.T) {
	h, _, store, log := newTestHandler(t)
	require.NoError(t, store.SetAuthMode(config.AuthModeDelegated))

	serve(h, httptest.NewRequest(http.MethodGet, "/authorize?client_id=c&redirect_uri=http://x/cb&state=s", nil))

	entries := log.Snapshot()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, activitylog.DirectionIn, last.Direction)
	assert.Equal(t, activitylog.TransportAuth, last.Transport)
	assert.Equal(t, "/authorize", last.Path)
	assert.Contains(t, last.Query, "client_id=c")
}
