// Package flow implements the rig's authorization-code flow: pending
// authorizations with an interactive consent point, code issuance, code and
// refresh exchange, and token verification.
//
// Unlike a real authorization server, the consent point can deliberately
// misbehave (wrong-code, wrong-state) and the exchange endpoints can be
// force-failed from the control API. Injected failures are shaped exactly
// like real ones so clients cannot special-case the rig.
package flow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/pkg/logging"

	"github.com/google/uuid"
)

// pendingAuthTTL is how long an undecided authorization survives at the
// consent point before its expiry timer destroys it.
const pendingAuthTTL = 5 * time.Minute

// defaultScope is granted when the authorization request carries no scope.
const defaultScope = "mcp"

// pendingEntry pairs a parked authorization with its expiry timer so that a
// submitted decision can cancel the timer deterministically.
type pendingEntry struct {
	auth  PendingAuthorization
	timer *time.Timer
}

// codeGrant is the server-side binding of an issued authorization code.
type codeGrant struct {
	clientID    string
	redirectURI string
	scope       string
	createdAt   time.Time
}

// Engine owns all flow state: pending authorizations, unconsumed codes and
// issued tokens. Everything lives in memory and vanishes on restart.
type Engine struct {
	store *config.Store

	mu           sync.Mutex
	pending      map[string]*pendingEntry
	codes        map[string]*codeGrant
	tokens       map[string]*IssuedToken
	refreshHints map[string]string // refresh value -> client id, informational only
}

// NewEngine creates an engine reading TTLs and reject toggles from store.
func NewEngine(store *config.Store) *Engine {
	return &Engine{
		store:        store,
		pending:      map[string]*pendingEntry{},
		codes:        map[string]*codeGrant{},
		tokens:       map[string]*IssuedToken{},
		refreshHints: map[string]string{},
	}
}

// BeginAuthorize parks an authorization request at the consent point and
// schedules its destruction in five minutes. The returned pending
// authorization identifies the request on the consent form.
func (e *Engine) BeginAuthorize(clientID, redirectURI, state, scope string) (PendingAuthorization, error) {
	if clientID == "" {
		return PendingAuthorization{}, fmt.Errorf("missing client_id")
	}
	if _, err := url.ParseRequestURI(redirectURI); err != nil {
		return PendingAuthorization{}, fmt.Errorf("invalid redirect_uri: %w", err)
	}
	if scope == "" {
		scope = defaultScope
	}

	auth := PendingAuthorization{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		RedirectURI: redirectURI,
		State:       state,
		Scope:       scope,
		CreatedAt:   time.Now(),
	}

	entry := &pendingEntry{auth: auth}
	entry.timer = time.AfterFunc(pendingAuthTTL, func() {
		e.expirePending(auth.ID)
	})

	e.mu.Lock()
	e.pending[auth.ID] = entry
	e.mu.Unlock()

	logging.Info("Flow", "authorization pending for client=%s id=%s", clientID, auth.ID)
	return auth, nil
}

// expirePending destroys an undecided authorization. If a decision consumed
// it first the timer fires against nothing and must no-op.
func (e *Engine) expirePending(id string) {
	e.mu.Lock()
	_, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()

	if ok {
		logging.Info("Flow", "pending authorization %s expired undecided", id)
	}
}

// PendingByID returns a parked authorization without consuming it, for
// rendering the consent page.
func (e *Engine) PendingByID(id string) (PendingAuthorization, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.pending[id]
	if !ok {
		return PendingAuthorization{}, false
	}
	return entry.auth, true
}

// Decide consumes the pending authorization and resolves it per the chosen
// action. A second decision for the same id reports ErrPendingConsumed.
func (e *Engine) Decide(pendingID string, action Decision) (DecisionResult, error) {
	if !ValidDecision(action) {
		return DecisionResult{}, fmt.Errorf("invalid decision %q", action)
	}

	e.mu.Lock()
	entry, ok := e.pending[pendingID]
	if ok {
		delete(e.pending, pendingID)
		entry.timer.Stop()
	}
	e.mu.Unlock()

	if !ok {
		return DecisionResult{}, ErrPendingConsumed
	}
	auth := entry.auth

	redirect, err := url.Parse(auth.RedirectURI)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("parsing redirect target: %w", err)
	}
	q := redirect.Query()

	switch action {
	case DecisionApprove:
		q.Set("code", e.mintCode(auth))
		q.Set("state", auth.State)

	case DecisionDecline:
		q.Set("error", "access_denied")
		q.Set("state", auth.State)

	case DecisionWrongCode:
		// Syntactically plausible, never bound: the exchange must fail.
		q.Set("code", newOpaque("code"))
		q.Set("state", auth.State)

	case DecisionWrongState:
		q.Set("code", e.mintCode(auth))
		q.Set("state", tamperState(auth.State))
	}

	redirect.RawQuery = q.Encode()
	logging.Info("Flow", "decision %s for pending=%s client=%s", action, pendingID, auth.ClientID)
	return DecisionResult{RedirectURL: redirect.String()}, nil
}

// mintCode issues a single-use authorization code bound to the original
// request.
func (e *Engine) mintCode(auth PendingAuthorization) string {
	code := newOpaque("code")

	e.mu.Lock()
	e.codes[code] = &codeGrant{
		clientID:    auth.ClientID,
		redirectURI: auth.RedirectURI,
		scope:       auth.Scope,
		createdAt:   time.Now(),
	}
	e.mu.Unlock()

	return code
}

// ExchangeCode redeems a single-use authorization code for tokens. Replay of
// a consumed code fails like an unknown one.
func (e *Engine) ExchangeCode(code string) (TokenResponse, error) {
	if code == "" {
		return TokenResponse{}, ErrInvalidCode
	}

	e.mu.Lock()
	grant, ok := e.codes[code]
	if ok {
		delete(e.codes, code)
	}
	e.mu.Unlock()

	if !ok {
		return TokenResponse{}, ErrInvalidCode
	}

	resp := e.mintTokens(grant.clientID, grant.scope)
	logging.Info("Flow", "code exchanged for client=%s", grant.clientID)
	return resp, nil
}

// ExchangeRefresh redeems a refresh value for fresh tokens. Any
// syntactically present value is accepted; the rig tests the client's
// refresh behavior, not server-side refresh integrity. The rejectRefresh
// toggle force-fails every exchange regardless of the value.
func (e *Engine) ExchangeRefresh(refresh string) (TokenResponse, error) {
	if e.store.RejectRefresh() {
		return TokenResponse{}, ErrRefreshRejected
	}
	if refresh == "" {
		return TokenResponse{}, ErrInvalidToken
	}

	e.mu.Lock()
	clientID, ok := e.refreshHints[refresh]
	e.mu.Unlock()
	if !ok {
		clientID = "unknown"
	}

	resp := e.mintTokens(clientID, defaultScope)
	logging.Info("Flow", "refresh exchanged for client=%s", clientID)
	return resp, nil
}

// mintTokens creates an access token with the TTL configured at mint time
// plus a fresh opaque refresh value.
func (e *Engine) mintTokens(clientID, scope string) TokenResponse {
	ttl := e.store.AccessTokenTTL()
	token := &IssuedToken{
		Value:     newOpaque("at"),
		ClientID:  clientID,
		Scopes:    strings.Fields(scope),
		ExpiresAt: time.Now().Add(ttl),
	}
	refresh := newOpaque("rt")

	e.mu.Lock()
	e.tokens[token.Value] = token
	e.refreshHints[refresh] = clientID
	e.mu.Unlock()

	return TokenResponse{
		AccessToken:  token.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int(ttl.Seconds()),
		RefreshToken: refresh,
		Scope:        scope,
	}
}

// Verify checks a bearer token. The delegated-flow reject toggle takes
// precedence over real validation so forced failures are indistinguishable
// from genuine ones.
func (e *Engine) Verify(token string) error {
	switch e.store.RejectDelegatedFlow() {
	case config.RejectUnauthorized:
		return ErrInvalidToken
	case config.RejectServerError:
		return ErrInjectedServerError
	}

	if token == "" {
		return ErrInvalidToken
	}

	e.mu.Lock()
	issued, ok := e.tokens[token]
	e.mu.Unlock()

	if !ok || time.Now().After(issued.ExpiresAt) {
		return ErrInvalidToken
	}
	return nil
}

// Introspect reports a token's standing. Unknown and expired tokens
// introspect as inactive; the reject toggle's server-error outcome surfaces
// as an error so the HTTP layer can fail the request.
func (e *Engine) Introspect(token string) (Introspection, error) {
	switch e.store.RejectDelegatedFlow() {
	case config.RejectUnauthorized:
		return Introspection{Active: false}, nil
	case config.RejectServerError:
		return Introspection{}, ErrInjectedServerError
	}

	e.mu.Lock()
	issued, ok := e.tokens[token]
	e.mu.Unlock()

	if !ok || time.Now().After(issued.ExpiresAt) {
		return Introspection{Active: false}, nil
	}

	return Introspection{
		Active:    true,
		ClientID:  issued.ClientID,
		Scope:     strings.Join(issued.Scopes, " "),
		ExpiresAt: issued.ExpiresAt.Unix(),
	}, nil
}

// TokenByValue returns an issued token for state inspection.
func (e *Engine) TokenByValue(value string) (IssuedToken, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tokens[value]
	if !ok {
		return IssuedToken{}, false
	}
	return *t, true
}

// PendingCount returns the number of undecided authorizations.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// tamperState returns a value that is deliberately not the original state.
func tamperState(state string) string {
	if state == "" {
		return "tampered"
	}
	return state + "-tampered"
}

// newOpaque generates an unguessable opaque value with a type prefix.
func newOpaque(kind string) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in no state to serve.
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return "mcr_" + kind + "_" + hex.EncodeToString(buf)
}
