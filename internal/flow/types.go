package flow

import (
	"errors"
	"time"
)

// Decision is the action submitted at the interactive consent point. Besides
// the honest approve/decline pair, the rig offers two tampering decisions so
// a client's failure handling can be exercised deterministically.
type Decision string

const (
	// DecisionApprove issues a usable single-use authorization code.
	DecisionApprove Decision = "approve"
	// DecisionDecline redirects back with error=access_denied.
	DecisionDecline Decision = "decline"
	// DecisionWrongCode redirects with a plausible but unbound code, so the
	// later exchange fails.
	DecisionWrongCode Decision = "wrong-code"
	// DecisionWrongState issues a usable code but tampers with the state
	// value in the redirect, to test state validation in the client.
	DecisionWrongState Decision = "wrong-state"
)

// ValidDecision reports whether d is one of the known decisions.
func ValidDecision(d Decision) bool {
	switch d {
	case DecisionApprove, DecisionDecline, DecisionWrongCode, DecisionWrongState:
		return true
	}
	return false
}

// PendingAuthorization is an authorization request parked at the consent
// point. It is destroyed exactly once: either by a submitted decision or by
// the five-minute expiry timer, whichever fires first.
type PendingAuthorization struct {
	ID          string
	ClientID    string
	RedirectURI string
	State       string
	Scope       string
	CreatedAt   time.Time
}

// IssuedToken is an access token minted by code or refresh exchange. Tokens
// live in process memory only and are never individually revoked.
type IssuedToken struct {
	Value     string
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
}

// TokenResponse is the token endpoint's success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

// Introspection is the introspection endpoint's payload, RFC 7662 shaped.
type Introspection struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// DecisionResult carries the redirect the consent decision resolved to.
type DecisionResult struct {
	RedirectURL string
}

var (
	// ErrPendingConsumed is returned when a decision references a pending
	// authorization that expired or was already decided.
	ErrPendingConsumed = errors.New("authorization request expired or already used")

	// ErrInvalidCode is returned when code exchange references an unknown,
	// expired or already-consumed code.
	ErrInvalidCode = errors.New("invalid or expired authorization code")

	// ErrRefreshRejected is returned when refresh exchange is force-failed
	// by configuration.
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrInvalidToken is returned by verification for missing, unknown or
	// expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrInjectedServerError is returned when the delegated-flow reject
	// toggle forces a server-error outcome.
	ErrInjectedServerError = errors.New("injected server error")
)
