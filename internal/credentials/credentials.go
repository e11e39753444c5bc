// Package credentials issues the short-lived authorization credentials
// presented to the capability-invocation service. Credentials are requested
// per invocation and never cached by the engine.
package credentials

import (
	"context"
	"time"
)

// Scope identifies what a credential will be used for.
type Scope struct {
	ConnectorID string
	Identity    string
}

// Credential is a bearer token with its expiry. A zero ExpiresAt means the
// issuer did not report one.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Provider issues credentials for the invocation service.
type Provider interface {
	Issue(ctx context.Context, scope Scope) (Credential, error)
}

// Static hands out a fixed token. Intended for local connectors and
// development setups.
type Static struct {
	Token string
}

func (s Static) Issue(_ context.Context, _ Scope) (Credential, error) {
	return Credential{Token: s.Token}, nil
}
