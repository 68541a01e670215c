// Package model defines domain entities used by services, the store and repositories.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Activation controls whether a credential may initiate new connections.
type Activation string

const (
	ActivationActive  Activation = "active"
	ActivationBlocked Activation = "blocked"
)

// ConnectionStatus is the credential's current link state to the brokerage.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// AccountKind distinguishes live trading accounts from demo ones.
type AccountKind string

const (
	KindLive AccountKind = "live"
	KindDemo AccountKind = "demo"
)

// TradingAccount is a brokerage trading account reachable with an access token.
type TradingAccount struct {
	AccountID uuid.UUID   `json:"account_id"`
	Kind      AccountKind `json:"kind"`
	Balance   float64     `json:"balance"`
}

// Summary renders a short human label for export rows.
func (a TradingAccount) Summary() string {
	return fmt.Sprintf("%s (%s, %.2f)", a.AccountID, a.Kind, a.Balance)
}

// Credential links a user's trading account to one brokerage via an API key pair.
// Secret and AccessToken are never marshaled; callers go through an explicit
// reveal path to obtain cleartext.
type Credential struct {
	ID               uuid.UUID        `json:"id"`
	OwnerAccountID   uuid.UUID        `json:"owner_account_id"`
	DisplayName      string           `json:"display_name"`
	ClientID         string           `json:"client_id"`
	Secret           string           `json:"-"`
	AccessToken      string           `json:"-"`
	LinkedAccount    *TradingAccount  `json:"linked_account,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
	Activation       Activation       `json:"activation"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	LastValidatedAt  *time.Time       `json:"last_validated_at,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (c Credential) Clone() Credential {
	out := c
	if c.LinkedAccount != nil {
		la := *c.LinkedAccount
		out.LinkedAccount = &la
	}
	if c.LastValidatedAt != nil {
		ts := *c.LastValidatedAt
		out.LastValidatedAt = &ts
	}
	return out
}

// CheckInvariants verifies the record-level rules that must hold after every
// mutation. The store calls this before committing.
func (c Credential) CheckInvariants() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("empty id")
	}
	if !c.ExpiresAt.After(c.CreatedAt) {
		return fmt.Errorf("expires_at must be after created_at")
	}
	switch c.Activation {
	case ActivationActive, ActivationBlocked:
	default:
		return fmt.Errorf("unknown activation %q", c.Activation)
	}
	switch c.ConnectionStatus {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusError:
	default:
		return fmt.Errorf("unknown connection status %q", c.ConnectionStatus)
	}
	if c.ConnectionStatus == StatusConnected {
		if c.LinkedAccount == nil {
			return fmt.Errorf("connected without linked account")
		}
		if c.LastValidatedAt == nil {
			return fmt.Errorf("connected without last_validated_at")
		}
	}
	return nil
}

// FailureReason classifies why a connection test failed.
type FailureReason string

const (
	ReasonEmptyToken  FailureReason = "empty_token"
	ReasonUnreachable FailureReason = "unreachable"
	ReasonRejected    FailureReason = "rejected"
)

// ValidationResult is the two-outcome contract of a connection test: either a
// set of candidate trading accounts or a failure reason.
type ValidationResult struct {
	OK                bool             `json:"ok"`
	Reason            FailureReason    `json:"reason,omitempty"`
	CandidateAccounts []TradingAccount `json:"candidate_accounts,omitempty"`
}

// Failure builds a failed ValidationResult.
func Failure(reason FailureReason) ValidationResult {
	return ValidationResult{OK: false, Reason: reason}
}

// BulkFailure reports a single failed item of a bulk operation.
type BulkFailure struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

// BulkResult aggregates per-item outcomes of a bulk transition. Partial
// failure never escalates to a whole-operation failure.
type BulkResult struct {
	Succeeded []uuid.UUID   `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Mask hides a sensitive value. The last four characters are kept for
// recognition only when the value is at least eight characters, so a short
// secret never has most of itself exposed.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) < 8 {
		return strings.Repeat("•", 4)
	}
	return strings.Repeat("•", 4) + v[len(v)-4:]
}
