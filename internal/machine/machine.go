// Package machine encodes legal connection and activation transitions for a
// credential. Functions mutate the passed record only when the transition is
// legal; the store applies them inside its atomic mutate contract.
package machine

import (
	"time"

	"github.com/and161185/brokerlink/internal/errs"
	"github.com/and161185/brokerlink/internal/model"
)

// CanConnect reports whether a new connect attempt may start.
// Blocked credentials never start new connections; a credential already
// Connecting or Connected is rejected so validation stays single-flight.
func CanConnect(c model.Credential) error {
	if c.Activation == model.ActivationBlocked {
		return errs.ErrBlocked
	}
	switch c.ConnectionStatus {
	case model.StatusDisconnected, model.StatusError:
		return nil
	default:
		return errs.ErrIllegalTransition
	}
}

// BeginConnect claims the credential for one in-flight validation.
func BeginConnect(c *model.Credential) error {
	if err := CanConnect(*c); err != nil {
		return err
	}
	c.ConnectionStatus = model.StatusConnecting
	return nil
}

// CompleteConnect resolves an in-flight attempt to Connected. When linked is
// non-nil it replaces the credential's linked account; either way a linked
// account must be present before the record can carry Connected.
func CompleteConnect(c *model.Credential, linked *model.TradingAccount) error {
	if c.ConnectionStatus != model.StatusConnecting {
		return errs.ErrIllegalTransition
	}
	if linked != nil {
		la := *linked
		c.LinkedAccount = &la
	}
	if c.LinkedAccount == nil {
		return errs.ErrInvariantViolation
	}
	c.ConnectionStatus = model.StatusConnected
	return nil
}

// MarkValidated records a successful validation timestamp.
func MarkValidated(c *model.Credential, at time.Time) {
	ts := at
	c.LastValidatedAt = &ts
}

// FailConnect resolves an in-flight attempt to Error.
func FailConnect(c *model.Credential) error {
	if c.ConnectionStatus != model.StatusConnecting {
		return errs.ErrIllegalTransition
	}
	c.ConnectionStatus = model.StatusError
	return nil
}

// Disconnect moves the credential to Disconnected. Disconnecting an already
// Disconnected credential is an idempotent no-op; a Connecting credential is
// owned by its in-flight validation and cannot be detached.
// The linked account survives a disconnect so reconnecting does not require
// re-selecting a trading account.
func Disconnect(c *model.Credential) error {
	switch c.ConnectionStatus {
	case model.StatusConnected, model.StatusError, model.StatusDisconnected:
		c.ConnectionStatus = model.StatusDisconnected
		return nil
	default:
		return errs.ErrIllegalTransition
	}
}

// ToggleActivation flips Active <-> Blocked. Always legal and independent of
// the connection sub-machine; the Blocked gate is enforced in CanConnect.
func ToggleActivation(c *model.Credential) {
	if c.Activation == model.ActivationBlocked {
		c.Activation = model.ActivationActive
		return
	}
	c.Activation = model.ActivationBlocked
}
