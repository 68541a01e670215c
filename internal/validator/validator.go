// Package validator performs the "test connection" handshake against a
// brokerage: given a candidate access token it reports either the trading
// accounts reachable with it or a failure reason. Validators never touch the
// credential store.
package validator

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/brokerlink/internal/model"
)

// Validator checks an access token. Implementations must honor ctx
// cancellation and always resolve to one of the two outcomes; they are
// idempotent and side-effect free with respect to stored credentials.
type Validator interface {
	TestConnection(ctx context.Context, token string) model.ValidationResult
}

const minTokenLen = 8

// accountNS namespaces deterministic account IDs derived from tokens.
var accountNS = uuid.NewV5(uuid.NamespaceURL, "brokerlink/simulated-accounts")

// Simulated stands in for a real brokerage handshake: fixed latency, then a
// deterministic verdict derived from the token. A real implementation
// replaces this with an actual API round trip behind the same contract.
type Simulated struct {
	delay time.Duration
}

// NewSimulated builds a simulated validator with the given handshake latency.
func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{delay: delay}
}

// TestConnection validates the token after the simulated round-trip delay.
// Empty tokens fail immediately; short tokens are rejected as the brokerage
// would reject a malformed key.
func (v *Simulated) TestConnection(ctx context.Context, token string) model.ValidationResult {
	if token == "" {
		return model.Failure(model.ReasonEmptyToken)
	}

	select {
	case <-ctx.Done():
		return model.Failure(model.ReasonUnreachable)
	case <-time.After(v.delay):
	}

	if len(token) < minTokenLen {
		return model.Failure(model.ReasonRejected)
	}

	return model.ValidationResult{
		OK: true,
		CandidateAccounts: []model.TradingAccount{
			deriveAccount(token, model.KindLive),
			deriveAccount(token, model.KindDemo),
		},
	}
}

// deriveAccount produces a stable fake account for a token so repeated tests
// of the same token discover the same accounts.
func deriveAccount(token string, kind model.AccountKind) model.TradingAccount {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	_, _ = h.Write([]byte(kind))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h.Sum64())
	return model.TradingAccount{
		AccountID: uuid.NewV5(accountNS, fmt.Sprintf("%s:%s", token, kind)),
		Kind:      kind,
		Balance:   float64(binary.BigEndian.Uint16(b[:2])) / 100 * 1000,
	}
}

// Timeboxed bounds any validator call. Expiry resolves to Unreachable so an
// abandoned or hung handshake never leaves a credential stuck in Connecting.
// The inner call keeps running in its goroutine; only the caller's interest
// in the result is abandoned.
type Timeboxed struct {
	inner   Validator
	timeout time.Duration
}

// NewTimeboxed wraps inner with a hard per-call deadline.
func NewTimeboxed(inner Validator, timeout time.Duration) *Timeboxed {
	return &Timeboxed{inner: inner, timeout: timeout}
}

// TestConnection delegates to the wrapped validator under a deadline.
func (t *Timeboxed) TestConnection(ctx context.Context, token string) model.ValidationResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res := make(chan model.ValidationResult, 1)
	go func() {
		res <- t.inner.TestConnection(ctx, token)
	}()

	select {
	case r := <-res:
		return r
	case <-ctx.Done():
		return model.Failure(model.ReasonUnreachable)
	}
}
