// Package service contains the application service exposing the credential
// lifecycle operations.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/brokerlink/internal/bulk"
	"github.com/and161185/brokerlink/internal/convert"
	"github.com/and161185/brokerlink/internal/errs"
	"github.com/and161185/brokerlink/internal/machine"
	"github.com/and161185/brokerlink/internal/model"
	"github.com/and161185/brokerlink/internal/query"
	"github.com/and161185/brokerlink/internal/repository"
	"github.com/and161185/brokerlink/internal/store"
	"github.com/and161185/brokerlink/internal/validator"
)

const defaultCredentialTTL = 90 * 24 * time.Hour

// RevealField names a sensitive field for the explicit reveal path.
type RevealField string

const (
	FieldSecret      RevealField = "secret"
	FieldAccessToken RevealField = "access_token"
)

// ListInput scopes and shapes a credential listing.
type ListInput struct {
	Owner uuid.UUID // uuid.Nil lists every owner
	Query query.Params
}

// CreateInput carries the fields of a new credential. LinkedAccountID may
// name one of the candidate accounts discovered by validation; unset, the
// first candidate is linked.
type CreateInput struct {
	OwnerAccountID  uuid.UUID
	DisplayName     string
	ClientID        string
	Secret          string
	AccessToken     string
	ExpiresAt       time.Time
	LinkedAccountID uuid.UUID
}

// EditInput carries a partial update; nil fields stay unchanged. Changing the
// access token or relinking the account forces a fresh validation of the
// effective token before anything is committed.
type EditInput struct {
	DisplayName     *string
	ClientID        *string
	Secret          *string
	AccessToken     *string
	LinkedAccountID *uuid.UUID
}

// CredentialService is the operation surface of the connection manager.
type CredentialService interface {
	// List returns the filtered, sorted projection for an owner scope.
	List(ctx context.Context, in ListInput) []model.Credential
	// Create validates the supplied token and inserts a connected credential.
	Create(ctx context.Context, in CreateInput) (model.Credential, error)
	// TestConnection checks a candidate token without touching the store.
	TestConnection(ctx context.Context, token string) model.ValidationResult
	// Edit applies a partial update, re-validating when the token changes.
	Edit(ctx context.Context, id uuid.UUID, in EditInput) (model.Credential, error)
	// UpdateAccessToken replaces the token after a successful validation.
	UpdateAccessToken(ctx context.Context, id uuid.UUID, token string) (model.Credential, error)
	// ToggleActivation flips Active <-> Blocked.
	ToggleActivation(ctx context.Context, id uuid.UUID) (model.Credential, error)
	// Connect brings a credential to Connected, or Error on validator failure.
	Connect(ctx context.Context, id uuid.UUID) (model.Credential, error)
	// Disconnect detaches a credential; idempotent when already disconnected.
	Disconnect(ctx context.Context, id uuid.UUID) (model.Credential, error)
	// BulkConnect applies Connect across a selection with per-item outcomes.
	BulkConnect(ctx context.Context, ids []uuid.UUID) model.BulkResult
	// BulkDisconnect applies Disconnect across a selection.
	BulkDisconnect(ctx context.Context, ids []uuid.UUID) model.BulkResult
	// Delete removes a credential.
	Delete(ctx context.Context, id uuid.UUID) error
	// Reveal returns a sensitive field in cleartext and records the access.
	Reveal(ctx context.Context, id uuid.UUID, field RevealField, operator uuid.UUID) (string, error)
	// Export renders the projection as export rows, masked unless reveal was
	// explicitly requested.
	Export(ctx context.Context, in ListInput, reveal bool, operator uuid.UUID) ([]convert.ExportRow, error)
}

type CredentialServiceImpl struct {
	store     *store.Store
	validator validator.Validator
	repo      repository.CredentialRepository // nil disables persistence
	bulk      *bulk.Coordinator
	log       *zap.Logger
	auditLog  *zap.Logger
	now       func() time.Time
}

// NewCredentialService wires the store, validator and optional persistence.
func NewCredentialService(
	st *store.Store,
	v validator.Validator,
	repo repository.CredentialRepository,
	bulkLimit int,
	log *zap.Logger,
) *CredentialServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &CredentialServiceImpl{
		store:     st,
		validator: v,
		repo:      repo,
		bulk:      bulk.NewCoordinator(bulkLimit),
		log:       log,
		auditLog:  log.Named("audit"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List computes the read-side projection. Reads never hold a lock across
// validator latency; they see whatever the store last committed.
func (s *CredentialServiceImpl) List(ctx context.Context, in ListInput) []model.Credential {
	creds := s.store.List()
	if in.Owner != uuid.Nil {
		scoped := creds[:0]
		for _, c := range creds {
			if c.OwnerAccountID == in.Owner {
				scoped = append(scoped, c)
			}
		}
		creds = scoped
	}
	return query.Compute(creds, in.Query)
}

// Create requires a successful validation of the supplied token before the
// record may carry a linked account and be saved. The new credential starts
// Active and Connected to the chosen candidate account.
func (s *CredentialServiceImpl) Create(ctx context.Context, in CreateInput) (model.Credential, error) {
	if in.OwnerAccountID == uuid.Nil {
		return model.Credential{}, fmt.Errorf("%w: missing owner account", errs.ErrValidation)
	}
	if in.DisplayName == "" || in.ClientID == "" || in.Secret == "" {
		return model.Credential{}, fmt.Errorf("%w: name, client id and secret are required", errs.ErrValidation)
	}
	if in.AccessToken == "" {
		return model.Credential{}, fmt.Errorf("%w: access token is required", errs.ErrValidation)
	}

	res := s.validator.TestConnection(ctx, in.AccessToken)
	if !res.OK {
		return model.Credential{}, fmt.Errorf("%w: test connection: %s", errs.ErrValidation, res.Reason)
	}
	linked, err := pickAccount(res.CandidateAccounts, in.LinkedAccountID)
	if err != nil {
		return model.Credential{}, err
	}

	now := s.now()
	expires := in.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(defaultCredentialTTL)
	}
	if !expires.After(now) {
		return model.Credential{}, fmt.Errorf("%w: expiry must be in the future", errs.ErrValidation)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Credential{}, err
	}
	c := model.Credential{
		ID:               id,
		OwnerAccountID:   in.OwnerAccountID,
		DisplayName:      in.DisplayName,
		ClientID:         in.ClientID,
		Secret:           in.Secret,
		AccessToken:      in.AccessToken,
		LinkedAccount:    linked,
		CreatedAt:        now,
		ExpiresAt:        expires,
		Activation:       model.ActivationActive,
		ConnectionStatus: model.StatusConnected,
	}
	machine.MarkValidated(&c, now)

	if _, err := s.store.Insert(c); err != nil {
		return model.Credential{}, err
	}
	s.persist(ctx, c)
	s.log.Info("credential created",
		zap.Stringer("id", c.ID),
		zap.Stringer("owner", c.OwnerAccountID),
	)
	return c, nil
}

// TestConnection runs a full validation. It is idempotent and mutates nothing.
func (s *CredentialServiceImpl) TestConnection(ctx context.Context, token string) model.ValidationResult {
	return s.validator.TestConnection(ctx, token)
}

// Edit applies a partial update. Token changes and relinking validate first,
// outside the store lock; the mutation commits atomically afterwards.
func (s *CredentialServiceImpl) Edit(ctx context.Context, id uuid.UUID, in EditInput) (model.Credential, error) {
	if in.DisplayName != nil && *in.DisplayName == "" {
		return model.Credential{}, fmt.Errorf("%w: name cannot be empty", errs.ErrValidation)
	}
	if in.ClientID != nil && *in.ClientID == "" {
		return model.Credential{}, fmt.Errorf("%w: client id cannot be empty", errs.ErrValidation)
	}
	if in.Secret != nil && *in.Secret == "" {
		return model.Credential{}, fmt.Errorf("%w: secret cannot be empty", errs.ErrValidation)
	}

	var (
		linked      *model.TradingAccount
		validatedAt *time.Time
	)
	if in.AccessToken != nil || in.LinkedAccountID != nil {
		cur, err := s.store.Get(id)
		if err != nil {
			return model.Credential{}, err
		}
		token := cur.AccessToken
		if in.AccessToken != nil {
			token = *in.AccessToken
		}
		if token == "" {
			return model.Credential{}, fmt.Errorf("%w: access token cannot be empty", errs.ErrValidation)
		}
		res := s.validator.TestConnection(ctx, token)
		if !res.OK {
			return model.Credential{}, fmt.Errorf("%w: test connection: %s", errs.ErrValidation, res.Reason)
		}
		want := uuid.Nil
		if in.LinkedAccountID != nil {
			want = *in.LinkedAccountID
		}
		linked, err = pickAccount(res.CandidateAccounts, want)
		if err != nil {
			return model.Credential{}, err
		}
		ts := s.now()
		validatedAt = &ts
	}

	updated, err := s.store.Update(id, func(c *model.Credential) error {
		if in.DisplayName != nil {
			c.DisplayName = *in.DisplayName
		}
		if in.ClientID != nil {
			c.ClientID = *in.ClientID
		}
		if in.Secret != nil {
			c.Secret = *in.Secret
		}
		if in.AccessToken != nil {
			c.AccessToken = *in.AccessToken
		}
		if linked != nil {
			la := *linked
			c.LinkedAccount = &la
		}
		if validatedAt != nil {
			machine.MarkValidated(c, *validatedAt)
		}
		return nil
	})
	if err != nil {
		return model.Credential{}, err
	}
	s.persist(ctx, updated)
	return updated, nil
}

// UpdateAccessToken is the token-only update path. The new token must pass
// validation before the record changes at all.
func (s *CredentialServiceImpl) UpdateAccessToken(ctx context.Context, id uuid.UUID, token string) (model.Credential, error) {
	if token == "" {
		return model.Credential{}, fmt.Errorf("%w: access token is required", errs.ErrValidation)
	}
	if _, err := s.store.Get(id); err != nil {
		return model.Credential{}, err
	}
	res := s.validator.TestConnection(ctx, token)
	if !res.OK {
		return model.Credential{}, fmt.Errorf("%w: test connection: %s", errs.ErrValidation, res.Reason)
	}
	validatedAt := s.now()
	updated, err := s.store.Update(id, func(c *model.Credential) error {
		c.AccessToken = token
		machine.MarkValidated(c, validatedAt)
		return nil
	})
	if err != nil {
		return model.Credential{}, err
	}
	s.persist(ctx, updated)
	return updated, nil
}

// ToggleActivation flips the activation gate.
func (s *CredentialServiceImpl) ToggleActivation(ctx context.Context, id uuid.UUID) (model.Credential, error) {
	updated, err := s.store.Update(id, func(c *model.Credential) error {
		machine.ToggleActivation(c)
		return nil
	})
	if err != nil {
		return model.Credential{}, err
	}
	s.persist(ctx, updated)
	return updated, nil
}

// Connect transitions the credential towards Connected. Validator failures are
// absorbed into connectionStatus=Error so the credential stays addressable and
// retryable; only domain errors (NotFound, Blocked, IllegalTransition) are
// returned to the caller.
func (s *CredentialServiceImpl) Connect(ctx context.Context, id uuid.UUID) (model.Credential, error) {
	c, _, err := s.connect(ctx, id)
	return c, err
}

// connect also reports the failure reason when the attempt resolved to Error,
// so bulk runs can surface it per item.
func (s *CredentialServiceImpl) connect(ctx context.Context, id uuid.UUID) (model.Credential, model.FailureReason, error) {
	// Claiming Connecting commits under the store lock, which is the per-ID
	// mutual exclusion: a concurrent Connect for the same ID fails fast here.
	claimed, err := s.store.Update(id, machine.BeginConnect)
	if err != nil {
		return model.Credential{}, "", err
	}
	s.persist(ctx, claimed)

	// Lightweight reconnect: a credential that already carries a linked
	// account and a prior successful validation flips straight to Connected
	// without a validator round trip. The explicit TestConnection flow is the
	// full re-validation affordance.
	if claimed.LinkedAccount != nil && claimed.LastValidatedAt != nil {
		updated, err := s.store.Update(id, func(c *model.Credential) error {
			return machine.CompleteConnect(c, nil)
		})
		if err != nil {
			return model.Credential{}, "", err
		}
		s.persist(ctx, updated)
		return updated, "", nil
	}

	res := s.validator.TestConnection(ctx, claimed.AccessToken)
	if !res.OK {
		return s.failConnect(ctx, id, res.Reason)
	}

	validatedAt := s.now()
	updated, err := s.store.Update(id, func(c *model.Credential) error {
		linked := c.LinkedAccount
		if linked == nil && len(res.CandidateAccounts) > 0 {
			linked = &res.CandidateAccounts[0]
		}
		if err := machine.CompleteConnect(c, linked); err != nil {
			return err
		}
		machine.MarkValidated(c, validatedAt)
		return nil
	})
	if err != nil {
		// The claimed attempt must still resolve. A token the brokerage
		// accepts but that reaches zero trading accounts ends in Error like
		// any other failed validation; the record stays retryable.
		return s.failConnect(ctx, id, model.ReasonRejected)
	}
	s.persist(ctx, updated)
	return updated, "", nil
}

// failConnect resolves a claimed attempt to Error and reports the reason.
func (s *CredentialServiceImpl) failConnect(ctx context.Context, id uuid.UUID, reason model.FailureReason) (model.Credential, model.FailureReason, error) {
	updated, err := s.store.Update(id, machine.FailConnect)
	if err != nil {
		return model.Credential{}, "", err
	}
	s.persist(ctx, updated)
	s.log.Warn("connect failed",
		zap.Stringer("id", id),
		zap.String("reason", string(reason)),
	)
	return updated, reason, nil
}

// Disconnect detaches the credential, keeping the linked account so a later
// reconnect needs no re-selection.
func (s *CredentialServiceImpl) Disconnect(ctx context.Context, id uuid.UUID) (model.Credential, error) {
	updated, err := s.store.Update(id, machine.Disconnect)
	if err != nil {
		return model.Credential{}, err
	}
	s.persist(ctx, updated)
	return updated, nil
}

// BulkConnect fans Connect out over the selection.
func (s *CredentialServiceImpl) BulkConnect(ctx context.Context, ids []uuid.UUID) model.BulkResult {
	return s.bulk.Run(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		_, reason, err := s.connect(ctx, id)
		if err != nil {
			return err
		}
		if reason != "" {
			return fmt.Errorf("connect: %s", reason)
		}
		return nil
	})
}

// BulkDisconnect fans Disconnect out over the selection.
func (s *CredentialServiceImpl) BulkDisconnect(ctx context.Context, ids []uuid.UUID) model.BulkResult {
	return s.bulk.Run(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		_, err := s.Disconnect(ctx, id)
		return err
	})
}

// Delete removes the credential and its persisted snapshot. Linking data dies
// with the record.
func (s *CredentialServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			s.log.Warn("delete snapshot", zap.Stringer("id", id), zap.Error(err))
		}
	}
	return nil
}

// Reveal returns the cleartext value of one sensitive field. Every reveal is
// audited; the value itself is never logged or persisted.
func (s *CredentialServiceImpl) Reveal(ctx context.Context, id uuid.UUID, field RevealField, operator uuid.UUID) (string, error) {
	c, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	var value string
	switch field {
	case FieldSecret:
		value = c.Secret
	case FieldAccessToken:
		value = c.AccessToken
	default:
		return "", fmt.Errorf("%w: unknown field %q", errs.ErrValidation, field)
	}
	s.audit(ctx, id, string(field), operator)
	return value, nil
}

// Export renders the current projection as export rows. With reveal=true each
// exported credential is audited the same way a single reveal is.
func (s *CredentialServiceImpl) Export(ctx context.Context, in ListInput, reveal bool, operator uuid.UUID) ([]convert.ExportRow, error) {
	creds := s.List(ctx, in)
	if reveal {
		for _, c := range creds {
			s.audit(ctx, c.ID, "export", operator)
		}
	}
	return convert.ToExportRows(creds, reveal), nil
}

func (s *CredentialServiceImpl) audit(ctx context.Context, id uuid.UUID, field string, operator uuid.UUID) {
	s.auditLog.Info("secret revealed",
		zap.Stringer("id", id),
		zap.String("field", field),
		zap.Stringer("operator", operator),
	)
	if s.repo != nil {
		if err := s.repo.RecordReveal(ctx, id, field, operator); err != nil {
			s.log.Warn("record reveal", zap.Stringer("id", id), zap.Error(err))
		}
	}
}

// persist snapshots committed state write-behind; the store stays
// authoritative and a failed snapshot only logs.
func (s *CredentialServiceImpl) persist(ctx context.Context, c model.Credential) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, c); err != nil {
		s.log.Warn("persist credential", zap.Stringer("id", c.ID), zap.Error(err))
	}
}

func pickAccount(candidates []model.TradingAccount, want uuid.UUID) (*model.TradingAccount, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: validation returned no accounts", errs.ErrValidation)
	}
	if want == uuid.Nil {
		a := candidates[0]
		return &a, nil
	}
	for _, a := range candidates {
		if a.AccountID == want {
			a := a
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: account %s is not reachable with this token", errs.ErrValidation, want)
}
