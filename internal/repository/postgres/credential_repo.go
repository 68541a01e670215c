package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/brokerlink/internal/crypto"
	"github.com/and161185/brokerlink/internal/errs"
	"github.com/and161185/brokerlink/internal/model"
)

// CredentialRepo implements repository.CredentialRepository using PostgreSQL.
// Secret and access-token columns are sealed with the repo key before they
// reach a row; plaintext never leaves the process.
type CredentialRepo struct {
	db  *DB
	key []byte
}

// NewCredentialRepo constructs a credential repository sealing secrets with key.
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

const saveSQL = `
INSERT INTO credentials (
  id, owner_account_id, display_name, client_id, secret_enc, access_token_enc,
  linked_account_id, linked_kind, linked_balance,
  created_at, expires_at, activation, connection_status, last_validated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  owner_account_id=$2, display_name=$3, client_id=$4, secret_enc=$5,
  access_token_enc=$6, linked_account_id=$7, linked_kind=$8, linked_balance=$9,
  created_at=$10, expires_at=$11, activation=$12, connection_status=$13,
  last_validated_at=$14`

// Save upserts one committed credential snapshot.
func (r *CredentialRepo) Save(ctx context.Context, c model.Credential) error {
	secretEnc, err := crypto.Seal(r.key, []byte(c.Secret))
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	tokenEnc, err := crypto.Seal(r.key, []byte(c.AccessToken))
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}

	var (
		linkedID      *uuid.UUID
		linkedKind    *string
		linkedBalance *float64
	)
	if c.LinkedAccount != nil {
		id := c.LinkedAccount.AccountID
		kind := string(c.LinkedAccount.Kind)
		bal := c.LinkedAccount.Balance
		linkedID, linkedKind, linkedBalance = &id, &kind, &bal
	}

	_, err = r.db.Pool.Exec(ctx, saveSQL,
		c.ID, c.OwnerAccountID, c.DisplayName, c.ClientID, secretEnc, tokenEnc,
		linkedID, linkedKind, linkedBalance,
		c.CreatedAt, c.ExpiresAt, string(c.Activation), string(c.ConnectionStatus),
		c.LastValidatedAt,
	)
	return err
}

const loadSQL = `
SELECT id, owner_account_id, display_name, client_id, secret_enc, access_token_enc,
       linked_account_id, linked_kind, linked_balance,
       created_at, expires_at, activation, connection_status, last_validated_at
FROM credentials`

// Load returns all persisted credentials. A snapshot taken mid-validation is
// coerced from Connecting to Error: the in-flight attempt died with the
// previous process and must not be resurrected.
func (r *CredentialRepo) Load(ctx context.Context) ([]model.Credential, error) {
	rows, err := r.db.Pool.Query(ctx, loadSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Credential
	for rows.Next() {
		var (
			c             model.Credential
			secretEnc     []byte
			tokenEnc      []byte
			linkedID      *uuid.UUID
			linkedKind    *string
			linkedBalance *float64
			activation    string
			status        string
			lastValidated *time.Time
		)
		if err = rows.Scan(
			&c.ID, &c.OwnerAccountID, &c.DisplayName, &c.ClientID, &secretEnc, &tokenEnc,
			&linkedID, &linkedKind, &linkedBalance,
			&c.CreatedAt, &c.ExpiresAt, &activation, &status, &lastValidated,
		); err != nil {
			return nil, err
		}

		secret, err := crypto.Open(r.key, secretEnc)
		if err != nil {
			return nil, fmt.Errorf("open secret for %s: %w", c.ID, err)
		}
		token, err := crypto.Open(r.key, tokenEnc)
		if err != nil {
			return nil, fmt.Errorf("open access token for %s: %w", c.ID, err)
		}
		c.Secret = string(secret)
		c.AccessToken = string(token)
		c.Activation = model.Activation(activation)
		c.ConnectionStatus = model.ConnectionStatus(status)
		c.LastValidatedAt = lastValidated
		if linkedID != nil && linkedKind != nil && linkedBalance != nil {
			c.LinkedAccount = &model.TradingAccount{
				AccountID: *linkedID,
				Kind:      model.AccountKind(*linkedKind),
				Balance:   *linkedBalance,
			}
		}
		if c.ConnectionStatus == model.StatusConnecting {
			c.ConnectionStatus = model.StatusError
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a credential snapshot.
func (r *CredentialRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM credentials WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RecordReveal appends a reveal event to the audit trail.
func (r *CredentialRepo) RecordReveal(ctx context.Context, credentialID uuid.UUID, field string, operatorID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO audit_reveals (credential_id, field, operator_id, revealed_at) VALUES ($1,$2,$3,$4)`,
		credentialID, field, operatorID, time.Now().UTC(),
	)
	return err
}
