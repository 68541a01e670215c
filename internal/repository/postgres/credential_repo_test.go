package postgres

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/brokerlink/internal/crypto"
	"github.com/and161185/brokerlink/internal/errs"
	"github.com/and161185/brokerlink/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func testKey() []byte { return bytes.Repeat([]byte{0x2a}, 32) }

// sealedArg matches a bytea argument that is non-empty and does not carry the
// given plaintext. Ciphertext is nonce-randomized, so exact matching is out.
type sealedArg struct{ plaintext string }

func (a sealedArg) Match(v interface{}) bool {
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		return false
	}
	return !bytes.Contains(b, []byte(a.plaintext))
}

func testCredential() model.Credential {
	now := time.Now().UTC()
	return model.Credential{
		ID:               uuid.Must(uuid.NewV4()),
		OwnerAccountID:   uuid.Must(uuid.NewV4()),
		DisplayName:      "binance main",
		ClientID:         "cid-1",
		Secret:           "s3cret-value",
		AccessToken:      "tok-12345678",
		CreatedAt:        now,
		ExpiresAt:        now.Add(24 * time.Hour),
		Activation:       model.ActivationActive,
		ConnectionStatus: model.StatusDisconnected,
	}
}

func TestCredentialRepo_Save_SealsSecrets(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	c := testCredential()
	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(
			c.ID, c.OwnerAccountID, c.DisplayName, c.ClientID,
			sealedArg{c.Secret}, sealedArg{c.AccessToken},
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			c.CreatedAt, c.ExpiresAt, string(c.Activation), string(c.ConnectionStatus),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Save(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_Save_LinkedAccount(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	c := testCredential()
	now := time.Now().UTC()
	c.ConnectionStatus = model.StatusConnected
	c.LinkedAccount = &model.TradingAccount{
		AccountID: uuid.Must(uuid.NewV4()),
		Kind:      model.KindLive,
		Balance:   1234.5,
	}
	c.LastValidatedAt = &now

	laID := c.LinkedAccount.AccountID
	kind := string(c.LinkedAccount.Kind)
	bal := c.LinkedAccount.Balance

	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(
			c.ID, c.OwnerAccountID, c.DisplayName, c.ClientID,
			sealedArg{c.Secret}, sealedArg{c.AccessToken},
			&laID, &kind, &bal,
			c.CreatedAt, c.ExpiresAt, string(c.Activation), string(c.ConnectionStatus),
			c.LastValidatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Save(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_Save_ExecErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	mock.ExpectExec(`INSERT INTO credentials`).
		WillReturnError(errors.New("exec-fail"))

	require.Error(t, r.Save(context.Background(), testCredential()))
}

func loadColumns() []string {
	return []string{
		"id", "owner_account_id", "display_name", "client_id", "secret_enc", "access_token_enc",
		"linked_account_id", "linked_kind", "linked_balance",
		"created_at", "expires_at", "activation", "connection_status", "last_validated_at",
	}
}

func seal(t *testing.T, v string) []byte {
	t.Helper()
	enc, err := crypto.Seal(testKey(), []byte(v))
	require.NoError(t, err)
	return enc
}

func TestCredentialRepo_Load_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	now := time.Now().UTC()
	connected := testCredential()
	laID := uuid.Must(uuid.NewV4())
	kind := "live"
	bal := 777.0

	stale := testCredential()

	rows := pgxmock.NewRows(loadColumns()).
		AddRow(
			connected.ID, connected.OwnerAccountID, connected.DisplayName, connected.ClientID,
			seal(t, connected.Secret), seal(t, connected.AccessToken),
			&laID, &kind, &bal,
			connected.CreatedAt, connected.ExpiresAt, "active", "connected", &now,
		).
		AddRow(
			stale.ID, stale.OwnerAccountID, stale.DisplayName, stale.ClientID,
			seal(t, stale.Secret), seal(t, stale.AccessToken),
			nil, nil, nil,
			stale.CreatedAt, stale.ExpiresAt, "active", "connecting", nil,
		)

	mock.ExpectQuery(`SELECT (.+) FROM credentials`).WillReturnRows(rows)

	out, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.Equal(t, connected.Secret, out[0].Secret)
	require.Equal(t, connected.AccessToken, out[0].AccessToken)
	require.Equal(t, model.StatusConnected, out[0].ConnectionStatus)
	require.NotNil(t, out[0].LinkedAccount)
	require.Equal(t, laID, out[0].LinkedAccount.AccountID)
	require.Equal(t, model.KindLive, out[0].LinkedAccount.Kind)
	require.NotNil(t, out[0].LastValidatedAt)

	// a snapshot taken mid-validation must come back as Error, not Connecting
	require.Equal(t, model.StatusError, out[1].ConnectionStatus)
	require.Nil(t, out[1].LinkedAccount)
	require.Nil(t, out[1].LastValidatedAt)
}

func TestCredentialRepo_Load_BadCiphertext(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	c := testCredential()
	rows := pgxmock.NewRows(loadColumns()).
		AddRow(
			c.ID, c.OwnerAccountID, c.DisplayName, c.ClientID,
			[]byte("garbage"), seal(t, c.AccessToken),
			nil, nil, nil,
			c.CreatedAt, c.ExpiresAt, "active", "disconnected", nil,
		)
	mock.ExpectQuery(`SELECT (.+) FROM credentials`).WillReturnRows(rows)

	_, err := r.Load(context.Background())
	require.Error(t, err)
}

func TestCredentialRepo_Load_QueryErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	mock.ExpectQuery(`SELECT (.+) FROM credentials`).WillReturnError(errors.New("q-fail"))

	_, err := r.Load(context.Background())
	require.Error(t, err)
}

func TestCredentialRepo_Delete_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`DELETE FROM credentials WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(context.Background(), id))

	mock.ExpectExec(`DELETE FROM credentials WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(context.Background(), id), errs.ErrNotFound)
}

func TestCredentialRepo_RecordReveal(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCredentialRepo(db, testKey())

	credID := uuid.Must(uuid.NewV4())
	operator := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`INSERT INTO audit_reveals`).
		WithArgs(credID, "secret", operator, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.RecordReveal(context.Background(), credID, "secret", operator))
	require.NoError(t, mock.ExpectationsWereMet())
}
