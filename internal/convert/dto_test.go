package convert

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/brokerlink/internal/model"
)

func sample() model.Credential {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return model.Credential{
		ID:               uuid.Must(uuid.NewV4()),
		OwnerAccountID:   uuid.Must(uuid.NewV4()),
		DisplayName:      "binance main",
		ClientID:         "cid-1",
		Secret:           "super-secret-value",
		AccessToken:      "token-abcdef123456",
		LinkedAccount:    &model.TradingAccount{AccountID: uuid.Must(uuid.NewV4()), Kind: model.KindLive, Balance: 100},
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Hour),
		Activation:       model.ActivationActive,
		ConnectionStatus: model.StatusConnected,
	}
}

func TestToCredentialResponseMasksSecrets(t *testing.T) {
	t.Parallel()
	c := sample()
	resp := ToCredentialResponse(c)

	if resp.Secret == c.Secret || resp.AccessToken == c.AccessToken {
		t.Fatalf("response carries cleartext secrets")
	}
	if !strings.HasSuffix(resp.Secret, c.Secret[len(c.Secret)-4:]) {
		t.Fatalf("mask should keep last 4 characters: %q", resp.Secret)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), c.Secret) || strings.Contains(string(raw), c.AccessToken) {
		t.Fatalf("serialized response leaks cleartext")
	}
}

func TestModelCredentialNeverMarshalsSecrets(t *testing.T) {
	t.Parallel()
	c := sample()
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), c.Secret) || strings.Contains(string(raw), c.AccessToken) {
		t.Fatalf("model.Credential leaks cleartext on marshal")
	}
}

func TestToExportRow(t *testing.T) {
	t.Parallel()
	c := sample()

	masked := ToExportRow(c, false)
	if masked.Secret == c.Secret || masked.AccessToken == c.AccessToken {
		t.Fatalf("export defaults must be masked")
	}
	if masked.LinkedAccount == "" {
		t.Fatalf("linked account summary missing")
	}

	revealed := ToExportRow(c, true)
	if revealed.Secret != c.Secret || revealed.AccessToken != c.AccessToken {
		t.Fatalf("explicit reveal must return cleartext")
	}
}

func TestMask(t *testing.T) {
	t.Parallel()
	if got := model.Mask(""); got != "" {
		t.Fatalf("Mask(empty) = %q", got)
	}
	// anything under 8 characters is fully hidden, even when a last-4 suffix
	// would technically fit
	for _, v := range []string{"abc", "abcde", "abcdefg"} {
		if got := model.Mask(v); got != "••••" {
			t.Fatalf("Mask(%q) = %q, want fixed placeholder", v, got)
		}
	}
	if got := model.Mask("abcdefgh"); !strings.HasSuffix(got, "efgh") || strings.Contains(got, "abcd") {
		t.Fatalf("Mask = %q", got)
	}
}
