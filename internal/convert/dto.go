// Package convert maps domain entities to transport DTOs. Masking happens
// here: a credential crossing the API boundary carries masked secrets unless
// the caller went through the explicit reveal path.
package convert

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/brokerlink/internal/model"
)

// CredentialResponse is the API shape of a credential with masked secrets.
type CredentialResponse struct {
	ID               uuid.UUID              `json:"id"`
	OwnerAccountID   uuid.UUID              `json:"owner_account_id"`
	DisplayName      string                 `json:"display_name"`
	ClientID         string                 `json:"client_id"`
	Secret           string                 `json:"secret"`
	AccessToken      string                 `json:"access_token"`
	LinkedAccount    *model.TradingAccount  `json:"linked_account,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	ExpiresAt        time.Time              `json:"expires_at"`
	Activation       model.Activation       `json:"activation"`
	ConnectionStatus model.ConnectionStatus `json:"connection_status"`
	LastValidatedAt  *time.Time             `json:"last_validated_at,omitempty"`
}

// ToCredentialResponse masks sensitive fields and copies the rest.
func ToCredentialResponse(c model.Credential) CredentialResponse {
	c = c.Clone()
	return CredentialResponse{
		ID:               c.ID,
		OwnerAccountID:   c.OwnerAccountID,
		DisplayName:      c.DisplayName,
		ClientID:         c.ClientID,
		Secret:           model.Mask(c.Secret),
		AccessToken:      model.Mask(c.AccessToken),
		LinkedAccount:    c.LinkedAccount,
		CreatedAt:        c.CreatedAt,
		ExpiresAt:        c.ExpiresAt,
		Activation:       c.Activation,
		ConnectionStatus: c.ConnectionStatus,
		LastValidatedAt:  c.LastValidatedAt,
	}
}

// ToCredentialResponses maps a projection preserving its order.
func ToCredentialResponses(creds []model.Credential) []CredentialResponse {
	out := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, ToCredentialResponse(c))
	}
	return out
}

// ExportRow is one line of the export-to-file layout.
type ExportRow struct {
	Name             string                 `json:"name"`
	ClientID         string                 `json:"client_id"`
	Secret           string                 `json:"secret"`
	AccessToken      string                 `json:"access_token"`
	LinkedAccount    string                 `json:"linked_account,omitempty"`
	Expiry           time.Time              `json:"expiry"`
	ConnectionStatus model.ConnectionStatus `json:"connection_status"`
}

// ToExportRow renders a credential for export. Values stay masked unless
// reveal was explicitly requested immediately prior.
func ToExportRow(c model.Credential, reveal bool) ExportRow {
	secret, token := model.Mask(c.Secret), model.Mask(c.AccessToken)
	if reveal {
		secret, token = c.Secret, c.AccessToken
	}
	row := ExportRow{
		Name:             c.DisplayName,
		ClientID:         c.ClientID,
		Secret:           secret,
		AccessToken:      token,
		Expiry:           c.ExpiresAt,
		ConnectionStatus: c.ConnectionStatus,
	}
	if c.LinkedAccount != nil {
		row.LinkedAccount = c.LinkedAccount.Summary()
	}
	return row
}

// ToExportRows maps a projection to export rows preserving its order.
func ToExportRows(creds []model.Credential, reveal bool) []ExportRow {
	out := make([]ExportRow, 0, len(creds))
	for _, c := range creds {
		out = append(out, ToExportRow(c, reveal))
	}
	return out
}
