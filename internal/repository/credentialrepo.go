// Package repository defines persistence interfaces implemented by concrete
// backends. The in-memory store stays authoritative; a repository is the
// write-behind snapshot of committed state plus the reveal audit trail.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/brokerlink/internal/model"
)

// CredentialRepository persists committed credential state.
type CredentialRepository interface {
	// Load returns all persisted credentials for warming the store at startup.
	Load(ctx context.Context) ([]model.Credential, error)

	// Save upserts one credential snapshot.
	Save(ctx context.Context, c model.Credential) error

	// Delete removes a credential snapshot.
	Delete(ctx context.Context, id uuid.UUID) error

	// RecordReveal appends a reveal event to the audit trail. Values are
	// never written, only which field was revealed and by whom.
	RecordReveal(ctx context.Context, credentialID uuid.UUID, field string, operatorID uuid.UUID) error
}
