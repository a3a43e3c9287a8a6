package data

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/data/pgxutil"
	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	apperrors "github.com/atelierhq/atelier/internal/errors"
)

// RegistrationRepo performs the combined invitation-accept + user-create
// write. Both statements run in one transaction so a UserRecord can never
// exist without its invitation having been consumed.
type RegistrationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRegistrationRepo creates a RegistrationRepo with the real time
// provider.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo {
	return &RegistrationRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewRegistrationRepoWithTimeProvider creates a RegistrationRepo with a
// custom time provider (useful for tests).
func NewRegistrationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RegistrationRepo {
	return &RegistrationRepo{DB: db, timeProvider: tp}
}

// ConsumeAndProvision transitions the invitation pending → accepted and
// inserts the user record in the same transaction. When the invitation is
// no longer pending (another registration won the race, or an admin
// cancelled it) the transaction rolls back, no user row is written, and
// false is returned.
func (r *RegistrationRepo) ConsumeAndProvision(
	ctx context.Context,
	invitationID string,
	user domainauth.UserRecord,
) (bool, error) {
	if user.ID == "" {
		return false, apperrors.ValidationField("id", "user id is required")
	}
	if !user.Role.IsValid() {
		return false, apperrors.ValidationField("role", "role must be admin or designer")
	}

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.timeProvider.Now().UTC()
	}

	won := false
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invitations SET status = $1
			WHERE id = $2 AND status = $3`,
			string(domainauth.InvitationAccepted), invitationID, string(domainauth.InvitationPending),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			// Lost the race; leave won=false and commit nothing.
			return nil
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, role, allowed_hours, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			user.ID, user.Email, string(user.Role), windowColumn(user.AccessWindow), createdAt,
		); err != nil {
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return won, nil
}
