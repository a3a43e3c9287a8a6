package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/data/pgxutil"
	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	apperrors "github.com/atelierhq/atelier/internal/errors"
)

type invitationRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Token     string    `db:"token"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (r invitationRow) toDomain() domainauth.Invitation {
	return domainauth.Invitation{
		ID:        r.ID,
		Email:     r.Email,
		Token:     r.Token,
		Status:    domainauth.InvitationStatus(r.Status),
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

const invitationColumns = `id, email, token, status, created_at, expires_at`

// InvitationRepo provides database operations for invitations. Status
// transitions are conditional writes guarded on the stored status still
// being pending; expiry is computed against expires_at and never written.
type InvitationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewInvitationRepo creates an InvitationRepo with the real time provider.
func NewInvitationRepo(db *sql.DB) *InvitationRepo {
	return &InvitationRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewInvitationRepoWithTimeProvider creates an InvitationRepo with a custom
// time provider (useful for tests).
func NewInvitationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *InvitationRepo {
	return &InvitationRepo{DB: db, timeProvider: tp}
}

// Insert stores a new invitation.
func (r *InvitationRepo) Insert(ctx context.Context, inv domainauth.Invitation) error {
	if inv.ID == "" {
		return apperrors.ValidationField("id", "invitation id is required")
	}
	if inv.Token == "" {
		return apperrors.ValidationField("token", "invitation token is required")
	}

	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.timeProvider.Now().UTC()
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO invitations (id, email, token, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			inv.ID, inv.Email, inv.Token, string(inv.Status), createdAt, inv.ExpiresAt,
		)
		return err
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// GetByToken retrieves an invitation by its token.
func (r *InvitationRepo) GetByToken(ctx context.Context, token string) (domainauth.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token)
}

// GetByID retrieves an invitation by id.
func (r *InvitationRepo) GetByID(ctx context.Context, id string) (domainauth.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

func (r *InvitationRepo) getOne(ctx context.Context, query string, arg any) (domainauth.Invitation, error) {
	var row invitationRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[invitationRow])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.Invitation{}, ErrInvitationNotFound
		}
		return domainauth.Invitation{}, apperrors.MapDBError(err)
	}
	return row.toDomain(), nil
}

// List returns all invitations, newest first.
func (r *InvitationRepo) List(ctx context.Context) ([]domainauth.Invitation, error) {
	var rowsOut []invitationRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+invitationColumns+` FROM invitations ORDER BY created_at DESC, id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[invitationRow])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	invs := make([]domainauth.Invitation, 0, len(rowsOut))
	for _, row := range rowsOut {
		invs = append(invs, row.toDomain())
	}
	return invs, nil
}

// Consume atomically transitions pending → accepted. The guard on the
// current status makes two concurrent consumes resolve to exactly one
// winner; the loser sees false.
func (r *InvitationRepo) Consume(ctx context.Context, id string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE invitations SET status = $1
		WHERE id = $2 AND status = $3`,
		string(domainauth.InvitationAccepted), id, string(domainauth.InvitationPending),
	)
}

// Cancel transitions pending → cancelled.
func (r *InvitationRepo) Cancel(ctx context.Context, id string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE invitations SET status = $1
		WHERE id = $2 AND status = $3`,
		string(domainauth.InvitationCancelled), id, string(domainauth.InvitationPending),
	)
}

// Refresh replaces the token and expiry of a still-pending invitation.
func (r *InvitationRepo) Refresh(ctx context.Context, id, token string, expiresAt time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE invitations SET token = $1, expires_at = $2
		WHERE id = $3 AND status = $4`,
		token, expiresAt, id, string(domainauth.InvitationPending),
	)
}

func (r *InvitationRepo) conditionalUpdate(ctx context.Context, query string, args ...any) (bool, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return affected == 1, nil
}
