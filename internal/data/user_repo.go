package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/data/pgxutil"
	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	apperrors "github.com/atelierhq/atelier/internal/errors"
)

// userRow mirrors the users table. allowed_hours keeps the legacy "9-18"
// text form.
type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	AllowedHours *string   `db:"allowed_hours"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) toDomain() (domainauth.UserRecord, error) {
	role, err := domainauth.ParseRole(r.Role)
	if err != nil {
		return domainauth.UserRecord{}, fmt.Errorf("user %s: %w", r.ID, err)
	}
	user := domainauth.UserRecord{
		ID:        r.ID,
		Email:     r.Email,
		Role:      role,
		CreatedAt: r.CreatedAt,
	}
	if r.AllowedHours != nil && strings.TrimSpace(*r.AllowedHours) != "" {
		window, err := domainauth.ParseTimeWindow(*r.AllowedHours)
		if err != nil {
			return domainauth.UserRecord{}, fmt.Errorf("user %s: %w", r.ID, err)
		}
		user.AccessWindow = &window
	}
	return user, nil
}

func windowColumn(w *domainauth.TimeWindow) *string {
	if w == nil {
		return nil
	}
	s := w.String()
	return &s
}

const userColumns = `id, email, role, allowed_hours, created_at`

// UserRepo provides database operations for UserRecords.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUserRepo creates a UserRepo with the real time provider.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a UserRepo with a custom time provider
// (useful for tests).
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{DB: db, timeProvider: tp}
}

// Get retrieves a user by identity id. A missing row maps to
// ErrUserNotFound rather than a failure.
func (r *UserRepo) Get(ctx context.Context, id string) (domainauth.UserRecord, error) {
	var row userRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[userRow])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.UserRecord{}, ErrUserNotFound
		}
		return domainauth.UserRecord{}, apperrors.MapDBError(err)
	}
	return row.toDomain()
}

// Insert creates a user record. The id and email come from the provider
// identity; created_at is stamped here.
func (r *UserRepo) Insert(ctx context.Context, user domainauth.UserRecord) error {
	if user.ID == "" {
		return apperrors.ValidationField("id", "user id is required")
	}
	if !user.Role.IsValid() {
		return apperrors.ValidationField("role", "role must be admin or designer")
	}

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.timeProvider.Now().UTC()
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO users (id, email, role, allowed_hours, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			user.ID, user.Email, string(user.Role), windowColumn(user.AccessWindow), createdAt,
		)
		return err
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// List returns all users ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]domainauth.UserRecord, error) {
	var rowsOut []userRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[userRow])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	users := make([]domainauth.UserRecord, 0, len(rowsOut))
	for _, row := range rowsOut {
		user, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// UpdateRole changes a user's role.
func (r *UserRepo) UpdateRole(ctx context.Context, id string, role domainauth.Role) error {
	if !role.IsValid() {
		return apperrors.ValidationField("role", "role must be admin or designer")
	}
	return r.updateOne(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
}

// UpdateAccessWindow changes a user's access window; nil clears it.
func (r *UserRepo) UpdateAccessWindow(ctx context.Context, id string, window *domainauth.TimeWindow) error {
	return r.updateOne(ctx, `UPDATE users SET allowed_hours = $1 WHERE id = $2`, windowColumn(window), id)
}

func (r *UserRepo) updateOne(ctx context.Context, query string, args ...any) error {
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
		return apperrors.MapDBError(err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
