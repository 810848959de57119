package userssql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/users"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	login      TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	person_uid TEXT NOT NULL DEFAULT '',
	shared     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS users_person_uid_idx ON users (person_uid) WHERE person_uid <> '';
CREATE INDEX IF NOT EXISTS users_email_idx ON users (LOWER(email)) WHERE email <> '';
`

type Directory struct {
	db *pgxpool.Pool
}

var _ = users.Directory(&Directory{})

func NewDirectory(db *pgxpool.Pool) *Directory {
	return &Directory{
		db: db,
	}
}

// EnsureSchema creates the users table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating users schema: %w", err)
	}

	return nil
}

func (d *Directory) FindByPersonUID(ctx context.Context, personUID string) (users.User, error) {
	if personUID == "" {
		return users.User{}, serviceerr.ErrNotFound
	}

	row := d.db.QueryRow(ctx,
		`SELECT id, login, email, name, person_uid, shared FROM users WHERE person_uid = $1;`,
		personUID)

	return scanUser(row)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (users.User, error) {
	if email == "" {
		return users.User{}, serviceerr.ErrNotFound
	}

	row := d.db.QueryRow(ctx,
		`SELECT id, login, email, name, person_uid, shared FROM users WHERE LOWER(email) = LOWER($1);`,
		email)

	return scanUser(row)
}

func (d *Directory) FindByLogin(ctx context.Context, login string) (users.User, error) {
	row := d.db.QueryRow(ctx,
		`SELECT id, login, email, name, person_uid, shared FROM users WHERE login = $1;`,
		login)

	return scanUser(row)
}

func (d *Directory) Create(ctx context.Context, user users.User) (users.User, error) {
	user.ID = uuid.NewString()

	if _, err := d.db.Exec(ctx,
		`INSERT INTO users (id, login, email, name, person_uid, shared)
			 VALUES ($1, $2, $3, $4, $5, $6);`,
		user.ID, user.Login, user.Email, user.Name, user.PersonUID, user.Shared,
	); err != nil {
		if err, ok := handlePgError(err); ok {
			return users.User{}, err
		}

		return users.User{}, fmt.Errorf("inserting into users: %w", err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (users.User, error) {
	var user users.User
	if err := row.Scan(&user.ID, &user.Login, &user.Email, &user.Name, &user.PersonUID, &user.Shared); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return users.User{}, serviceerr.ErrNotFound
		}

		return users.User{}, fmt.Errorf("scanning user row: %w", err)
	}

	return user, nil
}
