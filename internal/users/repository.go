package users

import "context"

type Directory interface {
	// FindByPersonUID matches on the stable person identifier kept in the
	// account's login field.
	FindByPersonUID(ctx context.Context, personUID string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByLogin(ctx context.Context, login string) (User, error)
	Create(ctx context.Context, user User) (User, error)
}
