package usersmock

import (
	"context"
	"strconv"
	"strings"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
	"github.com/bcc-code/auth-gateway/internal/users"
)

type DirectoryOption func(*Directory)

type Directory struct {
	byID map[string]users.User

	nextID int

	findErr, createErr error
}

func WithUser(user users.User) DirectoryOption {
	return func(d *Directory) { d.byID[user.ID] = user }
}
func WithFindError(err error) DirectoryOption {
	return func(d *Directory) { d.findErr = err }
}
func WithCreateError(err error) DirectoryOption {
	return func(d *Directory) { d.createErr = err }
}

var _ = users.Directory(&Directory{})

func NewInMemDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{
		byID: make(map[string]users.User),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *Directory) FindByPersonUID(_ context.Context, personUID string) (users.User, error) {
	if d.findErr != nil {
		return users.User{}, d.findErr
	}
	for _, u := range d.byID {
		if u.PersonUID == personUID {
			return u, nil
		}
	}
	return users.User{}, serviceerr.ErrNotFound
}

func (d *Directory) FindByEmail(_ context.Context, email string) (users.User, error) {
	if d.findErr != nil {
		return users.User{}, d.findErr
	}
	for _, u := range d.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return users.User{}, serviceerr.ErrNotFound
}

func (d *Directory) FindByLogin(_ context.Context, login string) (users.User, error) {
	if d.findErr != nil {
		return users.User{}, d.findErr
	}
	for _, u := range d.byID {
		if u.Login == login {
			return u, nil
		}
	}
	return users.User{}, serviceerr.ErrNotFound
}

func (d *Directory) Create(_ context.Context, user users.User) (users.User, error) {
	if d.createErr != nil {
		return users.User{}, d.createErr
	}
	for _, u := range d.byID {
		if u.Login == user.Login {
			return users.User{}, serviceerr.ErrConflict
		}
	}

	d.nextID++
	user.ID = "user-" + strconv.Itoa(d.nextID)
	d.byID[user.ID] = user

	return user, nil
}
