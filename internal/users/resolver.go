package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/bcc-code/auth-gateway/internal/serviceerr"
)

type ResolverConfig struct {
	// CreateMissing allows the resolver to create a personal local account
	// for members that have none.
	CreateMissing bool

	// LocalChurchName is the congregation whose youth map to the youth
	// shared login instead of the member one.
	LocalChurchName string

	// YouthAgeLimit is the exclusive upper age bound for the youth shared
	// login.
	YouthAgeLimit int

	// MemberLogin and YouthLogin name the shared fallback accounts.
	MemberLogin string
	YouthLogin  string
}

// Resolver maps a provider-asserted Profile onto a local User. The shared
// fallback accounts trade per-person identity for privacy and simplicity;
// they must exist in the directory before resolution runs (see the
// bootstrap).
type Resolver struct {
	dir Directory
	cfg ResolverConfig
}

func NewResolver(dir Directory, cfg ResolverConfig) *Resolver {
	return &Resolver{dir: dir, cfg: cfg}
}

// Resolve applies the resolution policy, first match wins:
// person UID, e-mail, membership gate, optional account creation, shared
// fallback account.
func (r *Resolver) Resolve(ctx context.Context, profile Profile) (User, error) {
	if profile.PersonUID != "" {
		user, err := r.dir.FindByPersonUID(ctx, profile.PersonUID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, serviceerr.ErrNotFound) {
			return User{}, fmt.Errorf("looking up user by person uid: %w", err)
		}
	}

	if profile.Email != "" {
		user, err := r.dir.FindByEmail(ctx, profile.Email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, serviceerr.ErrNotFound) {
			return User{}, fmt.Errorf("looking up user by email: %w", err)
		}
	}

	if !profile.HasMembership {
		return User{}, serviceerr.ErrNotPermitted
	}

	if r.cfg.CreateMissing {
		user, err := r.dir.Create(ctx, User{
			Login:     profile.PersonUID,
			Email:     profile.Email,
			Name:      profile.Name,
			PersonUID: profile.PersonUID,
		})
		if err != nil {
			return User{}, fmt.Errorf("creating user from claims: %w", err)
		}

		slogctx.Info(ctx, "Created local account from provider claims", "login", user.Login)

		return user, nil
	}

	login := r.cfg.MemberLogin
	if r.isLocalYouth(profile) {
		login = r.cfg.YouthLogin
	}

	user, err := r.dir.FindByLogin(ctx, login)
	if err != nil {
		return User{}, fmt.Errorf("looking up shared account %q: %w", login, err)
	}

	return user, nil
}

func (r *Resolver) isLocalYouth(profile Profile) bool {
	if profile.ChurchName == "" || !strings.EqualFold(profile.ChurchName, r.cfg.LocalChurchName) {
		return false
	}
	if profile.Birthdate.IsZero() {
		return false
	}

	return age(profile.Birthdate, time.Now()) < r.cfg.YouthAgeLimit
}

func age(birthdate, now time.Time) int {
	years := now.Year() - birthdate.Year()
	if now.YearDay() < birthdate.YearDay() {
		years--
	}

	return years
}
