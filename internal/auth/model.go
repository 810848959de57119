package auth

import (
	"time"

	"github.com/bcc-code/auth-gateway/internal/users"
	"github.com/bcc-code/auth-gateway/pkg/gate"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TrustedClaims holds identity claims taken from an ID token the gateway
// received first-hand from the token endpoint, over TLS and authenticated
// with the client secret. Only the code-exchange path constructs this type;
// claims decoded from tokens supplied by anyone else never become
// TrustedClaims.
type TrustedClaims struct {
	PersonUID     string
	Email         string
	Name          string
	ChurchName    string
	HasMembership bool
	Birthdate     time.Time

	SessionID string
	Expiry    time.Time
}

func (c TrustedClaims) Profile() users.Profile {
	return users.Profile{
		PersonUID:     c.PersonUID,
		Email:         c.Email,
		Name:          c.Name,
		ChurchName:    c.ChurchName,
		HasMembership: c.HasMembership,
		Birthdate:     c.Birthdate,
	}
}

// LoginResult is what a completed code exchange hands to the HTTP layer.
type LoginResult struct {
	TokenID   string
	ReturnURL string
	Expiry    time.Time
	User      users.User
	Level     gate.Level
}
