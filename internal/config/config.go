// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Database    Database    `yaml:"database"`
	ValKey      ValKey      `yaml:"valkey"`
	Provider    Provider    `yaml:"provider"`
	Auth        Auth        `yaml:"auth"`
	Users       Users       `yaml:"users"`
	Housekeeper Housekeeper `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix"`
}

// Provider describes the OpenID Connect provider the gateway delegates
// authentication to. Endpoints are configured explicitly rather than
// discovered.
type Provider struct {
	AuthorizationEndpoint string `yaml:"authorizationEndpoint"`
	TokenEndpoint         string `yaml:"tokenEndpoint"`
	UserinfoEndpoint      string `yaml:"userinfoEndpoint"`
	EndSessionEndpoint    string `yaml:"endSessionEndpoint"`

	Audience        string `yaml:"audience"`
	Scope           string `yaml:"scope" default:"openid email profile church"`
	ClaimsNamespace string `yaml:"claimsNamespace" default:"https://login.bcc.no/claims/"`
}

type Auth struct {
	ClientID     commoncfg.SourceRef `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`

	RedirectURI       string `yaml:"redirectURI"`
	DefaultLandingURL string `yaml:"defaultLandingURL" default:"/"`

	StateTTL        time.Duration `yaml:"stateTTL" default:"180s"`
	ExchangeTimeout time.Duration `yaml:"exchangeTimeout" default:"10s"`

	// EncryptionKey enables the encrypted session-store wrapper when set.
	EncryptionKey commoncfg.SourceRef `yaml:"encryptionKey"`

	SessionCookieTemplate CookieTemplate `yaml:"sessionCookie"`
	MarkerCookieName      string         `yaml:"markerCookieName" default:"oidc_has_logged_in"`
}

type Users struct {
	CreateMissing   bool   `yaml:"createMissing"`
	LocalChurchName string `yaml:"localChurchName"`
	YouthAgeLimit   int    `yaml:"youthAgeLimit" default:"18"`
	MemberLogin     string `yaml:"memberLogin" default:"member"`
	YouthLogin      string `yaml:"youthLogin" default:"youth"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"15m"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "none"
	CookieSameSiteLax    CookieSameSite = "lax"
	CookieSameSiteStrict CookieSameSite = "strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name" default:"oidc_token_id"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	MaxAge   int            `yaml:"maxAge"`
	Secure   bool           `yaml:"secure" default:"true"`
	HTTPOnly bool           `yaml:"httpOnly" default:"true"`
	SameSite CookieSameSite `yaml:"sameSite" default:"lax"`
}
