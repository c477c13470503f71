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

	Storage  Storage  `yaml:"storage"`
	ValKey   ValKey   `yaml:"valkey"`
	Backend  Backend  `yaml:"backend"`
	Callback Callback `yaml:"callback"`
	Signin   Signin   `yaml:"signin"`
	Routes   Routes   `yaml:"routes"`
	Cookies  Cookies  `yaml:"cookies"`

	// StateSecret keys the anti-replay state tokens issued on retry.
	StateSecret commoncfg.SourceRef `yaml:"stateSecret"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type StorageBackend string

const (
	StorageBackendValKey StorageBackend = "valkey"
	StorageBackendMemory StorageBackend = "memory"
)

type Storage struct {
	Backend StorageBackend `yaml:"backend" default:"valkey"`
	TTL     time.Duration  `yaml:"ttl" default:"720h"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"auth-callback"`

	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Backend is the REST backend completing the sign-in.
type Backend struct {
	BaseURL string        `yaml:"baseURL" default:"http://localhost:8000"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

type Callback struct {
	Provider string `yaml:"provider" default:"google"`
	// RedirectURI is sent with the code exchange and must match the URI the
	// provider redirected to.
	RedirectURI     string        `yaml:"redirectURI" default:"http://localhost:8080/auth/callback"`
	MaxRetries      int           `yaml:"maxRetries" default:"3"`
	RetryDelay      time.Duration `yaml:"retryDelay" default:"1s"`
	InitialDelay    time.Duration `yaml:"initialDelay" default:"2s"`
	PopupCloseDelay time.Duration `yaml:"popupCloseDelay" default:"500ms"`
}

// Signin describes the fresh sign-in request issued on retry.
type Signin struct {
	Path              string        `yaml:"path" default:"/auth/unified/google/signin/"`
	LoginContext      string        `yaml:"loginContext" default:"login"`
	ReturnTo          string        `yaml:"returnTo" default:"/dashboard"`
	ErrorCallback     string        `yaml:"errorCallback" default:"/auth/error"`
	AppVersion        string        `yaml:"appVersion" default:"web"`
	Locale            string        `yaml:"locale" default:"en"`
	AccessType        string        `yaml:"accessType" default:"offline"`
	Prompt            string        `yaml:"prompt" default:"consent"`
	CountdownTicks    int           `yaml:"countdownTicks" default:"5"`
	CountdownInterval time.Duration `yaml:"countdownInterval" default:"1s"`
}

type Routes struct {
	Login     string `yaml:"login" default:"/login"`
	Signup    string `yaml:"signup" default:"/signup"`
	Dashboard string `yaml:"dashboard" default:"/dashboard"`
	// OpenerOrigin is the origin popup results are posted to.
	OpenerOrigin string `yaml:"openerOrigin" default:"http://localhost:3000"`
}

type Cookies struct {
	Client CookieTemplate `yaml:"client"`
	Popup  CookieTemplate `yaml:"popup"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure"`
	SameSite CookieSameSite `yaml:"sameSite" default:"Lax"`
	HTTPOnly bool           `yaml:"httpOnly"`
}

// ClientCookieName and PopupCookieName apply when the templates leave the
// name empty.
const (
	ClientCookieName = "auth_client"
	PopupCookieName  = "auth_popup"
)

func (c Cookies) ClientName() string {
	if c.Client.Name != "" {
		return c.Client.Name
	}

	return ClientCookieName
}

func (c Cookies) PopupName() string {
	if c.Popup.Name != "" {
		return c.Popup.Name
	}

	return PopupCookieName
}
