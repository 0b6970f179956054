package config

import (
	"net"
	"strconv"
)

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetIssuerURL() string
	GetAuthURL() string
	GetTokenURL() string
	GetUserInfoURL() string
	GetScopes() []string
	GetRedirectAddr() string
	GetRedirectHost() string
	GetCredentialFile() string
}

type OAuth struct {
	ClientID string `toml:"client_id"`
	// ClientSecret is only needed for providers that insist on a confidential client.
	ClientSecret   string   `toml:"client_secret"`
	IssuerURL      string   `toml:"issuer_url"`
	AuthURL        string   `toml:"auth_url"`
	TokenURL       string   `toml:"token_url"`
	UserInfoURL    string   `toml:"userinfo_url"`
	Scopes         []string `toml:"scopes"`
	RedirectHost   string   `toml:"redirect_host"`
	RedirectPort   int      `toml:"redirect_port"`
	CredentialFile string   `toml:"credential_file"`
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetClientID() string {
	return o.ClientID
}

func (o OAuth) GetClientSecret() string {
	return o.ClientSecret
}

func (o OAuth) GetIssuerURL() string {
	return o.IssuerURL
}

func (o OAuth) GetAuthURL() string {
	return o.AuthURL
}

func (o OAuth) GetTokenURL() string {
	return o.TokenURL
}

func (o OAuth) GetUserInfoURL() string {
	return o.UserInfoURL
}

func (o OAuth) GetScopes() []string {
	return append([]string(nil), o.Scopes...)
}

// GetRedirectAddr returns the host:port the loopback listener binds.
func (o OAuth) GetRedirectAddr() string {
	return net.JoinHostPort(o.GetRedirectHost(), strconv.Itoa(o.RedirectPort))
}

func (o OAuth) GetRedirectHost() string {
	if o.RedirectHost == "" {
		return "localhost"
	}
	return o.RedirectHost
}

func (o OAuth) GetCredentialFile() string {
	return o.CredentialFile
}
