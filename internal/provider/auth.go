package provider

import (
	"encoding/base64"
)

// AuthType tags the credential variant a provider uses.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer_token"
	AuthBasic  AuthType = "basic_auth"
	AuthOAuth2 AuthType = "oauth2"
)

// AuthConfig is the tagged credential set for one provider.
type AuthConfig struct {
	Type         AuthType `yaml:"type" json:"type"`
	APIKey       string   `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Token        string   `yaml:"token,omitempty" json:"token,omitempty"`
	Username     string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password     string   `yaml:"password,omitempty" json:"password,omitempty"`
	ClientID     string   `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	AccessToken  string   `yaml:"access_token,omitempty" json:"access_token,omitempty"`
}

// Valid reports whether the configured variant carries usable credentials.
func (a AuthConfig) Valid() bool {
	switch a.Type {
	case AuthNone, "":
		return true
	case AuthAPIKey:
		return a.APIKey != ""
	case AuthBearer:
		return a.Token != ""
	case AuthBasic:
		return a.Username != "" && a.Password != ""
	case AuthOAuth2:
		return a.ClientID != "" && a.ClientSecret != ""
	default:
		return false
	}
}

// Headers materializes the HTTP headers for the configured variant.
func (a AuthConfig) Headers() map[string]string {
	h := make(map[string]string)
	switch a.Type {
	case AuthAPIKey:
		if a.APIKey != "" {
			h["X-API-Key"] = a.APIKey
		}
	case AuthBearer:
		if a.Token != "" {
			h["Authorization"] = "Bearer " + a.Token
		}
	case AuthBasic:
		if a.Username != "" || a.Password != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
			h["Authorization"] = "Basic " + cred
		}
	case AuthOAuth2:
		if a.AccessToken != "" {
			h["Authorization"] = "Bearer " + a.AccessToken
		}
	}
	return h
}
