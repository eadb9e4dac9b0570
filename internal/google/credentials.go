package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OOBRedirectURL is used when the client credentials name no redirect URI.
const OOBRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

// CredentialSet is the persisted form of a delegated token.
// ExpiryDate is in epoch milliseconds; 0 means the expiry is unknown.
type CredentialSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiryDate   int64  `json:"expiry_date"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// NewCredentialSet converts an oauth2 token into its persisted form.
func NewCredentialSet(tok *oauth2.Token) CredentialSet {
	cs := CredentialSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		cs.ExpiryDate = tok.Expiry.UnixMilli()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cs.Scope = scope
	}
	return cs
}

// Token converts the credential set into an oauth2 token.
func (cs CredentialSet) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  cs.AccessToken,
		RefreshToken: cs.RefreshToken,
		TokenType:    cs.TokenType,
	}
	if cs.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(cs.ExpiryDate)
	}
	if cs.Scope != "" {
		tok = tok.WithExtra(map[string]interface{}{"scope": cs.Scope})
	}
	return tok
}

// clientCredentials is the flat client credentials layout
// ({"client_id", "client_secret", "redirect_uris"}).
type clientCredentials struct {
	ClientID     string          `json:"client_id"`
	ClientSecret string          `json:"client_secret"`
	RedirectURIs []string        `json:"redirect_uris"`
	Installed    json.RawMessage `json:"installed"`
	Web          json.RawMessage `json:"web"`
}

// LoadClientConfig reads the OAuth client credentials file at path. Both the
// flat layout and the "installed"/"web" layout downloaded from the Google
// Cloud console are accepted.
func LoadClientConfig(path string, scopes ...string) (*oauth2.Config, error) {
	if path == "" {
		return nil, ErrCredentialsSourceMissing
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrCredentialsSourceMissing, path)
		}
		return nil, fmt.Errorf("failed to read client credentials: %w", err)
	}

	var creds clientCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse client credentials %s: %w", path, err)
	}

	if len(creds.Installed) > 0 || len(creds.Web) > 0 {
		cfg, err := google.ConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse client credentials %s: %w", path, err)
		}
		return cfg, nil
	}

	if creds.ClientID == "" {
		return nil, fmt.Errorf("client credentials %s: missing client_id", path)
	}

	redirect := OOBRedirectURL
	if len(creds.RedirectURIs) > 0 && creds.RedirectURIs[0] != "" {
		redirect = creds.RedirectURIs[0]
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
		Scopes:       scopes,
	}, nil
}
