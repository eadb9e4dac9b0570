package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/teemow/gmailvault/internal/logging"
)

// AuthOptions locate the client credentials and the persisted token.
type AuthOptions struct {
	CredentialsFile string
	TokenFile       string
	Scopes          []string
	Logger          *slog.Logger
}

// Authorize builds a Session from the client credentials and the persisted
// token, and registers the token store as refresh observer.
//
// It returns an error wrapping ErrCredentialsSourceMissing when the client
// credentials are not configured, and one wrapping ErrAuthorizationRequired
// when no token has been persisted yet.
func Authorize(ctx context.Context, opts AuthOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	cfg, err := LoadClientConfig(opts.CredentialsFile, scopes...)
	if err != nil {
		return nil, err
	}

	store := NewTokenStore(opts.TokenFile)
	tok, err := store.Load()
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, fmt.Errorf("%w (no credentials at %s)", ErrAuthorizationRequired, store.Path())
		}
		return nil, err
	}

	session := NewSession(ctx, cfg, tok, logger)
	session.OnRefresh(PersistTo(store, logger))
	return session, nil
}

// PersistTo returns a RefreshHandler that saves refreshed tokens to store.
func PersistTo(store *TokenStore, logger *slog.Logger) RefreshHandler {
	return func(tok *oauth2.Token) error {
		if err := store.Save(tok); err != nil {
			return fmt.Errorf("persisting refreshed token: %w", err)
		}
		logger.Debug("refreshed token persisted", logging.Path(store.Path()))
		return nil
	}
}

// Flow runs the interactive consent exchange and persists the result.
type Flow struct {
	config *oauth2.Config
	store  *TokenStore
}

// NewFlow creates a consent flow for cfg that saves into store.
func NewFlow(cfg *oauth2.Config, store *TokenStore) *Flow {
	return &Flow{config: cfg, store: store}
}

// Config returns the OAuth client configuration.
func (f *Flow) Config() *oauth2.Config {
	return f.config
}

// AuthCodeURL returns the consent URL. Offline access is requested so the
// grant includes a refresh token.
func (f *Flow) AuthCodeURL(state string) string {
	return f.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades a one-time authorization code for a token and persists it.
func (f *Flow) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := f.store.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
