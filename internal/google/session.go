package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/gmailvault/internal/logging"
)

// RefreshHandler observes tokens obtained by an automatic refresh.
type RefreshHandler func(tok *oauth2.Token) error

// Session holds the current delegated token for one mailbox and refreshes it
// on demand. It implements oauth2.TokenSource.
//
// When a refresh produces a new access token, every registered RefreshHandler
// runs exactly once, synchronously on the goroutine that requested the token,
// before the token is handed back. Handlers must not call Token.
type Session struct {
	ctx    context.Context
	config *oauth2.Config
	logger *slog.Logger

	mu        sync.Mutex
	current   *oauth2.Token
	observers []RefreshHandler
	failures  []func(error)
}

// NewSession creates a session for cfg starting from tok (which may be nil
// until SetCredentials is called). ctx is used for token refresh requests.
func NewSession(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ctx:     ctx,
		config:  cfg,
		logger:  logging.WithService(logger, "oauth"),
		current: tok,
	}
}

// SetCredentials replaces the current token without notifying observers.
func (s *Session) SetCredentials(tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = tok
}

// OnRefresh registers an observer for refreshed tokens.
func (s *Session) OnRefresh(handler RefreshHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, handler)
}

// OnRefreshError registers a callback for failed refresh attempts.
func (s *Session) OnRefreshError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, handler)
}

// Token returns a valid access token, refreshing it if it has expired.
// A refresh response that omits the refresh token keeps the previous one.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, ErrAuthorizationRequired
	}
	if s.current.Valid() {
		tok := *s.current
		return &tok, nil
	}
	if s.current.RefreshToken == "" {
		return nil, fmt.Errorf("%w: access token expired and no refresh token is stored", ErrAuthorizationRequired)
	}

	refreshToken := s.current.RefreshToken
	tok, err := s.config.TokenSource(s.ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		s.logger.Warn("access token refresh failed", logging.Err(err))
		for _, fail := range s.failures {
			fail(err)
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			return nil, fmt.Errorf("%w: stored refresh token was rejected: %v", ErrAuthorizationRequired, err)
		}
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	s.current = tok

	s.logger.Debug("access token refreshed",
		slog.String("access_token", logging.SanitizeToken(tok.AccessToken)),
		slog.Time("expiry", tok.Expiry))

	for _, observe := range s.observers {
		if err := observe(tok); err != nil {
			s.logger.Warn("refresh observer failed", logging.Err(err))
		}
	}

	out := *tok
	return &out, nil
}

// HTTPClient returns an HTTP client that authorizes requests with the
// session's token. The client uses HTTP/1.1 to avoid HTTP/2 stream errors
// seen against the Gmail API.
func (s *Session) HTTPClient(ctx context.Context) *http.Client {
	client := oauth2.NewClient(ctx, s)
	if transport, ok := client.Transport.(*oauth2.Transport); ok && transport.Base == nil {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}
	return client
}

var _ oauth2.TokenSource = (*Session)(nil)
