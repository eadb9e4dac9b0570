package cmd

import (
	"bytes"
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/gmailvault/internal/config"
	"github.com/teemow/gmailvault/internal/gmail/gmailtest"
	"github.com/teemow/gmailvault/internal/google"
)

func newAuthRunner(t *testing.T, tokenURL, input string) (*authRunner, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.CredentialsFile = writeCredentials(t, tokenURL)
	cfg.TokenFile = filepath.Join(t.TempDir(), "tokens.json")
	cfg.RequestsPerSecond = 0

	gmailSrv := gmailtest.NewServer(t)
	out := &bytes.Buffer{}
	return &authRunner{
		cfg:          cfg,
		logger:       discardLogger(),
		in:           strings.NewReader(input),
		out:          out,
		gmailOptions: gmailSrv.ClientOptions(),
	}, out
}

func TestAuthRunner_ExchangesCode(t *testing.T) {
	var exchanges atomic.Int32
	tokenSrv := newTokenServer(t, &exchanges)
	r, out := newAuthRunner(t, tokenSrv.URL, "  the-code  \n")

	require.NoError(t, r.run(context.Background()))

	assert.Equal(t, int32(1), exchanges.Load())
	assert.Contains(t, out.String(), "accounts.google.com")
	assert.Contains(t, out.String(), "access_type=offline")
	assert.Contains(t, out.String(), "Connected to owner@example.com")
	assert.Contains(t, out.String(), "Messages: 1234")
	assert.Contains(t, out.String(), "Threads:  567")

	tok, err := google.NewTokenStore(r.cfg.TokenFile).Load()
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	assert.NotContains(t, out.String(), "new-access")
}

func TestAuthRunner_ConsentStateIsRandom(t *testing.T) {
	var exchanges atomic.Int32
	tokenSrv := newTokenServer(t, &exchanges)

	states := make([]string, 0, 2)
	for range 2 {
		r, out := newAuthRunner(t, tokenSrv.URL, "the-code\n")
		require.NoError(t, r.run(context.Background()))
		states = append(states, consentState(t, out.String()))
	}

	for _, state := range states {
		assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, state)
	}
	assert.NotEqual(t, states[0], states[1])
}

// consentState returns the state parameter of the consent URL printed by run.
func consentState(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "http") {
			continue
		}
		u, err := url.Parse(line)
		require.NoError(t, err)
		return u.Query().Get("state")
	}
	t.Fatalf("no consent URL in output:\n%s", out)
	return ""
}

func TestAuthRunner_ExistingCredentialsAreReused(t *testing.T) {
	var exchanges atomic.Int32
	tokenSrv := newTokenServer(t, &exchanges)
	r, out := newAuthRunner(t, tokenSrv.URL, "")

	require.NoError(t, google.NewTokenStore(r.cfg.TokenFile).Save(&oauth2.Token{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))

	require.NoError(t, r.run(context.Background()))

	assert.Equal(t, int32(0), exchanges.Load())
	assert.Contains(t, out.String(), "Existing credentials are valid.")
	assert.NotContains(t, out.String(), "authorization code")
}

func TestAuthRunner_ForceReauthorizes(t *testing.T) {
	var exchanges atomic.Int32
	tokenSrv := newTokenServer(t, &exchanges)
	r, _ := newAuthRunner(t, tokenSrv.URL, "code\n")
	r.force = true

	require.NoError(t, google.NewTokenStore(r.cfg.TokenFile).Save(&oauth2.Token{
		AccessToken: "stored-access",
		Expiry:      time.Now().Add(time.Hour),
	}))

	require.NoError(t, r.run(context.Background()))
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestAuthRunner_Errors(t *testing.T) {
	var exchanges atomic.Int32
	tokenSrv := newTokenServer(t, &exchanges)

	t.Run("missing credentials source", func(t *testing.T) {
		r, _ := newAuthRunner(t, tokenSrv.URL, "code\n")
		r.cfg.CredentialsFile = ""
		err := r.run(context.Background())
		assert.ErrorIs(t, err, google.ErrCredentialsSourceMissing)
	})

	t.Run("empty code", func(t *testing.T) {
		r, _ := newAuthRunner(t, tokenSrv.URL, "\n")
		assert.Error(t, r.run(context.Background()))
	})

	t.Run("rejected code", func(t *testing.T) {
		r, _ := newAuthRunner(t, tokenSrv.URL, "bad-code\n")
		assert.Error(t, r.run(context.Background()))
		assert.False(t, google.NewTokenStore(r.cfg.TokenFile).Exists())
	})
}

func TestReadCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "abc\n", want: "abc"},
		{name: "no newline", input: "abc", want: "abc"},
		{name: "surrounding space", input: "  4/0Ab-x  \r\n", want: "4/0Ab-x"},
		{name: "blank", input: "   \n", wantErr: true},
		{name: "eof", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readCode(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
