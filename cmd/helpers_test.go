package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeCredentials writes an "installed" client credentials file whose
// token endpoint is tokenURL.
func writeCredentials(t *testing.T, tokenURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	data := fmt.Sprintf(`{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",`+
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":%q,`+
		`"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`, tokenURL)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

// newTokenServer fakes the OAuth token endpoint and counts exchanges.
func newTokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = r.ParseForm()
		if r.Form.Get("code") == "bad-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}
