package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeClientCredentials(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	data := `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
		`"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}
