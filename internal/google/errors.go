package google

import "errors"

var (
	// ErrTokenNotFound is returned by TokenStore.Load when no credential file exists.
	ErrTokenNotFound = errors.New("credential file not found")

	// ErrAuthorizationRequired signals that no usable delegated credentials are
	// available and the interactive flow must be run.
	ErrAuthorizationRequired = errors.New("authorization required: run `gmailvault auth` to grant access")

	// ErrCredentialsSourceMissing signals that the OAuth client credentials file
	// is not configured or does not exist.
	ErrCredentialsSourceMissing = errors.New("OAuth client credentials not configured: set GOOGLE_APPLICATION_CREDENTIALS")
)
