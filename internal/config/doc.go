// Package config loads gmailvault settings.
//
// Settings are merged with spf13/viper from, in order of precedence:
// explicitly set command-line flags, GMAILVAULT_* environment variables,
// the optional YAML file at ~/.config/gmailvault/config.yaml, and built-in
// defaults. The OAuth client credentials path additionally falls back to
// GOOGLE_APPLICATION_CREDENTIALS.
package config
