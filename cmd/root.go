package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailvault/internal/config"
	"github.com/teemow/gmailvault/internal/logging"
)

// rootCmd represents the base command for the gmailvault application
var rootCmd = &cobra.Command{
	Use:   "gmailvault",
	Short: "Gmail MCP server with safe attachment downloads",
	Long: `gmailvault exposes a Gmail account to AI assistants over the Model
Context Protocol: message search, message and thread retrieval, profile
lookup, and attachment downloads to the local filesystem.

Run "gmailvault auth" once to grant access, then "gmailvault serve".`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

var configFile string

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gmailvault version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", config.DefaultConfigPath(), "Path to the YAML configuration file")
	flags.String("credentials-file", "", "OAuth client credentials JSON. Can also use GOOGLE_APPLICATION_CREDENTIALS.")
	flags.String("token-file", config.DefaultTokenFile(), "Where the authorized credential set is stored")
	flags.String("download-dir", config.DefaultDownloadDir(), "Default directory for attachment downloads")
	flags.Int("batch-concurrency", config.DefaultBatchConcurrency, "Maximum attachments downloaded in parallel by a batch")
	flags.Float64("requests-per-second", config.DefaultRequestsPerSecond, "Gmail API request rate limit (0 disables throttling)")
	flags.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", config.DefaultLogFormat, "Log format: text or json")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig resolves the configuration for cmd and builds the stderr logger.
// Stdout is reserved for command output and the stdio transport.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
