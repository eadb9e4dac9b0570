package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys. Flags named with dashes (token-file) bind to the
// matching underscore key (token_file).
const (
	KeyCredentialsFile   = "credentials_file"
	KeyTokenFile         = "token_file"
	KeyDownloadDir       = "download_dir"
	KeyBatchConcurrency  = "batch_concurrency"
	KeyRequestsPerSecond = "requests_per_second"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"

	KeyTelemetryEnabled         = "telemetry.enabled"
	KeyTelemetryServiceName     = "telemetry.service_name"
	KeyTelemetryMetricsExporter = "telemetry.metrics_exporter"
	KeyTelemetryTracingExporter = "telemetry.tracing_exporter"
	KeyTelemetryOTLPEndpoint    = "telemetry.otlp_endpoint"
	KeyTelemetryOTLPInsecure    = "telemetry.otlp_insecure"
	KeyTelemetrySamplingRate    = "telemetry.sampling_rate"
)

const (
	// EnvPrefix is prepended to every configuration key when read from the environment.
	EnvPrefix = "GMAILVAULT"

	// CredentialsEnvVar names the OAuth client credentials file, as used by Google tooling.
	CredentialsEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

	DefaultBatchConcurrency  = 1
	DefaultRequestsPerSecond = 10.0
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"

	DefaultServiceName     = "gmailvault"
	DefaultMetricsExporter = "prometheus"
	DefaultTracingExporter = "none"
	DefaultSamplingRate    = 0.1
)

// telemetryEnv lists the standard OpenTelemetry variables honored after the
// GMAILVAULT_ prefixed ones.
var telemetryEnv = map[string][]string{
	KeyTelemetryServiceName:     {"OTEL_SERVICE_NAME"},
	KeyTelemetryOTLPEndpoint:    {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	KeyTelemetryOTLPInsecure:    {"OTEL_EXPORTER_OTLP_INSECURE"},
	KeyTelemetrySamplingRate:    {"OTEL_TRACES_SAMPLER_ARG"},
}

var knownKeys = []string{
	KeyCredentialsFile,
	KeyTokenFile,
	KeyDownloadDir,
	KeyBatchConcurrency,
	KeyRequestsPerSecond,
	KeyLogLevel,
	KeyLogFormat,
}

// Config is the resolved gmailvault configuration.
type Config struct {
	// CredentialsFile is the OAuth client credentials JSON (client id and secret).
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// TokenFile is where the delegated credential set is persisted.
	TokenFile string `mapstructure:"token_file" yaml:"token_file"`

	// DownloadDir is the default destination for attachment downloads.
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"`

	// BatchConcurrency bounds in-flight items of a batch download. 1 is sequential.
	BatchConcurrency int `mapstructure:"batch_concurrency" yaml:"batch_concurrency"`

	// RequestsPerSecond throttles Gmail API calls. 0 disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// TelemetryConfig selects the metrics and trace exporters.
type TelemetryConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName     string `mapstructure:"service_name" yaml:"service_name"`
	MetricsExporter string `mapstructure:"metrics_exporter" yaml:"metrics_exporter"`
	TracingExporter string `mapstructure:"tracing_exporter" yaml:"tracing_exporter"`

	// OTLPEndpoint is host:port, without a scheme.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`

	// SamplingRate is the ratio of traces kept, 0 to 1.
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`
}

// DefaultConfigPath returns ~/.config/gmailvault/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "gmailvault", "config.yaml")
}

// DefaultTokenFile returns ~/.gmail-mcp/tokens.json.
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gmail-mcp", "tokens.json")
	}
	return filepath.Join(home, ".gmail-mcp", "tokens.json")
}

// DefaultDownloadDir returns the user's Downloads directory.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

// Default returns a configuration populated with built-in defaults only.
func Default() *Config {
	return &Config{
		TokenFile:         DefaultTokenFile(),
		DownloadDir:       DefaultDownloadDir(),
		BatchConcurrency:  DefaultBatchConcurrency,
		RequestsPerSecond: DefaultRequestsPerSecond,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		Telemetry: TelemetryConfig{
			Enabled:         true,
			ServiceName:     DefaultServiceName,
			MetricsExporter: DefaultMetricsExporter,
			TracingExporter: DefaultTracingExporter,
			SamplingRate:    DefaultSamplingRate,
		},
	}
}

// Load merges the YAML file at path, the environment and any changed flags
// in flags (may be nil) over the defaults. A missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault(KeyTokenFile, def.TokenFile)
	v.SetDefault(KeyDownloadDir, def.DownloadDir)
	v.SetDefault(KeyBatchConcurrency, def.BatchConcurrency)
	v.SetDefault(KeyRequestsPerSecond, def.RequestsPerSecond)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyLogFormat, def.LogFormat)
	v.SetDefault(KeyTelemetryEnabled, def.Telemetry.Enabled)
	v.SetDefault(KeyTelemetryServiceName, def.Telemetry.ServiceName)
	v.SetDefault(KeyTelemetryMetricsExporter, def.Telemetry.MetricsExporter)
	v.SetDefault(KeyTelemetryTracingExporter, def.Telemetry.TracingExporter)
	v.SetDefault(KeyTelemetryOTLPEndpoint, def.Telemetry.OTLPEndpoint)
	v.SetDefault(KeyTelemetryOTLPInsecure, def.Telemetry.OTLPInsecure)
	v.SetDefault(KeyTelemetrySamplingRate, def.Telemetry.SamplingRate)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyCredentialsFile, envName(KeyCredentialsFile), CredentialsEnvVar); err != nil {
		return nil, fmt.Errorf("binding %s: %w", KeyCredentialsFile, err)
	}
	for key, names := range telemetryEnv {
		if err := v.BindEnv(append([]string{key, envName(key)}, names...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.CredentialsFile = ExpandHome(cfg.CredentialsFile)
	cfg.TokenFile = ExpandHome(cfg.TokenFile)
	cfg.DownloadDir = ExpandHome(cfg.DownloadDir)

	return cfg, nil
}

// envName returns the GMAILVAULT_ variable for key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, key := range knownKeys {
		f := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", f.Name, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.TokenFile == "" {
		return fmt.Errorf("%s must not be empty", KeyTokenFile)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("%s must not be empty", KeyDownloadDir)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyBatchConcurrency, c.BatchConcurrency)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%s must not be negative, got %g", KeyRequestsPerSecond, c.RequestsPerSecond)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, c.LogFormat)
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %g", KeyTelemetrySamplingRate, c.Telemetry.SamplingRate)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
