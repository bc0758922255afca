// Package config contains all knobs and defaults used to configure topicflow when running as a
// standalone server.
package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/topicflow/topicflow/internal/engine"
	"github.com/topicflow/topicflow/pkg/external"
)

const (
	DefaultMaxConcurrentTasks  = engine.DefaultMaxConcurrentTasks
	DefaultMaxRounds           = engine.DefaultMaxRounds
	DefaultMergeRetries        = engine.DefaultMergeRetries
	DefaultPipelineCacheSize   = 10000
	DefaultMaxConcurrentReads  = 64
	DefaultRequestBodyLimit    = 1 << 20 // 1 MiB
	DefaultHTTPUpstreamTimeout = 30 * time.Second
)

var (
	supportedEngines     = []string{"memory", "sqlite", "postgres", "mysql"}
	supportedAuthMethods = []string{"none", "jwt"}
	supportedLogLevels   = []string{"none", "debug", "info", "warn", "error", "panic", "fatal"}
)

type DatastoreMetricsConfig struct {
	// Enabled enables export of the Datastore metrics.
	Enabled bool
}

// DatastoreConfig defines server configurations for datastore specific settings.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'memory', 'sqlite', 'postgres', 'mysql')
	Engine   string
	URI      string
	Username string
	Password string

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// MaxConcurrentReads bounds the row scans in flight across all tasks.
	MaxConcurrentReads uint32

	// Metrics is configuration for the Datastore metrics.
	Metrics DatastoreMetricsConfig
}

// HTTPConfig defines server configurations for HTTP server specific settings.
type HTTPConfig struct {
	Addr string
	TLS  *TLSConfig

	// UpstreamTimeout bounds the handling of one request, cascade included.
	UpstreamTimeout time.Duration

	// RequestBodyLimit is the maximum size in bytes of a posted row.
	RequestBodyLimit int64

	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
}

// TLSConfig defines configuration specific to Transport Layer Security (TLS) settings.
type TLSConfig struct {
	Enabled  bool
	CertPath string `mapstructure:"cert"`
	KeyPath  string `mapstructure:"key"`
}

// AuthnConfig defines server configurations for authentication specific settings.
type AuthnConfig struct {
	// Method is the authentication method that should be enforced (e.g. 'none', 'jwt')
	Method          string
	*AuthnJWTConfig `mapstructure:"jwt"`
}

// AuthnJWTConfig defines configurations for the 'jwt' method of authentication. Tokens are
// HS256 signed with Secret.
type AuthnJWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// LogConfig defines server configurations for log specific settings. For production we
// recommend using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// MetricConfig defines configurations for serving custom metrics.
type MetricConfig struct {
	Enabled bool
	Addr    string
}

// MetaConfig points at the directory of topic and pipeline definitions.
type MetaConfig struct {
	Dir string
	// Watch reloads a tenant when its files change.
	Watch bool
}

// EngineConfig bounds the pipeline execution.
type EngineConfig struct {
	MaxConcurrentTasks int
	MaxRounds          int
	MergeRetries       uint64
}

type PipelineCacheConfig struct {
	// MaxSize is the number of compiled pipelines kept across tenants.
	MaxSize int64
}

// VaultConfig locates the AES key in a Vault KV v2 secret.
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
	Path    string
	Field   string
}

// EncryptionConfig configures the factor encryption methods. The AES method is only available
// when a key is configured, either inline or through Vault.
type EncryptionConfig struct {
	AESKey string `mapstructure:"aesKey"`
	Vault  VaultConfig
}

// MonitorConfig selects where monitor logs go besides the log output and metrics.
type MonitorConfig struct {
	// Store appends monitor logs to the datastore.
	Store bool
}

type Config struct {
	Datastore     DatastoreConfig
	HTTP          HTTPConfig
	Authn         AuthnConfig
	Log           LogConfig
	Trace         TraceConfig
	Metrics       MetricConfig
	Meta          MetaConfig
	Engine        EngineConfig
	PipelineCache PipelineCacheConfig
	Encryption    EncryptionConfig
	Monitor       MonitorConfig

	// Webhooks are the external writers, keyed by the id pipelines refer to them with.
	Webhooks map[string]external.WebhookConfig
}

func (cfg *Config) Verify() error {
	if !slices.Contains(supportedEngines, cfg.Datastore.Engine) {
		return fmt.Errorf("config 'datastore.engine' must be one of %v", supportedEngines)
	}
	if cfg.Datastore.Engine != "memory" && cfg.Datastore.URI == "" {
		return fmt.Errorf("config 'datastore.uri' must be set for engine '%s'", cfg.Datastore.Engine)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if !slices.Contains(supportedLogLevels, cfg.Log.Level) {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return fmt.Errorf("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.HTTP.TLS != nil && cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.CertPath == "" || cfg.HTTP.TLS.KeyPath == "" {
			return errors.New("'http.tls.cert' and 'http.tls.key' configs must be set")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == cfg.HTTP.Addr {
		return fmt.Errorf("config 'metrics.addr' (%s) cannot be the same as 'http.addr'", cfg.Metrics.Addr)
	}

	if !slices.Contains(supportedAuthMethods, cfg.Authn.Method) {
		return fmt.Errorf("config 'authn.method' must be one of %v", supportedAuthMethods)
	}
	if cfg.Authn.Method == "jwt" && (cfg.Authn.AuthnJWTConfig == nil || cfg.Authn.Secret == "") {
		return errors.New("config 'authn.jwt.secret' must be set for the 'jwt' authn method")
	}

	if cfg.Meta.Dir == "" {
		return errors.New("config 'meta.dir' must be set")
	}

	if cfg.Engine.MaxConcurrentTasks <= 0 {
		return errors.New("config 'engine.maxConcurrentTasks' must be a positive integer")
	}
	if cfg.Engine.MaxRounds <= 0 {
		return errors.New("config 'engine.maxRounds' must be a positive integer")
	}
	if cfg.PipelineCache.MaxSize <= 0 {
		return errors.New("config 'pipelineCache.maxSize' must be a positive integer")
	}

	vault := cfg.Encryption.Vault
	if vault.Address != "" {
		if cfg.Encryption.AESKey != "" {
			return errors.New("configs 'encryption.aesKey' and 'encryption.vault' are mutually exclusive")
		}
		if vault.Token == "" || vault.Path == "" || vault.Field == "" {
			return errors.New("'encryption.vault.token', 'encryption.vault.path' and 'encryption.vault.field' configs must be set")
		}
	}

	for id, webhook := range cfg.Webhooks {
		if webhook.URL == "" {
			return fmt.Errorf("config 'webhooks.%s.url' must be set", id)
		}
	}

	return nil
}

// DefaultConfig is the topicflow server default configurations.
func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:             "memory",
			MaxIdleConns:       10,
			MaxOpenConns:       30,
			MaxConcurrentReads: DefaultMaxConcurrentReads,
		},
		HTTP: HTTPConfig{
			Addr:               "0.0.0.0:8080",
			TLS:                &TLSConfig{Enabled: false},
			UpstreamTimeout:    DefaultHTTPUpstreamTimeout,
			RequestBodyLimit:   DefaultRequestBodyLimit,
			CORSAllowedOrigins: []string{"*"},
			CORSAllowedHeaders: []string{"*"},
		},
		Authn: AuthnConfig{
			Method:         "none",
			AuthnJWTConfig: &AuthnJWTConfig{},
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				TLS: OTLPTraceTLSConfig{
					Enabled: false,
				},
			},
			SampleRatio: 0.2,
			ServiceName: "topicflow",
		},
		Metrics: MetricConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
		Meta: MetaConfig{
			Dir:   "./meta",
			Watch: true,
		},
		Engine: EngineConfig{
			MaxConcurrentTasks: DefaultMaxConcurrentTasks,
			MaxRounds:          DefaultMaxRounds,
			MergeRetries:       DefaultMergeRetries,
		},
		PipelineCache: PipelineCacheConfig{
			MaxSize: DefaultPipelineCacheSize,
		},
		Encryption: EncryptionConfig{
			Vault: VaultConfig{Mount: "secret"},
		},
		Webhooks: map[string]external.WebhookConfig{},
	}
}

// MustDefaultConfig returns default server config with metrics and the file watch turned off.
func MustDefaultConfig() *Config {
	config := DefaultConfig()

	config.Metrics.Enabled = false
	config.Meta.Watch = false

	return config
}

// MustDefaultConfigWithRandomPorts returns default server config but with a random port for
// the http address and with metrics turned off.
// This function may panic if somehow a random port cannot be chosen.
func MustDefaultConfigWithRandomPorts() *Config {
	config := MustDefaultConfig()

	httpPort, httpPortReleaser := TCPRandomPort()
	defer httpPortReleaser()

	config.HTTP.Addr = fmt.Sprintf("0.0.0.0:%d", httpPort)

	return config
}

// TCPRandomPort tries to find a random TCP Port. If it can't find one, it panics. Else, it returns the port and a function that releases the port.
// It is the responsibility of the caller to call the release function right before trying to listen on the given port.
func TCPRandomPort() (int, func()) {
	l, err := net.Listen("tcp", "")
	if err != nil {
		panic(err)
	}
	return l.Addr().(*net.TCPAddr).Port, func() {
		l.Close()
	}
}
