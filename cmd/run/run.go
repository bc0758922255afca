// Package run contains the command to run a topicflow server.
package run

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/topicflow/topicflow/internal/build"
	"github.com/topicflow/topicflow/pkg/encryption"
	"github.com/topicflow/topicflow/pkg/external"
	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/meta"
	metafile "github.com/topicflow/topicflow/pkg/meta/file"
	"github.com/topicflow/topicflow/pkg/monitor"
	"github.com/topicflow/topicflow/pkg/principal"
	"github.com/topicflow/topicflow/pkg/server"
	serverconfig "github.com/topicflow/topicflow/pkg/server/config"
	"github.com/topicflow/topicflow/pkg/storage"
	"github.com/topicflow/topicflow/pkg/storage/memory"
	"github.com/topicflow/topicflow/pkg/storage/mysql"
	"github.com/topicflow/topicflow/pkg/storage/postgres"
	"github.com/topicflow/topicflow/pkg/storage/sqlcommon"
	"github.com/topicflow/topicflow/pkg/storage/sqlite"
	"github.com/topicflow/topicflow/pkg/telemetry"
)

const (
	datastoreEngineFlag = "datastore-engine"
	datastoreURIFlag    = "datastore-uri"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the topicflow server",
		Long:  "Run the topicflow server: accept topic rows over HTTP and run the pipelines they trigger.",
		Run:   run,
		Args:  cobra.NoArgs,
	}

	defaultConfig := serverconfig.DefaultConfig()
	flags := cmd.Flags()

	flags.String("http-addr", defaultConfig.HTTP.Addr, "the host:port address to serve the HTTP server on")

	flags.Bool("http-tls-enabled", defaultConfig.HTTP.TLS.Enabled, "enable/disable transport layer security (TLS)")

	flags.String("http-tls-cert", defaultConfig.HTTP.TLS.CertPath, "the (absolute) file path of the certificate to use for the TLS connection")

	flags.String("http-tls-key", defaultConfig.HTTP.TLS.KeyPath, "the (absolute) file path of the TLS key that should be used for the TLS connection")

	cmd.MarkFlagsRequiredTogether("http-tls-enabled", "http-tls-cert", "http-tls-key")

	flags.Duration("http-upstream-timeout", defaultConfig.HTTP.UpstreamTimeout, "the maximum duration of one request, pipeline cascade included")

	flags.Int64("http-request-body-limit", defaultConfig.HTTP.RequestBodyLimit, "the maximum size in bytes of a posted row")

	flags.StringSlice("http-cors-allowed-origins", defaultConfig.HTTP.CORSAllowedOrigins, "specifies the CORS allowed origins")

	flags.StringSlice("http-cors-allowed-headers", defaultConfig.HTTP.CORSAllowedHeaders, "specifies the CORS allowed headers")

	flags.String("authn-method", defaultConfig.Authn.Method, "the authentication method to use ('none' reads the tenant from the X-Tenant-ID header, 'jwt' from a bearer token)")

	flags.String("authn-jwt-secret", defaultConfig.Authn.Secret, "the HS256 secret the bearer tokens are signed with")

	flags.String("authn-jwt-issuer", defaultConfig.Authn.Issuer, "the expected issuer of the bearer tokens")

	flags.String("authn-jwt-audience", defaultConfig.Authn.Audience, "the expected audience of the bearer tokens")

	flags.String(datastoreEngineFlag, defaultConfig.Datastore.Engine, "the datastore engine that will be used for persistence")

	flags.String(datastoreURIFlag, defaultConfig.Datastore.URI, "the connection uri to use to connect to the datastore (for any engine other than 'memory')")

	flags.String("datastore-username", "", "the connection username to use to connect to the datastore (overwrites any username provided in the connection uri)")

	flags.String("datastore-password", "", "the connection password to use to connect to the datastore (overwrites any password provided in the connection uri)")

	flags.Int("datastore-max-open-conns", defaultConfig.Datastore.MaxOpenConns, "the maximum number of open connections to the datastore")

	flags.Int("datastore-max-idle-conns", defaultConfig.Datastore.MaxIdleConns, "the maximum number of connections to the datastore in the idle connection pool")

	flags.Duration("datastore-conn-max-idle-time", defaultConfig.Datastore.ConnMaxIdleTime, "the maximum amount of time a connection to the datastore may be idle")

	flags.Duration("datastore-conn-max-lifetime", defaultConfig.Datastore.ConnMaxLifetime, "the maximum amount of time a connection to the datastore may be reused")

	flags.Uint32("datastore-max-concurrent-reads", defaultConfig.Datastore.MaxConcurrentReads, "the maximum number of row scans in flight across all pipeline tasks")

	flags.Bool("datastore-metrics-enabled", defaultConfig.Datastore.Metrics.Enabled, "enable/disable sql metrics")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "the timestamp format to use for log messages")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces.")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")

	flags.String("meta-dir", defaultConfig.Meta.Dir, "the directory holding <tenant>/topics and <tenant>/pipelines YAML documents")

	flags.Bool("meta-watch", defaultConfig.Meta.Watch, "reload a tenant when its meta files change")

	flags.Int("engine-max-concurrent-tasks", defaultConfig.Engine.MaxConcurrentTasks, "the maximum number of pipeline tasks running at once within a round")

	flags.Int("engine-max-rounds", defaultConfig.Engine.MaxRounds, "the maximum number of rounds of one cascade")

	flags.Uint64("engine-merge-retries", defaultConfig.Engine.MergeRetries, "the number of times a merge is retried on a version conflict")

	flags.Int64("pipeline-cache-max-size", defaultConfig.PipelineCache.MaxSize, "the number of compiled pipelines kept in memory")

	flags.String("encryption-aes-key", defaultConfig.Encryption.AESKey, "the key of the AES-256-GCM factor encryption")

	flags.String("encryption-vault-address", defaultConfig.Encryption.Vault.Address, "the address of the Vault server holding the AES key")

	flags.String("encryption-vault-token", defaultConfig.Encryption.Vault.Token, "the Vault token")

	flags.String("encryption-vault-mount", defaultConfig.Encryption.Vault.Mount, "the KV v2 mount of the secret holding the AES key")

	flags.String("encryption-vault-path", defaultConfig.Encryption.Vault.Path, "the path of the secret holding the AES key")

	flags.String("encryption-vault-field", defaultConfig.Encryption.Vault.Field, "the field of the secret holding the AES key")

	flags.Bool("monitor-store", defaultConfig.Monitor.Store, "append pipeline monitor logs to the datastore")

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlagsFunc(flags)

	return cmd
}

// ReadConfig returns the topicflow server configuration based on the values provided in the server's 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/topicflow', '$HOME/.topicflow', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*serverconfig.Config, error) {
	config := serverconfig.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load server config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}

	return config, nil
}

func run(_ *cobra.Command, _ []string) {
	config, err := ReadConfig()
	if err != nil {
		panic(err)
	}

	if err := config.Verify(); err != nil {
		panic(err)
	}

	logger := logger.MustNewLogger(config.Log.Format, config.Log.Level, config.Log.TimestampFormat)
	serverCtx := &ServerContext{Logger: logger}
	if err := serverCtx.Run(context.Background(), config); err != nil {
		panic(err)
	}
}

type ServerContext struct {
	Logger logger.Logger
}

// telemetryConfig returns the function that must be called to shut down tracing.
// The context provided to this function should be error-free, or shut down will be incomplete.
func (s *ServerContext) telemetryConfig(config *serverconfig.Config) func() error {
	if config.Trace.Enabled {
		s.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s', tls: %t", config.Trace.SampleRatio, config.Trace.OTLP.Endpoint, config.Trace.OTLP.TLS.Enabled))

		tp := telemetry.MustNewTracerProvider(
			telemetry.WithOTLPEndpoint(config.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(config.Trace.ServiceName),
			telemetry.WithSamplingRatio(config.Trace.SampleRatio),
			telemetry.WithInsecure(!config.Trace.OTLP.TLS.Enabled),
		)
		return func() error {
			// the batch span processor may take up to 5 seconds to flush
			ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
			defer cancel()
			return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
		}
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
	return func() error {
		return nil
	}
}

func (s *ServerContext) datastoreConfig(config *serverconfig.Config) (storage.Datastore, error) {
	datastoreOptions := []sqlcommon.DatastoreOption{
		sqlcommon.WithUsername(config.Datastore.Username),
		sqlcommon.WithPassword(config.Datastore.Password),
		sqlcommon.WithLogger(s.Logger),
		sqlcommon.WithMaxOpenConns(config.Datastore.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(config.Datastore.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(config.Datastore.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(config.Datastore.ConnMaxLifetime),
	}

	if config.Datastore.Metrics.Enabled {
		datastoreOptions = append(datastoreOptions, sqlcommon.WithMetrics())
	}

	dsCfg := sqlcommon.NewConfig(datastoreOptions...)

	var datastore storage.Datastore
	var err error
	switch config.Datastore.Engine {
	case "memory":
		datastore = memory.New()
	case "mysql":
		datastore, err = mysql.New(config.Datastore.URI, dsCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize mysql datastore: %w", err)
		}
	case "postgres":
		datastore, err = postgres.New(config.Datastore.URI, dsCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres datastore: %w", err)
		}
	case "sqlite":
		datastore, err = sqlite.New(config.Datastore.URI, dsCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite datastore: %w", err)
		}
	default:
		return nil, fmt.Errorf("storage engine '%s' is unsupported", config.Datastore.Engine)
	}

	s.Logger.Info(fmt.Sprintf("using '%v' storage engine", config.Datastore.Engine))

	return datastore, nil
}

func (s *ServerContext) authenticatorConfig(config *serverconfig.Config) (principal.Authenticator, error) {
	switch config.Authn.Method {
	case "none":
		s.Logger.Warn("authentication is disabled, the tenant is read from the X-Tenant-ID header")
		return principal.HeaderAuthenticator{}, nil
	case "jwt":
		s.Logger.Info("using 'jwt' authentication")
		authenticator, err := principal.NewJWTAuthenticator(config.Authn.Secret, config.Authn.Issuer, config.Authn.Audience)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize authenticator: %w", err)
		}
		return authenticator, nil
	default:
		return nil, fmt.Errorf("unsupported authentication method '%v'", config.Authn.Method)
	}
}

func (s *ServerContext) encryptionConfig(ctx context.Context, config *serverconfig.Config) (*encryption.Registry, error) {
	var provider encryption.KeyProvider
	switch {
	case config.Encryption.Vault.Address != "":
		vault := config.Encryption.Vault
		key, err := encryption.NewVaultKey(vault.Address, vault.Token, vault.Mount, vault.Path, vault.Field)
		if err != nil {
			return nil, err
		}
		provider = key
		s.Logger.Info(fmt.Sprintf("reading the AES key from vault '%s'", vault.Address))
	case config.Encryption.AESKey != "":
		provider = encryption.StaticKey(config.Encryption.AESKey)
	default:
		s.Logger.Warn("no AES key configured, factors encrypted with AES will be rejected")
		return encryption.NewDefaultRegistry("")
	}

	key, err := provider.Key(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read the AES key: %w", err)
	}
	return encryption.NewDefaultRegistry(key)
}

func (s *ServerContext) externalConfig(config *serverconfig.Config) (*external.Registry, error) {
	registry := external.NewRegistry()
	for id, cfg := range config.Webhooks {
		webhook, err := external.NewWebhook(cfg, s.Logger)
		if err != nil {
			return nil, fmt.Errorf("webhook '%s': %w", id, err)
		}
		registry.Register(id, webhook)
	}
	if ids := registry.IDs(); len(ids) > 0 {
		s.Logger.Info("external writers registered", zap.Strings("ids", ids))
	}
	return registry, nil
}

func (s *ServerContext) monitorConfig(config *serverconfig.Config, datastore storage.Datastore) monitor.Sink {
	sinks := []monitor.Sink{monitor.NewLoggerSink(s.Logger)}
	if config.Metrics.Enabled {
		sinks = append(sinks, monitor.NewPrometheusSink())
	}
	if config.Monitor.Store {
		sinks = append(sinks, monitor.NewStorageSink(datastore, s.Logger))
	}
	return monitor.NewMultiSink(s.Logger, sinks...)
}

func (s *ServerContext) runHTTPServer(g *errgroup.Group, config *serverconfig.Config, svr *server.Server, authenticator principal.Authenticator) (*http.Server, error) {
	handler := svr.Handler(server.HandlerConfig{
		Authenticator:      authenticator,
		RequestBodyLimit:   config.HTTP.RequestBodyLimit,
		CORSAllowedOrigins: config.HTTP.CORSAllowedOrigins,
		CORSAllowedHeaders: config.HTTP.CORSAllowedHeaders,
		Trace:              config.Trace.Enabled,
	})
	if config.HTTP.UpstreamTimeout > 0 {
		handler = http.TimeoutHandler(handler, config.HTTP.UpstreamTimeout, `{"code":"request_deadline_exceeded","message":"request deadline exceeded"}`)
	}

	httpServer := &http.Server{
		Addr:              config.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", config.HTTP.Addr)
	if err != nil {
		return nil, err
	}

	tlsEnabled := config.HTTP.TLS != nil && config.HTTP.TLS.Enabled
	if tlsEnabled {
		s.Logger.Info("HTTP TLS is enabled, serving connections using the provided certificate")
	} else {
		s.Logger.Warn("HTTP TLS is disabled, serving connections using insecure plaintext")
	}

	g.Go(func() error {
		s.Logger.Info(fmt.Sprintf("🚀 starting HTTP server on '%s'...", listener.Addr().String()))
		var err error
		if tlsEnabled {
			err = httpServer.ServeTLS(listener, config.HTTP.TLS.CertPath, config.HTTP.TLS.KeyPath)
		} else {
			err = httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server closed with unexpected error: %w", err)
		}
		s.Logger.Info("HTTP server shut down.")
		return nil
	})
	return httpServer, nil
}

func (s *ServerContext) Run(ctx context.Context, config *serverconfig.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProviderCloser := s.telemetryConfig(config)

	datastore, err := s.datastoreConfig(config)
	if err != nil {
		return err
	}
	defer datastore.Close()

	authenticator, err := s.authenticatorConfig(config)
	if err != nil {
		return err
	}

	encryptionRegistry, err := s.encryptionConfig(ctx, config)
	if err != nil {
		return err
	}

	externals, err := s.externalConfig(config)
	if err != nil {
		return err
	}

	// the hook only fires from Watch, which starts once svr is assigned
	var svr *server.Server
	invalidate := func(tenantID string) { svr.InvalidateTenant(tenantID) }
	metaReader, err := metafile.New(config.Meta.Dir, []meta.InvalidationHook{invalidate}, metafile.WithLogger(s.Logger))
	if err != nil {
		return fmt.Errorf("failed to load meta from '%s': %w", config.Meta.Dir, err)
	}

	svr, err = server.New(&server.Dependencies{
		Meta:       metaReader,
		Datastore:  datastore,
		Logger:     s.Logger,
		Encryption: encryptionRegistry,
		Externals:  externals,
		Sink:       s.monitorConfig(config, datastore),
	}, &server.Config{
		MaxConcurrentTasks: config.Engine.MaxConcurrentTasks,
		MaxRounds:          config.Engine.MaxRounds,
		MergeRetries:       config.Engine.MergeRetries,
		PipelineCacheSize:  config.PipelineCache.MaxSize,
		MaxConcurrentReads: config.Datastore.MaxConcurrentReads,
	})
	if err != nil {
		return err
	}
	defer svr.Close()

	s.Logger.Info(
		"starting topicflow service...",
		zap.String("version", build.Version),
		zap.String("date", build.Date),
		zap.String("commit", build.Commit),
		zap.String("go-version", goruntime.Version()),
		zap.String("datastore", config.Datastore.Engine),
		zap.String("meta", config.Meta.Dir),
	)

	g, gctx := errgroup.WithContext(ctx)

	if config.Meta.Watch {
		g.Go(func() error {
			s.Logger.Info(fmt.Sprintf("👀 watching meta directory '%s'", config.Meta.Dir))
			return metaReader.Watch(gctx)
		})
	}

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		metricsServer = &http.Server{Addr: config.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			s.Logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", config.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start prometheus metrics server: %w", err)
			}
			s.Logger.Info("metrics server shut down.")
			return nil
		})
	}

	httpServer, err := s.runHTTPServer(g, config, svr, authenticator)
	if err != nil {
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		stop()
		_ = g.Wait()
		return err
	}

	g.Go(func() error {
		// wait for cancellation signal
		<-gctx.Done()
		s.Logger.Info("attempting to shutdown gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.Logger.Info("failed to shutdown the http server", zap.Error(err))
		}

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				s.Logger.Info("failed to shutdown the prometheus metrics server", zap.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()

	if closeErr := tracerProviderCloser(); closeErr != nil {
		s.Logger.Error("failed to shutdown tracing", zap.Error(closeErr))
	}

	s.Logger.Info("server exited. goodbye 👋")

	return err
}
