package run

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/topicflow/topicflow/cmd/util"
)

// bindRunFlagsFunc binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag("http.addr", flags.Lookup("http-addr"))
		util.MustBindEnv("http.addr", "TOPICFLOW_HTTP_ADDR")

		util.MustBindPFlag("http.tls.enabled", flags.Lookup("http-tls-enabled"))
		util.MustBindEnv("http.tls.enabled", "TOPICFLOW_HTTP_TLS_ENABLED")

		util.MustBindPFlag("http.tls.cert", flags.Lookup("http-tls-cert"))
		util.MustBindEnv("http.tls.cert", "TOPICFLOW_HTTP_TLS_CERT")

		util.MustBindPFlag("http.tls.key", flags.Lookup("http-tls-key"))
		util.MustBindEnv("http.tls.key", "TOPICFLOW_HTTP_TLS_KEY")

		util.MustBindPFlag("http.upstreamTimeout", flags.Lookup("http-upstream-timeout"))
		util.MustBindEnv("http.upstreamTimeout", "TOPICFLOW_HTTP_UPSTREAM_TIMEOUT", "TOPICFLOW_HTTP_UPSTREAMTIMEOUT")

		util.MustBindPFlag("http.requestBodyLimit", flags.Lookup("http-request-body-limit"))
		util.MustBindEnv("http.requestBodyLimit", "TOPICFLOW_HTTP_REQUEST_BODY_LIMIT", "TOPICFLOW_HTTP_REQUESTBODYLIMIT")

		util.MustBindPFlag("http.corsAllowedOrigins", flags.Lookup("http-cors-allowed-origins"))
		util.MustBindEnv("http.corsAllowedOrigins", "TOPICFLOW_HTTP_CORS_ALLOWED_ORIGINS", "TOPICFLOW_HTTP_CORSALLOWEDORIGINS")

		util.MustBindPFlag("http.corsAllowedHeaders", flags.Lookup("http-cors-allowed-headers"))
		util.MustBindEnv("http.corsAllowedHeaders", "TOPICFLOW_HTTP_CORS_ALLOWED_HEADERS", "TOPICFLOW_HTTP_CORSALLOWEDHEADERS")

		util.MustBindPFlag("authn.method", flags.Lookup("authn-method"))
		util.MustBindEnv("authn.method", "TOPICFLOW_AUTHN_METHOD")

		util.MustBindPFlag("authn.jwt.secret", flags.Lookup("authn-jwt-secret"))
		util.MustBindEnv("authn.jwt.secret", "TOPICFLOW_AUTHN_JWT_SECRET")

		util.MustBindPFlag("authn.jwt.issuer", flags.Lookup("authn-jwt-issuer"))
		util.MustBindEnv("authn.jwt.issuer", "TOPICFLOW_AUTHN_JWT_ISSUER")

		util.MustBindPFlag("authn.jwt.audience", flags.Lookup("authn-jwt-audience"))
		util.MustBindEnv("authn.jwt.audience", "TOPICFLOW_AUTHN_JWT_AUDIENCE")

		util.MustBindPFlag("datastore.engine", flags.Lookup("datastore-engine"))
		util.MustBindEnv("datastore.engine", "TOPICFLOW_DATASTORE_ENGINE")

		util.MustBindPFlag("datastore.uri", flags.Lookup("datastore-uri"))
		util.MustBindEnv("datastore.uri", "TOPICFLOW_DATASTORE_URI")

		util.MustBindPFlag("datastore.username", flags.Lookup("datastore-username"))
		util.MustBindEnv("datastore.username", "TOPICFLOW_DATASTORE_USERNAME")

		util.MustBindPFlag("datastore.password", flags.Lookup("datastore-password"))
		util.MustBindEnv("datastore.password", "TOPICFLOW_DATASTORE_PASSWORD")

		util.MustBindPFlag("datastore.maxOpenConns", flags.Lookup("datastore-max-open-conns"))
		util.MustBindEnv("datastore.maxOpenConns", "TOPICFLOW_DATASTORE_MAX_OPEN_CONNS", "TOPICFLOW_DATASTORE_MAXOPENCONNS")

		util.MustBindPFlag("datastore.maxIdleConns", flags.Lookup("datastore-max-idle-conns"))
		util.MustBindEnv("datastore.maxIdleConns", "TOPICFLOW_DATASTORE_MAX_IDLE_CONNS", "TOPICFLOW_DATASTORE_MAXIDLECONNS")

		util.MustBindPFlag("datastore.connMaxIdleTime", flags.Lookup("datastore-conn-max-idle-time"))
		util.MustBindEnv("datastore.connMaxIdleTime", "TOPICFLOW_DATASTORE_CONN_MAX_IDLE_TIME", "TOPICFLOW_DATASTORE_CONNMAXIDLETIME")

		util.MustBindPFlag("datastore.connMaxLifetime", flags.Lookup("datastore-conn-max-lifetime"))
		util.MustBindEnv("datastore.connMaxLifetime", "TOPICFLOW_DATASTORE_CONN_MAX_LIFETIME", "TOPICFLOW_DATASTORE_CONNMAXLIFETIME")

		util.MustBindPFlag("datastore.maxConcurrentReads", flags.Lookup("datastore-max-concurrent-reads"))
		util.MustBindEnv("datastore.maxConcurrentReads", "TOPICFLOW_DATASTORE_MAX_CONCURRENT_READS", "TOPICFLOW_DATASTORE_MAXCONCURRENTREADS")

		util.MustBindPFlag("datastore.metrics.enabled", flags.Lookup("datastore-metrics-enabled"))
		util.MustBindEnv("datastore.metrics.enabled", "TOPICFLOW_DATASTORE_METRICS_ENABLED")

		util.MustBindPFlag("log.format", flags.Lookup("log-format"))
		util.MustBindEnv("log.format", "TOPICFLOW_LOG_FORMAT")

		util.MustBindPFlag("log.level", flags.Lookup("log-level"))
		util.MustBindEnv("log.level", "TOPICFLOW_LOG_LEVEL")

		util.MustBindPFlag("log.timestampFormat", flags.Lookup("log-timestamp-format"))
		util.MustBindEnv("log.timestampFormat", "TOPICFLOW_LOG_TIMESTAMP_FORMAT")

		util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
		util.MustBindEnv("trace.enabled", "TOPICFLOW_TRACE_ENABLED")

		util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
		util.MustBindEnv("trace.otlp.endpoint", "TOPICFLOW_TRACE_OTLP_ENDPOINT")

		util.MustBindPFlag("trace.otlp.tls.enabled", flags.Lookup("trace-otlp-tls-enabled"))
		util.MustBindEnv("trace.otlp.tls.enabled", "TOPICFLOW_TRACE_OTLP_TLS_ENABLED")

		util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
		util.MustBindEnv("trace.sampleRatio", "TOPICFLOW_TRACE_SAMPLE_RATIO", "TOPICFLOW_TRACE_SAMPLERATIO")

		util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
		util.MustBindEnv("trace.serviceName", "TOPICFLOW_TRACE_SERVICE_NAME", "TOPICFLOW_TRACE_SERVICENAME")

		util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
		util.MustBindEnv("metrics.enabled", "TOPICFLOW_METRICS_ENABLED")

		util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
		util.MustBindEnv("metrics.addr", "TOPICFLOW_METRICS_ADDR")

		util.MustBindPFlag("meta.dir", flags.Lookup("meta-dir"))
		util.MustBindEnv("meta.dir", "TOPICFLOW_META_DIR")

		util.MustBindPFlag("meta.watch", flags.Lookup("meta-watch"))
		util.MustBindEnv("meta.watch", "TOPICFLOW_META_WATCH")

		util.MustBindPFlag("engine.maxConcurrentTasks", flags.Lookup("engine-max-concurrent-tasks"))
		util.MustBindEnv("engine.maxConcurrentTasks", "TOPICFLOW_ENGINE_MAX_CONCURRENT_TASKS", "TOPICFLOW_ENGINE_MAXCONCURRENTTASKS")

		util.MustBindPFlag("engine.maxRounds", flags.Lookup("engine-max-rounds"))
		util.MustBindEnv("engine.maxRounds", "TOPICFLOW_ENGINE_MAX_ROUNDS", "TOPICFLOW_ENGINE_MAXROUNDS")

		util.MustBindPFlag("engine.mergeRetries", flags.Lookup("engine-merge-retries"))
		util.MustBindEnv("engine.mergeRetries", "TOPICFLOW_ENGINE_MERGE_RETRIES", "TOPICFLOW_ENGINE_MERGERETRIES")

		util.MustBindPFlag("pipelineCache.maxSize", flags.Lookup("pipeline-cache-max-size"))
		util.MustBindEnv("pipelineCache.maxSize", "TOPICFLOW_PIPELINE_CACHE_MAX_SIZE", "TOPICFLOW_PIPELINECACHE_MAXSIZE")

		util.MustBindPFlag("encryption.aesKey", flags.Lookup("encryption-aes-key"))
		util.MustBindEnv("encryption.aesKey", "TOPICFLOW_ENCRYPTION_AES_KEY", "TOPICFLOW_ENCRYPTION_AESKEY")

		util.MustBindPFlag("encryption.vault.address", flags.Lookup("encryption-vault-address"))
		util.MustBindEnv("encryption.vault.address", "TOPICFLOW_ENCRYPTION_VAULT_ADDRESS")

		util.MustBindPFlag("encryption.vault.token", flags.Lookup("encryption-vault-token"))
		util.MustBindEnv("encryption.vault.token", "TOPICFLOW_ENCRYPTION_VAULT_TOKEN")

		util.MustBindPFlag("encryption.vault.mount", flags.Lookup("encryption-vault-mount"))
		util.MustBindEnv("encryption.vault.mount", "TOPICFLOW_ENCRYPTION_VAULT_MOUNT")

		util.MustBindPFlag("encryption.vault.path", flags.Lookup("encryption-vault-path"))
		util.MustBindEnv("encryption.vault.path", "TOPICFLOW_ENCRYPTION_VAULT_PATH")

		util.MustBindPFlag("encryption.vault.field", flags.Lookup("encryption-vault-field"))
		util.MustBindEnv("encryption.vault.field", "TOPICFLOW_ENCRYPTION_VAULT_FIELD")

		util.MustBindPFlag("monitor.store", flags.Lookup("monitor-store"))
		util.MustBindEnv("monitor.store", "TOPICFLOW_MONITOR_STORE")
	}
}
