package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name:     "basic DSN",
			config:   DatabaseConfig{Host: "localhost", Port: 3306, User: "root", Password: "password", Database: "forum"},
			expected: "root:password@tcp(localhost:3306)/forum?parseTime=true",
		},
		{
			name:     "with special characters in password",
			config:   DatabaseConfig{Host: "db.example.com", Port: 3306, User: "admin", Password: "p@ss:w0rd!", Database: "mydb"},
			expected: "admin:p@ss:w0rd!@tcp(db.example.com:3306)/mydb?parseTime=true",
		},
		{
			name:     "empty password",
			config:   DatabaseConfig{Host: "localhost", Port: 4000, User: "root", Database: "test"},
			expected: "root@tcp(localhost:4000)/test?parseTime=true",
		},
		{
			name:     "connection string gains parseTime",
			config:   DatabaseConfig{ConnectionString: "app:secret@tcp(db:3306)/forum"},
			expected: "app:secret@tcp(db:3306)/forum?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.config.DSN()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDatabaseConfig_DSN_TLS(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{mode: "off", want: "tls=false"},
		{mode: "skip-verify", want: "tls=skip-verify"},
		{mode: "verify-full", want: "tls=" + tlsConfigName},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := DatabaseConfig{Host: "localhost", Port: 3306, User: "root", Database: "forum", TLS: DatabaseTLSConfig{Mode: tt.mode}}
			dsn, err := cfg.DSN()
			require.NoError(t, err)
			assert.Contains(t, dsn, tt.want)
		})
	}

	t.Run("connection string tls wins", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "app@tcp(db:3306)/forum?tls=true", TLS: DatabaseTLSConfig{Mode: "skip-verify"}}
		dsn, err := cfg.DSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "tls=true")
		assert.NotContains(t, dsn, "skip-verify")
	})

	t.Run("invalid connection string", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "not a dsn"}
		_, err := cfg.DSN()
		require.Error(t, err)
	})
}

func TestDatabaseConfig_EffectiveDatabaseName(t *testing.T) {
	tests := []struct {
		name       string
		config     DatabaseConfig
		wantName   string
		wantSource string
		wantErr    bool
	}{
		{name: "discrete field", config: DatabaseConfig{Database: "forum"}, wantName: "forum", wantSource: "database.database"},
		{name: "from dsn", config: DatabaseConfig{ConnectionString: "app@tcp(db:3306)/forum"}, wantName: "forum", wantSource: "dsn"},
		{name: "matching", config: DatabaseConfig{Database: "forum", ConnectionString: "app@tcp(db:3306)/forum"}, wantName: "forum", wantSource: "dsn"},
		{name: "mismatch", config: DatabaseConfig{Database: "other", ConnectionString: "app@tcp(db:3306)/forum"}, wantErr: true},
		{name: "none", config: DatabaseConfig{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, source, err := tt.config.EffectiveDatabaseName()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	validConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Database: "forum",
				TLS:      DatabaseTLSConfig{Mode: "off"},
				Pool:     PoolConfig{MaxOpen: 25, MaxIdle: 5},
			},
			Server: ServerConfig{
				Port:      8080,
				WriteAuth: WriteAuthConfig{Enabled: true, Secret: "0123456789abcdef0123456789abcdef"},
			},
			Observability: ObservabilityConfig{
				Logging:          LoggingConfig{Level: "info", Format: "json"},
				TraceSampleRatio: 1,
				OTLP:             OTLPConfig{Protocol: "grpc", Compression: "gzip"},
			},
			Grids: []GridConfig{{Name: "posts", Table: "posts"}},
		}
	}

	t.Run("valid config passes validation", func(t *testing.T) {
		result := validConfig().Validate()
		assert.False(t, result.HasErrors(), result.Error())
		assert.Empty(t, result.Warnings)
	})

	errorCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "database port low", mutate: func(c *Config) { c.Database.Port = 0 }, field: "database.port"},
		{name: "database port high", mutate: func(c *Config) { c.Database.Port = 70000 }, field: "database.port"},
		{name: "missing database", mutate: func(c *Config) { c.Database.Database = "" }, field: "database.database"},
		{name: "server port", mutate: func(c *Config) { c.Server.Port = -1 }, field: "server.port"},
		{name: "TLS mode", mutate: func(c *Config) { c.Database.TLS.Mode = "invalid" }, field: "database.tls.mode"},
		{name: "verify-ca without CA", mutate: func(c *Config) { c.Database.TLS.Mode = "verify-ca" }, field: "database.tls.ca_file"},
		{name: "cert without key", mutate: func(c *Config) { c.Database.TLS.CertFile = "/tls/client.pem" }, field: "database.tls.cert_file"},
		{name: "negative pool", mutate: func(c *Config) { c.Database.Pool.MaxOpen = -1 }, field: "database.pool.max_open"},
		{name: "timeout without retry interval", mutate: func(c *Config) { c.Database.ConnectionTimeout = time.Minute }, field: "database.connection_retry_interval"},
		{name: "log level", mutate: func(c *Config) { c.Observability.Logging.Level = "invalid" }, field: "observability.logging.level"},
		{name: "log format", mutate: func(c *Config) { c.Observability.Logging.Format = "xml" }, field: "observability.logging.format"},
		{name: "sample ratio", mutate: func(c *Config) { c.Observability.TraceSampleRatio = 2 }, field: "observability.trace_sample_ratio"},
		{name: "OTLP protocol", mutate: func(c *Config) { c.Observability.OTLP.Protocol = "udp" }, field: "observability.otlp.protocol"},
		{name: "OTLP http endpoint", mutate: func(c *Config) {
			c.Observability.OTLP.Protocol = "http/protobuf"
			c.Observability.OTLP.Endpoint = "localhost"
		}, field: "observability.otlp.endpoint"},
		{name: "trace override compression", mutate: func(c *Config) {
			c.Observability.Traces = &OTLPConfig{Compression: "zstd"}
		}, field: "observability.traces.compression"},
		{name: "rate limit without rps", mutate: func(c *Config) {
			c.Server.RateLimit = RateLimitConfig{Enabled: true, Burst: 10}
		}, field: "server.rate_limit.rps"},
		{name: "rate limit without burst", mutate: func(c *Config) {
			c.Server.RateLimit = RateLimitConfig{Enabled: true, RPS: 100}
		}, field: "server.rate_limit.burst"},
		{name: "CORS without origins", mutate: func(c *Config) { c.Server.CORS.Enabled = true }, field: "server.cors.allowed_origins"},
		{name: "CORS wildcard with credentials", mutate: func(c *Config) {
			c.Server.CORS = CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true}
		}, field: "server.cors.allowed_origins"},
		{name: "short write auth secret", mutate: func(c *Config) { c.Server.WriteAuth.Secret = "short" }, field: "server.write_auth.secret"},
		{name: "empty grid name", mutate: func(c *Config) { c.Grids[0].Name = "" }, field: "grids[0].name"},
		{name: "grid name with slash", mutate: func(c *Config) { c.Grids[0].Name = "a/b" }, field: "grids[0].name"},
		{name: "duplicate grid", mutate: func(c *Config) {
			c.Grids = append(c.Grids, GridConfig{Name: "posts", Table: "posts"})
		}, field: "grids[1].name"},
		{name: "grid without table", mutate: func(c *Config) { c.Grids[0].Table = "" }, field: "grids[0].table"},
		{name: "grid search operator", mutate: func(c *Config) { c.Grids[0].SearchOperator = "like" }, field: "grids[0].search_operator"},
		{name: "grid nested groups", mutate: func(c *Config) { c.Grids[0].NestedGroups = "deep" }, field: "grids[0].nested_groups"},
		{name: "grid alias", mutate: func(c *Config) { c.Grids[0].Aliases = []AliasConfig{{Name: "author"}} }, field: "grids[0].aliases"},
		{name: "subgrid parent column", mutate: func(c *Config) {
			c.Grids[0].Subgrid = &SubgridConfig{Table: "post_tags"}
		}, field: "grids[0].subgrid.parent_column"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()
			require.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), tt.field)
		})
	}

	warningCases := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{name: "rate limit disabled with values", mutate: func(c *Config) {
			c.Server.RateLimit = RateLimitConfig{RPS: 100, Burst: 10}
		}, message: "rate limit values"},
		{name: "CORS wildcard", mutate: func(c *Config) {
			c.Server.CORS = CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}}
		}, message: "wildcard"},
		{name: "max_idle above max_open", mutate: func(c *Config) {
			c.Database.Pool = PoolConfig{MaxOpen: 10, MaxIdle: 20}
		}, message: "max_idle"},
		{name: "skip-verify", mutate: func(c *Config) { c.Database.TLS.Mode = "skip-verify" }, message: "skip-verify"},
		{name: "unauthenticated writes", mutate: func(c *Config) { c.Server.WriteAuth = WriteAuthConfig{} }, message: "not authenticated"},
		{name: "no grids", mutate: func(c *Config) { c.Grids = nil }, message: "no grids"},
		{name: "sqlcommenter without tracing", mutate: func(c *Config) {
			c.Observability.SQLCommenterEnabled = true
		}, message: "sqlcommenter"},
	}
	for _, tt := range warningCases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()
			assert.False(t, result.HasErrors(), result.Error())
			require.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0].Message, tt.message)
		})
	}

	t.Run("multiple errors collected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		cfg.Server.Port = 0
		cfg.Observability.Logging.Level = "invalid"
		result := cfg.Validate()
		assert.Len(t, result.Errors, 3)
	})
}

func TestObservabilityConfig_SignalOverrides(t *testing.T) {
	cfg := ObservabilityConfig{
		OTLP: OTLPConfig{
			Endpoint:    "collector:4317",
			Protocol:    "grpc",
			Insecure:    true,
			Headers:     map[string]string{"x-team": "grid"},
			Timeout:     10 * time.Second,
			Compression: "gzip",
		},
		Traces: &OTLPConfig{Endpoint: "traces:4318", Protocol: "http/protobuf", Headers: map[string]string{"x-signal": "traces"}},
	}

	traces := cfg.GetTracesConfig()
	assert.Equal(t, "traces:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.False(t, traces.Insecure)
	assert.Equal(t, map[string]string{"x-team": "grid", "x-signal": "traces"}, traces.Headers)
	assert.Equal(t, 10*time.Second, traces.Timeout)
	assert.Equal(t, "gzip", traces.Compression)

	logs := cfg.GetLogsConfig()
	assert.Equal(t, cfg.OTLP, logs)
}

func TestValidationError_Error(t *testing.T) {
	t.Run("with hint", func(t *testing.T) {
		err := ValidationError{Field: "test.field", Message: "test message", Hint: "try this"}
		assert.Equal(t, "test.field: test message (hint: try this)", err.Error())
	})

	t.Run("without hint", func(t *testing.T) {
		err := ValidationError{Field: "test.field", Message: "test message"}
		assert.Equal(t, "test.field: test message", err.Error())
	})
}
