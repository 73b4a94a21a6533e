package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"gridquery/internal/logging"
	"gridquery/internal/planner"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
// Grid columns are checked against the live schema at startup, not here.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateGrids(result, c.Grids)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.ConnectionString) == "" && (d.Port < 1 || d.Port > 65535) {
		result.addError("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}

	if _, _, err := d.EffectiveDatabaseName(); err != nil {
		result.addError("database.database", err.Error(), "set database.database or include /<database> in database.dsn")
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.addWarning("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.addError("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.addError("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.addError("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.addWarning("database.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.addError("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		result.addError("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.addWarning("database.tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimit.Enabled {
		if s.RateLimit.RPS <= 0 {
			result.addError("server.rate_limit.rps", "rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimit.Burst <= 0 {
			result.addError("server.rate_limit.burst", "burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimit.RPS > 0 || s.RateLimit.Burst > 0 {
		result.addWarning("server.rate_limit.enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit.enabled to apply rate limits")
	}
	if s.RateLimit.TrustForwardedFor && !s.RateLimit.PerClient {
		result.addWarning("server.rate_limit.trust_forwarded_for", "trust_forwarded_for has no effect without per_client", "")
	}

	if s.CORS.Enabled {
		if len(s.CORS.AllowedOrigins) == 0 {
			result.addError("server.cors.allowed_origins", "CORS enabled but no allowed origins configured",
				"set allowed_origins or disable CORS")
		}
		for _, origin := range s.CORS.AllowedOrigins {
			if strings.TrimSpace(origin) != "*" {
				continue
			}
			if s.CORS.AllowCredentials {
				result.addError("server.cors.allowed_origins", "wildcard origin (*) cannot be used with credentials",
					"use specific origins with credentials, or wildcard without credentials")
			} else {
				result.addWarning("server.cors.allowed_origins", "CORS wildcard origin enabled",
					"use specific origins in production")
			}
			break
		}
	}

	if s.WriteAuth.Enabled {
		if len(s.WriteAuth.Secret) < 32 {
			result.addError("server.write_auth.secret", "secret must be at least 32 bytes when write auth is enabled",
				"set server.write_auth.secret_file to a file holding a long random secret")
		}
		if s.WriteAuth.ClockSkew < 0 {
			result.addError("server.write_auth.clock_skew", "clock_skew cannot be negative", "")
		}
	} else {
		result.addWarning("server.write_auth.enabled", "grid writes are not authenticated",
			"enable server.write_auth or mark grids read_only")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if _, err := logging.ParseLevel(o.Logging.Level); err != nil {
		result.addError("observability.logging.level", err.Error(),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}
	if o.SQLCommenterEnabled && !o.TracingEnabled {
		result.addWarning("observability.sqlcommenter_enabled", "sqlcommenter requires tracing",
			"enable observability.tracing_enabled")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}

	if strings.HasPrefix(o.Protocol, "http") && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for %s", o.Endpoint, o.Protocol),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

var gridNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateGrids(result *ValidationResult, grids []GridConfig) {
	if len(grids) == 0 {
		result.addWarning("grids", "no grids configured", "add at least one entry under grids")
	}

	seen := make(map[string]bool, len(grids))
	for i, grid := range grids {
		field := fmt.Sprintf("grids[%d]", i)
		name := strings.TrimSpace(grid.Name)
		switch {
		case name == "":
			result.addError(field+".name", "grid name cannot be empty", "")
		case !gridNamePattern.MatchString(name):
			result.addError(field+".name", fmt.Sprintf("grid name %q must contain only letters, digits, '_' or '-'", name), "")
		case seen[name]:
			result.addError(field+".name", fmt.Sprintf("duplicate grid name %q", name), "")
		}
		seen[name] = true

		if strings.TrimSpace(grid.Table) == "" {
			result.addError(field+".table", "table cannot be empty", "")
		}
		for _, column := range grid.Columns {
			if strings.TrimSpace(column) == "" {
				result.addError(field+".columns", "column path cannot be empty", "")
			}
		}

		if grid.SearchOperator != "" && !planner.Operator(grid.SearchOperator).Valid() {
			result.addError(field+".search_operator", fmt.Sprintf("unknown operator %q", grid.SearchOperator),
				"use one of eq, ne, bw, bn, ew, en, cn, nc, nu, nn, in, ni, lt, le, gt, ge")
		}

		switch strings.ToLower(strings.TrimSpace(grid.NestedGroups)) {
		case "", NestedGroupsFlatten, NestedGroupsPreserve:
		default:
			result.addError(field+".nested_groups", fmt.Sprintf("invalid nested_groups %q", grid.NestedGroups),
				"valid values are: flatten, preserve")
		}

		for _, alias := range grid.Aliases {
			if strings.TrimSpace(alias.Name) == "" || strings.TrimSpace(alias.Field) == "" {
				result.addError(field+".aliases", "alias name and field are required", "")
			}
		}

		if grid.Subgrid != nil {
			if strings.TrimSpace(grid.Subgrid.Table) == "" {
				result.addError(field+".subgrid.table", "subgrid table cannot be empty", "")
			}
			if strings.TrimSpace(grid.Subgrid.ParentColumn) == "" {
				result.addError(field+".subgrid.parent_column", "subgrid parent_column cannot be empty", "")
			}
		}
	}
}
