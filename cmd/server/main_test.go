package main

import (
	"strings"
	"testing"

	"gridquery/internal/config"
)

func TestCheckConfig(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Database: config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Database: "forum",
				TLS:      config.DatabaseTLSConfig{Mode: "off"},
				Pool:     config.PoolConfig{MaxOpen: 25, MaxIdle: 5},
			},
			Server: config.ServerConfig{Port: 8080},
			Observability: config.ObservabilityConfig{
				Logging:          config.LoggingConfig{Level: "info", Format: "json"},
				TraceSampleRatio: 1,
			},
			Grids: []config.GridConfig{{Name: "posts", Table: "posts"}},
		}
	}

	if err := checkConfig(valid()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	broken := valid()
	broken.Server.Port = -1
	broken.Grids = append(broken.Grids, config.GridConfig{Name: "posts", Table: "posts"})
	err := checkConfig(broken)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "2 error(s)") {
		t.Fatalf("expected two errors, got %v", err)
	}
}
