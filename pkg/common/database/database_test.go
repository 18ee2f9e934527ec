package database

import (
	"testing"

	"github.com/synaptica-ai/triage/pkg/common/config"
)

func TestPostgresDSN(t *testing.T) {
	cfg := &config.Config{
		PostgresHost:     "db",
		PostgresPort:     "5433",
		PostgresUser:     "triage",
		PostgresPassword: "secret",
		PostgresDB:       "sessions",
		PostgresSSLMode:  "require",
	}

	want := "host=db user=triage password=secret dbname=sessions port=5433 sslmode=require"
	if got := PostgresDSN(cfg); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
