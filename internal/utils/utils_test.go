package utils

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildPostgresDSN(t *testing.T) {
	if got := BuildPostgresDSN(PostgresConfig{}); got != "postgres://postgres@localhost:5432/scouter?sslmode=disable" {
		t.Errorf("defaults = %s", got)
	}
	got := BuildPostgresDSN(PostgresConfig{Host: "db", Port: "6432", User: "app", Password: "pw", DB: "events", SSLMode: "require"})
	if got != "postgres://app:pw@db:6432/events?sslmode=require" {
		t.Errorf("dsn = %s", got)
	}
}

func TestOpenDBUnknownDriver(t *testing.T) {
	if _, err := OpenDB("mysql", PostgresConfig{}, ""); err == nil || !strings.Contains(err.Error(), "mysql") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenSQLite(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.db")
	db, err := OpenSQLite(p)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Errorf("database file not created at %s: %v", p, err)
	}
}

func TestOpenRedisDisabled(t *testing.T) {
	if OpenRedis(RedisConfig{Enabled: false, Host: "x"}) != nil {
		t.Error("disabled redis should yield nil client")
	}
	rc := OpenRedis(RedisConfig{Enabled: true})
	if rc == nil || rc.Options().Addr != "127.0.0.1:6379" {
		t.Fatalf("client = %v", rc)
	}
	_ = rc.Close()
}

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "certs", "server.crt"), filepath.Join(dir, "certs", "server.key")
	if err := EnsureSelfSignedCert(cert, key, "scouter.local"); err != nil {
		t.Fatal(err)
	}
	if _, err := tls.LoadX509KeyPair(cert, key); err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	before, _ := os.ReadFile(cert)
	if err := EnsureSelfSignedCert(cert, key, "other"); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(cert)
	if string(before) != string(after) {
		t.Error("existing certificate must be kept")
	}
	if fi, _ := os.Stat(key); fi.Mode().Perm() != 0o600 {
		t.Errorf("key mode = %v", fi.Mode().Perm())
	}
}
