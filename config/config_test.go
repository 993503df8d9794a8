package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_DefaultsWithoutSources(t *testing.T) {
	t.Setenv(FileEnvVar, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite3" || cfg.TimeZone != "Asia/Kolkata" || cfg.ServerAddr != "127.0.0.1:8000" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(yamlPath, []byte("db_driver: mysql\ndb_dsn: user@tcp(db)/tasks\nemail_port: 2525\nredis_addr: yaml:6379\ntrust_proxy: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("TM_TEST_FROM_DOTENV=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(FileEnvVar, yamlPath)
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("DEBUG", "0")

	cfg, err := Load(envPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("TM_TEST_FROM_DOTENV") })

	if os.Getenv("TM_TEST_FROM_DOTENV") != "1" {
		t.Fatal(".env file not loaded")
	}
	if cfg.DBDriver != "mysql" || cfg.EmailPort != 2525 || !cfg.TrustProxy {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.RedisAddr != "env:6379" {
		t.Fatalf("env should win over yaml, got %q", cfg.RedisAddr)
	}
	if cfg.Debug {
		t.Fatal("DEBUG=0 not applied")
	}
}

func TestLoad_BadValuesAreReported(t *testing.T) {
	t.Setenv(FileEnvVar, "")
	t.Setenv("EMAIL_PORT", "abc")
	t.Setenv("DEBUG", "maybe")
	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "EMAIL_PORT") || !strings.Contains(err.Error(), "DEBUG") {
		t.Fatalf("both errors should be reported: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg.DBDriver = "postgres"
	cfg.StorageBackend = "s3"
	cfg.TimeZone = "Mars/Olympus"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"DB_DRIVER", "AWS_BUCKET", "TIME_ZONE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %s in %v", want, err)
		}
	}
}

func TestSigningSecret(t *testing.T) {
	cfg := Default()
	if s, err := cfg.SigningSecret(); err != nil || s != DevSecret {
		t.Fatalf("debug secret = %q, %v", s, err)
	}
	cfg.Debug = false
	if _, err := cfg.SigningSecret(); err == nil {
		t.Fatal("missing secret accepted outside debug")
	}
	cfg.Secret = "s3cret"
	if s, _ := cfg.SigningSecret(); s != "s3cret" {
		t.Fatalf("secret = %q", s)
	}
}
