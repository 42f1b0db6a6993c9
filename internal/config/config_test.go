package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Env != "local" {
		t.Errorf("expected default env local, got %q", cfg.App.Env)
	}
	if cfg.App.HTTPAddr != ":5000" {
		t.Errorf("expected default addr :5000, got %q", cfg.App.HTTPAddr)
	}
	if cfg.App.StatsCacheTTL != 30*time.Second {
		t.Errorf("expected default stats cache ttl 30s, got %v", cfg.App.StatsCacheTTL)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestLoad_FileWithPartialFields(t *testing.T) {
	path := writeConfigFile(t, `{
		"app": {"env": "prod", "http_addr": ":8080", "stats_cache_ttl": "2m"},
		"security": {"jwt_secret": "file-secret"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Env != "prod" || cfg.App.HTTPAddr != ":8080" {
		t.Errorf("file values not applied: %+v", cfg.App)
	}
	if cfg.App.StatsCacheTTL != 2*time.Minute {
		t.Errorf("expected 2m ttl from duration string, got %v", cfg.App.StatsCacheTTL)
	}
	if cfg.Security.JWTSecret != "file-secret" {
		t.Errorf("expected jwt secret from file, got %q", cfg.Security.JWTSecret)
	}
	// 文件缺省字段回落默认值
	if cfg.App.LogLevel != "info" {
		t.Errorf("expected default log level, got %q", cfg.App.LogLevel)
	}
	if cfg.MySQL.DSN == "" {
		t.Errorf("expected default mysql dsn")
	}
}

func TestLoad_InvalidTTLRejected(t *testing.T) {
	path := writeConfigFile(t, `{"app": {"stats_cache_ttl": "soon"}}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("FRONTEND_URL", "https://notes.example.com")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("APP_STATS_CACHE_TTL", "45s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.HTTPAddr != ":9999" {
		t.Errorf("PORT must map to listen addr, got %q", cfg.App.HTTPAddr)
	}
	if cfg.App.FrontendURL != "https://notes.example.com" {
		t.Errorf("expected frontend url override, got %q", cfg.App.FrontendURL)
	}
	if cfg.Security.JWTSecret != "env-secret" {
		t.Errorf("expected jwt secret override, got %q", cfg.Security.JWTSecret)
	}
	if cfg.App.StatsCacheTTL != 45*time.Second {
		t.Errorf("expected ttl override, got %v", cfg.App.StatsCacheTTL)
	}
}

func TestLoad_DBEnvRewritesDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_USER", "notes")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("DB_NAME", "notes_prod")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	dsn := cfg.MySQL.DSN
	for _, want := range []string{"db.internal:3307", "notes:s3cret@", "/notes_prod"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestLoad_DBDSNWinsOverParts(t *testing.T) {
	t.Setenv("DB_DSN", "u:p@tcp(single:3306)/one?parseTime=true")
	t.Setenv("DB_HOST", "ignored.internal")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MySQL.DSN != "u:p@tcp(single:3306)/one?parseTime=true" {
		t.Errorf("DB_DSN must take precedence, got %q", cfg.MySQL.DSN)
	}
}
