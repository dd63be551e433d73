package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	workspace := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(workspace); err != nil {
		t.Fatalf("chdir workspace: %v", err)
	}
	return workspace
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SCFINGEST_CONFIG_DIR", "SCFINGEST_TRUST_PROJECT_CONFIG", "SCFINGEST_LISTEN",
		"SCFINGEST_API_URL", "SCFINGEST_DB", "SCFINGEST_NAMESPACE", "SCFINGEST_STORAGE_BACKEND",
		"SCFINGEST_BUCKET", "SCFINGEST_STORAGE_ROOT", "SCFINGEST_MANIFEST",
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("expected local backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Upload.MaxFileBytes != 10<<20 {
		t.Fatalf("expected 10 MiB file limit, got %d", cfg.Upload.MaxFileBytes)
	}
	if !cfg.Auth.AllowRegistration {
		t.Fatal("expected registration enabled by default")
	}
	if cfg.Auth.SessionTTL != 24*time.Hour {
		t.Fatalf("expected 24h sessions, got %v", cfg.Auth.SessionTTL)
	}
	if cfg.Namespace != "" {
		t.Fatalf("expected empty namespace, got %q", cfg.Namespace)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte(`listen_addr = "0.0.0.0:8080"
log_level = "warn"
namespace = "scf"

[storage]
backend = "s3"
bucket = "scf-bucket"
put_timeout = "5s"
path_style = true

[upload]
max_file_bytes = 2048
concurrency = 2

[auth]
session_ttl = "2h"
allow_registration = false
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" || cfg.LogLevel != "warn" || cfg.Namespace != "scf" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.Bucket != "scf-bucket" || !cfg.Storage.PathStyle {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Storage.PutTimeout != 5*time.Second {
		t.Fatalf("expected 5s put timeout, got %v", cfg.Storage.PutTimeout)
	}
	if cfg.Storage.MaxRetries != DefaultStorageMaxRetries {
		t.Fatalf("expected default retries to survive, got %d", cfg.Storage.MaxRetries)
	}
	if cfg.Upload.MaxFileBytes != 2048 || cfg.Upload.Concurrency != 2 {
		t.Fatalf("unexpected upload config: %+v", cfg.Upload)
	}
	if cfg.Auth.SessionTTL != 2*time.Hour || cfg.Auth.AllowRegistration {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/"+configFileName, &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("listen_addr = \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range AllowedKeys() {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
		cfg := Default()
		if _, err := cfg.Get(key); err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.DBPath = "/tmp/test.db"
	cfg.Storage.Bucket = "b"
	cfg.Storage.PutTimeout = 45 * time.Second
	cfg.Upload.Concurrency = 3

	tests := map[string]string{
		"db_path":                  "/tmp/test.db",
		"storage.bucket":           "b",
		"storage.put_timeout":      "45s",
		"upload.concurrency":       "3",
		"auth.allow_registration":  "true",
		"upload.max_request_bytes": "67108864",
	}
	for key, want := range tests {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("Get(%q) = %q, %v; want %q", key, got, err, want)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "new.toml")
	if err := SetKey(path, "namespace", "scf"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "scf" {
		t.Fatalf("expected 'scf', got %q", cfg.Namespace)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("namespace = \"old\"\napi_url = \"http://keep\"\n[storage]\nbucket = \"keep-bucket\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "namespace", "new"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetKey(path, "storage.backend", "S3"); err != nil {
		t.Fatalf("set backend: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "new" {
		t.Fatalf("expected 'new', got %q", cfg.Namespace)
	}
	if cfg.APIURL != "http://keep" || cfg.Storage.Bucket != "keep-bucket" {
		t.Fatalf("expected preserved values, got %+v", cfg)
	}
	if cfg.Storage.Backend != "s3" {
		t.Fatalf("expected backend s3, got %q", cfg.Storage.Backend)
	}
}

func TestSetKeyTypedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typed.toml")
	for key, value := range map[string]string{
		"upload.max_file_bytes":   "4096",
		"storage.max_retries":     "0",
		"auth.secure_cookies":     "true",
		"auth.session_ttl":        "90m",
		"auth.login_max_failures": "3",
	} {
		if err := SetKey(path, key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Upload.MaxFileBytes != 4096 {
		t.Fatalf("max_file_bytes = %d", cfg.Upload.MaxFileBytes)
	}
	if cfg.Storage.MaxRetries != 0 {
		t.Fatalf("max_retries = %d", cfg.Storage.MaxRetries)
	}
	if !cfg.Auth.SecureCookies {
		t.Fatal("expected secure cookies")
	}
	if cfg.Auth.SessionTTL != 90*time.Minute {
		t.Fatalf("session_ttl = %v", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.LoginMaxFailures != 3 {
		t.Fatalf("login_max_failures = %d", cfg.Auth.LoginMaxFailures)
	}
}

func TestSetKeyRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	cases := map[string]string{
		"invalid_key":           "value",
		"upload.max_file_bytes": "-1",
		"auth.session_ttl":      "soon",
		"storage.backend":       "ftp",
		"log_level":             "loud",
		"storage.path_style":    "maybe",
	}
	for key, value := range cases {
		if err := SetKey(path, key, value); err == nil {
			t.Fatalf("expected error for %s=%s", key, value)
		}
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCFINGEST_CONFIG_DIR", dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	clearEnv(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, configFileName), []byte("namespace = \"xy\"\n"), 0o644); err != nil {
		t.Fatalf("write override config: %v", err)
	}

	workspace := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("namespace = \"zz\"\n"), 0o644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}

	t.Setenv("SCFINGEST_CONFIG_DIR", configDir)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "xy" {
		t.Fatalf("expected config-dir namespace 'xy', got %q", cfg.Namespace)
	}
	if cfg.DBPath != filepath.Join(workspace, DefaultDBFileName) {
		t.Fatalf("expected default workspace db path, got %q", cfg.DBPath)
	}
	if cfg.Storage.Root != filepath.Join(workspace, DefaultObjectsDirName) {
		t.Fatalf("expected default workspace object root, got %q", cfg.Storage.Root)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	chdirTemp(t)
	t.Setenv("SCFINGEST_LISTEN", "0.0.0.0:9000")
	t.Setenv("SCFINGEST_DB", "/tmp/override.db")
	t.Setenv("SCFINGEST_BUCKET", "env-bucket")
	t.Setenv("SCFINGEST_STORAGE_BACKEND", "S3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Fatalf("expected env override for listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("expected env override for DB path, got %q", cfg.DBPath)
	}
	if cfg.Storage.Bucket != "env-bucket" || cfg.Storage.Backend != "s3" {
		t.Fatalf("expected env storage overrides, got %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadFallsBackToDefaultsWhenConfiguredEmpty(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	chdirTemp(t)
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("log_level = \"\"\n[storage]\nbackend = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Fatalf("expected default backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoadProjectConfigTrust(t *testing.T) {
	tests := []struct {
		name      string
		trust     string
		want      string
		wantTrust bool
	}{
		{name: "ignored by default", trust: "", want: "home"},
		{name: "applied when trusted", trust: "true", want: "project", wantTrust: true},
		{name: "ignored on invalid value", trust: "definitely-not-bool", want: "home"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			homeDir := t.TempDir()
			workspace := chdirTemp(t)
			if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("namespace = \"home\"\n"), 0o644); err != nil {
				t.Fatalf("write home config: %v", err)
			}
			if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("namespace = \"project\"\n"), 0o644); err != nil {
				t.Fatalf("write project config: %v", err)
			}
			t.Setenv("HOME", homeDir)
			t.Setenv("SCFINGEST_TRUST_PROJECT_CONFIG", tt.trust)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Namespace != tt.want {
				t.Fatalf("expected namespace %q, got %q", tt.want, cfg.Namespace)
			}
			if (cfg.TrustedProjectConfigPath != "") != tt.wantTrust {
				t.Fatalf("unexpected trusted path %q", cfg.TrustedProjectConfigPath)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Root = "/tmp/objects"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default local config should validate: %v", err)
	}

	s3 := Default()
	s3.Storage.Backend = "s3"
	if err := s3.Validate(); err == nil {
		t.Fatal("expected missing bucket error")
	}

	bad := Default()
	bad.Storage.Backend = "ftp"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected unknown backend error")
	}

	tooBig := Default()
	tooBig.Storage.Backend = "memory"
	tooBig.Upload.MaxFileBytes = tooBig.Upload.MaxRequestBytes + 1
	if err := tooBig.Validate(); err == nil {
		t.Fatal("expected file limit error")
	}
}
