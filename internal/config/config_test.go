package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wuhu.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "databasePath: /tmp/wuhu.db\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != DefaultHost {
		t.Errorf("expected default host %q, got %q", DefaultHost, cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, "host: 0.0.0.0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing databasePath")
	}
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	path := writeConfig(t, "databasePath: /tmp/wuhu.db\nllm:\n  openai:\n    apiKey: from-file\n")
	t.Setenv("WUHU_OPENAI_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM["openai"].APIKey != "from-env" {
		t.Errorf("expected env override, got %q", cfg.LLM["openai"].APIKey)
	}
}

func TestLoad_DuplicateEnvironmentName(t *testing.T) {
	path := writeConfig(t, `
databasePath: /tmp/wuhu.db
environments:
  - name: default
    type: local
    path: /work
  - name: default
    type: local
    path: /work2
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate environment name")
	}
}

func TestLoad_UnknownEnvironmentType(t *testing.T) {
	path := writeConfig(t, `
databasePath: /tmp/wuhu.db
environments:
  - name: default
    type: docker
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown environment type")
	}
}

func TestFindEnvironment(t *testing.T) {
	cfg := &Config{Environments: []EnvironmentConfig{{Name: "default", Type: "local", Path: "/work"}}}
	env, ok := cfg.FindEnvironment("default")
	if !ok || env.Path != "/work" {
		t.Fatalf("expected to find environment, got %+v ok=%v", env, ok)
	}
	if _, ok := cfg.FindEnvironment("missing"); ok {
		t.Fatal("expected not to find missing environment")
	}
}
