package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.CacheBackend != "file" {
		t.Errorf("Expected cache backend 'file', got '%s'", cfg.CacheBackend)
	}
	if !strings.HasSuffix(cfg.CacheDir, "trend-comb") {
		t.Errorf("Expected cache dir under the XDG cache home, got '%s'", cfg.CacheDir)
	}
	if cfg.SQLitePath != filepath.Join(cfg.CacheDir, "trends.db") {
		t.Errorf("Expected sqlite path inside cache dir, got '%s'", cfg.SQLitePath)
	}
	if cfg.QueryCacheCapacity != 256 {
		t.Errorf("Expected query cache capacity 256, got %d", cfg.QueryCacheCapacity)
	}
	if cfg.Version == "" {
		t.Error("Expected version to be set")
	}
}

func TestLoadArgsOverrides(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"--port", "9090",
		"--cache-backend", "sqlite",
		"--cache-dir", "/tmp/trends",
		"--twitter-bearer-token", "token",
		"--debug",
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "9090" || cfg.CacheBackend != "sqlite" || !cfg.Debug {
		t.Errorf("Unexpected configuration: %+v", cfg)
	}
	if cfg.SQLitePath != filepath.Join("/tmp/trends", "trends.db") {
		t.Errorf("Expected sqlite path '/tmp/trends/trends.db', got '%s'", cfg.SQLitePath)
	}
	if cfg.TwitterBearerToken != "token" {
		t.Errorf("Expected bearer token 'token', got '%s'", cfg.TwitterBearerToken)
	}
}

func TestLoadArgsInvalidBackend(t *testing.T) {
	if _, err := LoadArgs([]string{"--cache-backend", "postgres"}); err == nil {
		t.Error("Expected error for unsupported cache backend")
	}
}

func TestLoadArgsCredentialFiles(t *testing.T) {
	tempDir := t.TempDir()
	twitterFile := filepath.Join(tempDir, "twitter-api.json")
	serpFile := filepath.Join(tempDir, "serpapi.json")

	if err := os.WriteFile(twitterFile, []byte(`{"bearer_token": "from-file"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(serpFile, []byte(`{"api_key": " serp-key "}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadArgs([]string{"--twitter-credentials", twitterFile, "--serpapi-credentials", serpFile})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TwitterBearerToken != "from-file" {
		t.Errorf("Expected bearer token 'from-file', got '%s'", cfg.TwitterBearerToken)
	}
	if cfg.SerpAPIKey != "serp-key" {
		t.Errorf("Expected api key 'serp-key', got '%s'", cfg.SerpAPIKey)
	}

	cfg, err = LoadArgs([]string{"--twitter-credentials", twitterFile, "--twitter-bearer-token", "explicit"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TwitterBearerToken != "explicit" {
		t.Errorf("Expected explicit token to win, got '%s'", cfg.TwitterBearerToken)
	}
}

func TestReadCredential(t *testing.T) {
	tempDir := t.TempDir()
	valid := filepath.Join(tempDir, "valid.json")
	invalid := filepath.Join(tempDir, "invalid.json")

	if err := os.WriteFile(valid, []byte(`{"api_key": "abc", "count": 3}`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(invalid, []byte(`not json`), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		field   string
		want    string
		wantErr bool
	}{
		{"present", valid, "api_key", "abc", false},
		{"absent field", valid, "bearer_token", "", false},
		{"non-string field", valid, "count", "", false},
		{"missing file", filepath.Join(tempDir, "missing.json"), "api_key", "", false},
		{"malformed file", invalid, "api_key", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadCredential(tt.path, tt.field)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}
