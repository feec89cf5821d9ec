package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("SERVER_HOST", "")
		t.Setenv("SERVER_PORT", "")
		t.Setenv("IMPORT_CHUNK_SIZE", "")
		t.Setenv("CORS_ORIGINS", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Addr != "localhost:5001" {
			t.Errorf("Expected localhost:5001, got %s", cfg.Server.Addr)
		}
		if cfg.Import.ChunkSize != 500 {
			t.Errorf("Expected chunk size 500, got %d", cfg.Import.ChunkSize)
		}
		if len(cfg.CORS.AllowedOrigins) != 2 {
			t.Errorf("Expected default origins, got %v", cfg.CORS.AllowedOrigins)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "8080")
		t.Setenv("IMPORT_CHUNK_SIZE", "50")
		t.Setenv("ALLOW_RESET", "true")
		t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("IBKR_FLEX_TOKEN", "tok")
		t.Setenv("IBKR_FLEX_QUERY_ID", "123")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != "8080" || cfg.Import.ChunkSize != 50 || !cfg.Database.AllowReset {
			t.Errorf("Unexpected config %+v", cfg)
		}
		if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("Unexpected origins %v", cfg.CORS.AllowedOrigins)
		}
		if !cfg.IBKR.Enabled() {
			t.Error("Expected Flex download to be enabled")
		}
	})

	t.Run("invalid chunk size", func(t *testing.T) {
		for _, v := range []string{"abc", "0", "-5"} {
			t.Setenv("IMPORT_CHUNK_SIZE", v)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for IMPORT_CHUNK_SIZE=%s", v)
			}
		}
	})
}

func TestLoadRules(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		rules, err := LoadRules("")
		if err != nil {
			t.Fatal(err)
		}
		if rules.Validation.LargeQuantity != 10000 {
			t.Errorf("Expected default threshold, got %v", rules.Validation.LargeQuantity)
		}
	})

	t.Run("file overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		content := "unit_corrections:\n  SPY: 100\n  QQQ: 10\nvalidation:\n  large_quantity: 2500\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		rules, err := LoadRules(path)
		if err != nil {
			t.Fatalf("LoadRules failed: %v", err)
		}
		if rules.UnitCorrections["QQQ"] != 10 || rules.Validation.LargeQuantity != 2500 {
			t.Errorf("Unexpected rules %+v", rules)
		}
	})

	t.Run("invalid files", func(t *testing.T) {
		dir := t.TempDir()
		bad := filepath.Join(dir, "bad.yaml")
		_ = os.WriteFile(bad, []byte("unit_corrections: [1, 2"), 0o600)
		negative := filepath.Join(dir, "negative.yaml")
		_ = os.WriteFile(negative, []byte("unit_corrections:\n  SPY: -1\n"), 0o600)

		for _, path := range []string{bad, negative, filepath.Join(dir, "missing.yaml")} {
			if _, err := LoadRules(path); err == nil {
				t.Errorf("Expected error for %s", filepath.Base(path))
			}
		}
	})
}
