package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Accounts.From != "" || config.Accounts.To != "" {
			t.Error("expected empty default credentials")
		}

		if config.Migration.DelayHours != 1.0 {
			t.Errorf("expected delay_hours 1.0, got %v", config.Migration.DelayHours)
		}

		if !config.Migration.PauseSource {
			t.Error("expected pause_source true by default")
		}

		if config.Limits.ListPageSize != 100 {
			t.Errorf("expected list_page_size 100, got %d", config.Limits.ListPageSize)
		}

		if config.Limits.MaxRunning != 0 || config.Limits.PerSecond != 0 {
			t.Error("expected zeroed rate overrides by default")
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Migration.DelayHours != defaultConfig.Migration.DelayHours {
			t.Errorf("created config delay doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[accounts]
from = "sk_test_from"
to = "sk_test_to"

[migration]
delay_hours = 48.0
pause_source = false

[limits]
max_running = 8
per_second = 16.0
list_page_size = 25
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Accounts.From != "sk_test_from" {
			t.Errorf("expected from sk_test_from, got %s", config.Accounts.From)
		}

		if config.Migration.DelayHours != 48.0 {
			t.Errorf("expected delay_hours 48.0, got %v", config.Migration.DelayHours)
		}

		if config.Migration.PauseSource {
			t.Error("expected pause_source false")
		}

		if config.Limits.MaxRunning != 8 || config.Limits.PerSecond != 16.0 {
			t.Errorf("unexpected limits: %+v", config.Limits)
		}
	})
}

func TestResolveKey(t *testing.T) {
	t.Run("Flag Wins", func(t *testing.T) {
		t.Setenv(EnvSourceKey, "sk_test_env")

		key, err := ResolveKey("sk_test_flag", EnvSourceKey, "sk_test_file")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "sk_test_flag" {
			t.Errorf("expected the flag value, got %s", key)
		}
	})

	t.Run("Environment Beats the File", func(t *testing.T) {
		t.Setenv(EnvSourceKey, "sk_test_env")

		key, err := ResolveKey("", EnvSourceKey, "sk_test_file")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "sk_test_env" {
			t.Errorf("expected the environment value, got %s", key)
		}
	})

	t.Run("File Is the Fallback", func(t *testing.T) {
		t.Setenv(EnvSourceKey, "")

		key, err := ResolveKey("", EnvSourceKey, "sk_test_file")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "sk_test_file" {
			t.Errorf("expected the file value, got %s", key)
		}
	})

	t.Run("Nothing Set Fails", func(t *testing.T) {
		t.Setenv(EnvSourceKey, "")

		_, err := ResolveKey("", EnvSourceKey, "")
		if !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}
