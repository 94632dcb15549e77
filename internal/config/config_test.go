package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the data dir at a temp dir so a real ~/.reeldraft config
// never leaks into tests.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	for _, k := range []string{EnvPort, EnvLogLevel, EnvConfigFile, EnvAutosaveDelayMs,
		EnvDurationBudgetS, EnvExportQuality, EnvFFmpegPath, EnvMetricsEnabled} {
		t.Setenv(k, "")
	}
	return dir
}

func TestNew_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != "info" {
		t.Errorf("LogLevel() = %q, want info", cfg.LogLevel())
	}
	if cfg.AutosaveDelay() != 1500*time.Millisecond {
		t.Errorf("AutosaveDelay() = %v, want 1.5s", cfg.AutosaveDelay())
	}
	if cfg.DurationBudgetSeconds() != 60 {
		t.Errorf("DurationBudgetSeconds() = %v, want 60", cfg.DurationBudgetSeconds())
	}
	if cfg.ExportQuality() != "high" || !cfg.MetricsEnabled() || cfg.FFmpegPath() != "" {
		t.Errorf("unexpected defaults: quality=%s metrics=%v ffmpeg=%q", cfg.ExportQuality(), cfg.MetricsEnabled(), cfg.FFmpegPath())
	}
	if cfg.DBPath() != filepath.Join(dir, "reeldraft.db") {
		t.Errorf("DBPath() = %s", cfg.DBPath())
	}
	if cfg.MediaDir() != filepath.Join(dir, "drafts") || cfg.ExportDir() != filepath.Join(dir, "exports") {
		t.Errorf("MediaDir() = %s, ExportDir() = %s", cfg.MediaDir(), cfg.ExportDir())
	}
	if cfg.ConfigFile() != "" {
		t.Errorf("ConfigFile() = %q, want none", cfg.ConfigFile())
	}
}

func TestNew_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	yaml := "port: 9000\nlog_level: debug\nautosave_delay_ms: 500\nexport_quality: low\nmetrics_enabled: false\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(EnvPort, "9100")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port() = %d, want env override 9100", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q, want debug from file", cfg.LogLevel())
	}
	if cfg.AutosaveDelay() != 500*time.Millisecond {
		t.Errorf("AutosaveDelay() = %v, want 500ms", cfg.AutosaveDelay())
	}
	if cfg.ExportQuality() != "low" || cfg.MetricsEnabled() {
		t.Errorf("quality = %s, metrics = %v", cfg.ExportQuality(), cfg.MetricsEnabled())
	}
	if cfg.ConfigFile() == "" {
		t.Error("ConfigFile() empty after loading a file")
	}
}

func TestNew_ExplicitConfigFileMissing(t *testing.T) {
	dir := isolate(t)
	t.Setenv(EnvConfigFile, filepath.Join(dir, "nope.yaml"))

	if _, err := New(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port not a number", EnvPort, "abc"},
		{"port out of range", EnvPort, "70000"},
		{"negative autosave", EnvAutosaveDelayMs, "-1"},
		{"zero budget", EnvDurationBudgetS, "0"},
		{"unknown quality", EnvExportQuality, "ultra"},
		{"bad bool", EnvMetricsEnabled, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)
			if _, err := New(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("port: 1\nbogus: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestDecode_Empty(t *testing.T) {
	fc, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if fc.Port != nil {
		t.Errorf("Port = %v, want unset", *fc.Port)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}
	if got := expandHome("~/media"); got != filepath.Join(home, "media") {
		t.Errorf("expandHome(~/media) = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome(/abs/path) = %q", got)
	}
}
