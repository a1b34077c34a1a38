package config

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := defaults(t.TempDir())
	cfg.ConfigPath = filepath.Join(t.TempDir(), "config")
	return cfg
}

func TestLoadFromFileParsesViewerKeys(t *testing.T) {
	cfg := testConfig(t)

	content := "# local\nPort=9999\nToken=test-token\nCGXPath=/opt/cgx/cgx\nDBPath=/tmp/custom/cae.db\n" +
		"AlignWindows=false\nUsePTY=true\nLocateTimeout=8s\nHelpTitle=Firefox\nUnknown=1\n"
	if err := os.WriteFile(cfg.ConfigPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}

	if err := cfg.loadFromFile(); err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}

	if cfg.Port != 9999 || cfg.Token != "test-token" {
		t.Fatalf("Port/Token = %d/%q", cfg.Port, cfg.Token)
	}
	if cfg.CGXPath != "/opt/cgx/cgx" {
		t.Fatalf("CGXPath = %q", cfg.CGXPath)
	}
	if cfg.DBPath != "/tmp/custom/cae.db" {
		t.Fatalf("DBPath = %q, want /tmp/custom/cae.db", cfg.DBPath)
	}
	if cfg.AlignWindows || !cfg.UsePTY {
		t.Fatalf("AlignWindows/UsePTY = %v/%v, want false/true", cfg.AlignWindows, cfg.UsePTY)
	}
	if cfg.LocateTimeout != 8*time.Second {
		t.Fatalf("LocateTimeout = %s, want 8s", cfg.LocateTimeout)
	}
	if cfg.HelpTitle != "Firefox" {
		t.Fatalf("HelpTitle = %q", cfg.HelpTitle)
	}
}

func TestLoadFromFileRejectsBadValues(t *testing.T) {
	for _, content := range []string{"Port=abc\n", "UsePTY=maybe\n", "LocateTimeout=soon\n"} {
		cfg := testConfig(t)
		if err := os.WriteFile(cfg.ConfigPath, []byte(content), 0o600); err != nil {
			t.Fatalf("write config file error = %v", err)
		}
		if err := cfg.loadFromFile(); err == nil {
			t.Fatalf("loadFromFile(%q) error = nil", content)
		}
	}
}

func TestLoadFlagsOverrideFileAndGenerateToken(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.ConfigPath, []byte("Port=9000\nLogLevel=warn\n"), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}

	fs := flag.NewFlagSet("cae", flag.ContinueOnError)
	got, err := load(fs, []string{"-port", "9100", "-log-level", "debug", "job.frd"}, cfg)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if got.Port != 9100 {
		t.Fatalf("Port = %d, want 9100", got.Port)
	}
	if level, _ := got.SlogLevel(); level != slog.LevelDebug {
		t.Fatalf("SlogLevel() = %v, want debug", level)
	}
	if got.StartModel != "job.frd" {
		t.Fatalf("StartModel = %q, want job.frd", got.StartModel)
	}
	if len(got.Token) != 32 {
		t.Fatalf("Token = %q, want 32 hex chars", got.Token)
	}

	saved, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		t.Fatalf("read saved config error = %v", err)
	}
	if !strings.Contains(string(saved), "Token="+got.Token) {
		t.Fatalf("saved config = %q, want generated token", saved)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	cfg := testConfig(t)
	fs := flag.NewFlagSet("cae", flag.ContinueOnError)
	if _, err := load(fs, []string{"-port", "0"}, cfg); err == nil {
		t.Fatal("load() error = nil for port 0")
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	cfg := testConfig(t)
	fs := flag.NewFlagSet("cae", flag.ContinueOnError)
	if _, err := load(fs, []string{"-log-level", "chatty"}, cfg); err == nil {
		t.Fatal("load() error = nil for unknown level")
	}
}

func TestGeneratedTokenKeepsFileSettings(t *testing.T) {
	cfg := testConfig(t)
	content := "# my settings\nHelpTitle=Mozilla Firefox\nViewersDir=/srv/viewers\nScriptsDir=/srv/scripts\nStartModel=/srv/beam.frd\nToken=\n"
	if err := os.WriteFile(cfg.ConfigPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}

	fs := flag.NewFlagSet("cae", flag.ContinueOnError)
	first, err := load(fs, []string{"-log-level", "debug"}, cfg)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	saved, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		t.Fatalf("read saved config error = %v", err)
	}
	if strings.Contains(string(saved), "LogLevel") {
		t.Fatalf("saved config = %q, flag value must not be persisted", saved)
	}
	if strings.Count(string(saved), "Token=") != 1 {
		t.Fatalf("saved config = %q, want exactly one Token line", saved)
	}

	again := defaults(t.TempDir())
	again.ConfigPath = cfg.ConfigPath
	second, err := load(flag.NewFlagSet("cae", flag.ContinueOnError), nil, again)
	if err != nil {
		t.Fatalf("second load() error = %v", err)
	}
	if second.Token != first.Token {
		t.Fatalf("Token = %q, want %q", second.Token, first.Token)
	}
	if second.HelpTitle != "Mozilla Firefox" || second.ViewersDir != "/srv/viewers" ||
		second.ScriptsDir != "/srv/scripts" || second.StartModel != "/srv/beam.frd" {
		t.Fatalf("second load lost file settings: %+v", second)
	}
	if second.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want default info", second.LogLevel)
	}
}
