package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          int
	Token         string
	CGXPath       string
	Viewer        string
	ViewersDir    string
	ScriptsDir    string
	DBPath        string
	AlignWindows  bool
	UsePTY        bool
	Backend       string
	LogLevel      string
	StartModel    string
	HelpTitle     string
	LocateTimeout time.Duration
	ConfigPath    string
	PrintToken    bool
}

func defaults(homeDir string) *Config {
	base := filepath.Join(homeDir, ".config", "cae")
	return &Config{
		Port:          8766,
		Viewer:        "cgx",
		ViewersDir:    filepath.Join(base, "viewers"),
		ScriptsDir:    filepath.Join(base, "scripts"),
		DBPath:        filepath.Join(base, "cae.db"),
		AlignWindows:  true,
		Backend:       "auto",
		LogLevel:      "info",
		LocateTimeout: 5 * time.Second,
		ConfigPath:    filepath.Join(base, "config"),
	}
}

func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return load(flag.CommandLine, os.Args[1:], defaults(homeDir))
}

func load(fs *flag.FlagSet, args []string, cfg *Config) (*Config, error) {
	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "server port (1-65535)")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "authentication token (auto-generated if empty)")
	fs.StringVar(&cfg.CGXPath, "cgx", cfg.CGXPath, "path to the cgx executable (overrides the viewer profile)")
	fs.StringVar(&cfg.Viewer, "viewer", cfg.Viewer, "viewer profile id")
	fs.StringVar(&cfg.ViewersDir, "viewers-dir", cfg.ViewersDir, "directory with viewer profile yaml files")
	fs.StringVar(&cfg.ScriptsDir, "scripts-dir", cfg.ScriptsDir, "directory startup scripts are written to")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "session history database path")
	fs.BoolVar(&cfg.AlignWindows, "align", cfg.AlignWindows, "align windows after the viewer starts")
	fs.BoolVar(&cfg.UsePTY, "pty", cfg.UsePTY, "run the viewer on a pseudo-terminal")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "window system backend (auto, memory)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.HelpTitle, "help-title", cfg.HelpTitle, "title of the browser window used for help pages")
	fs.DurationVar(&cfg.LocateTimeout, "locate-timeout", cfg.LocateTimeout, "how long to wait for the viewer window")
	fs.BoolVar(&cfg.PrintToken, "print-token", false, "print token to stdout (for local debugging)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		cfg.StartModel = fs.Arg(0)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}
	if cfg.LocateTimeout <= 0 {
		return nil, fmt.Errorf("invalid locate timeout %s", cfg.LocateTimeout)
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = token
		if err := cfg.saveToken(); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LogLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		switch key {
		case "Token":
			c.Token = value
		case "Port":
			var port int
			if _, err := fmt.Sscanf(value, "%d", &port); err != nil {
				return fmt.Errorf("invalid Port value %q: %w", value, err)
			}
			c.Port = port
		case "CGXPath":
			c.CGXPath = value
		case "Viewer":
			c.Viewer = value
		case "ViewersDir":
			c.ViewersDir = value
		case "ScriptsDir":
			c.ScriptsDir = value
		case "DBPath":
			c.DBPath = value
		case "AlignWindows", "UsePTY":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid %s value %q: %w", key, value, err)
			}
			if key == "AlignWindows" {
				c.AlignWindows = b
			} else {
				c.UsePTY = b
			}
		case "Backend":
			c.Backend = value
		case "LogLevel":
			c.LogLevel = value
		case "StartModel":
			c.StartModel = value
		case "HelpTitle":
			c.HelpTitle = value
		case "LocateTimeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid LocateTimeout value %q: %w", value, err)
			}
			c.LocateTimeout = d
		}
	}
	return nil
}

// saveToken writes Token into the config file. An existing Token line is
// replaced; every other line is kept as the user wrote it.
func (c *Config) saveToken() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	tokenLine := "Token=" + c.Token
	var lines []string
	replaced := false
	if len(data) > 0 {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}
	for i, line := range lines {
		parts := strings.SplitN(strings.TrimSpace(line), "=", 2)
		if len(parts) == 2 && strings.TrimSpace(parts[0]) == "Token" {
			lines[i] = tokenLine
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, tokenLine)
	}
	return os.WriteFile(c.ConfigPath, []byte(strings.Join(lines, "\n")+"\n"), 0600)
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
