package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/user/cae/configs"
)

var defaultViewerFiles = []string{
	"cgx.yaml",
}

func ensureDefaults(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read registry dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && IsProfileFile(entry.Name()) {
			return nil
		}
	}

	for _, file := range defaultViewerFiles {
		content, err := configs.ViewerDefaults.ReadFile(path.Join("viewers", file))
		if err != nil {
			return fmt.Errorf("read embedded default %q: %w", file, err)
		}
		dst := filepath.Join(dir, file)
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			return fmt.Errorf("write default %q: %w", dst, err)
		}
	}

	return nil
}

// InstallScripts writes the shipped startup scripts into dir. Existing files
// are left alone so local edits survive.
func InstallScripts(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scripts dir: %w", err)
	}
	entries, err := fs.ReadDir(configs.ScriptDefaults, "scripts")
	if err != nil {
		return fmt.Errorf("read embedded scripts: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".fbd") {
			continue
		}
		dst := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		content, err := configs.ScriptDefaults.ReadFile(path.Join("scripts", entry.Name()))
		if err != nil {
			return fmt.Errorf("read embedded script %q: %w", entry.Name(), err)
		}
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			return fmt.Errorf("write script %q: %w", dst, err)
		}
	}
	return nil
}
