package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/wren/internal/defaults"
)

// runInit prepares dir as a Wren working directory: a data directory
// and a starter config.yaml. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Wren in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}
	fmt.Fprintf(w, "  ✓ %s/\n", dataDir)

	// The config may hold API keys and broker passwords.
	if err := writeIfMissing(w, filepath.Join(dir, "config.yaml"), defaults.ConfigYAML, 0o600); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to choose a provider, then run: wren serve")
	return nil
}

// writeIfMissing writes content to path unless the file already exists,
// reporting what it did on w.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  - %s (exists, skipping)\n", path)
		return nil
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
