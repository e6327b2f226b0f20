package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateInstanceID reads the bridge's instance id from dataDir,
// generating and persisting a UUIDv7 on first use. The id keeps the
// broker client id stable across restarts, so the broker resumes the
// same session instead of accumulating new ones.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "mqtt_instance_id")

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance id: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist instance id to %s: %w", path, err)
	}
	return id.String(), nil
}

// clientID combines the configured prefix with the random tail of the
// instance id. UUIDv7's leading blocks are a timestamp.
func clientID(prefix, instanceID string) string {
	tail := instanceID[strings.LastIndex(instanceID, "-")+1:]
	if tail == "" {
		return prefix
	}
	return prefix + "-" + tail
}
