package client

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFileName = "player_id"

// ResolvePlayerID returns the stable identity for this installation. A fixed
// id (a chosen character name) wins outright; otherwise the persisted id is
// reused, or a fresh one is generated and persisted so reconnects keep the
// same identity.
func ResolvePlayerID(fixed string) string {
	if fixed != "" {
		return fixed
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return generatePlayerID()
	}
	return resolvePlayerIDAt(filepath.Join(dir, "eriswood", identityFileName))
}

func resolvePlayerIDAt(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := generatePlayerID()
	// Best effort: if the id cannot be persisted the session still works, it
	// just gets a new identity next run.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		_ = os.WriteFile(path, []byte(id), 0o644)
	}
	return id
}

func generatePlayerID() string {
	return "player_" + uuid.NewString()
}
