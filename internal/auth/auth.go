// Package auth provides the identity of the signed-in user.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"timesheet/internal/domain"
)

// Static always reports the same user. A zero UID means nobody is signed in.
type Static struct {
	User domain.User
}

// CurrentUser implements ports.AuthProvider.
func (s Static) CurrentUser(context.Context) (*domain.User, error) {
	if s.User.UID == "" {
		return nil, nil
	}
	u := s.User
	return &u, nil
}

// readJSON loads path into v. A missing file reports false without error.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("corrupt %s (delete %s to sign in again): %w", filepath.Base(path), path, err)
	}
	return true, nil
}

// writeJSON stores v at path through a temp file and rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving %s: %w", filepath.Base(path), err)
	}
	return nil
}
