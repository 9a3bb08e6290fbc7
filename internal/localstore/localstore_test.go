package localstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileGetSetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "local.json")
	f := NewFile(path)

	if _, ok, err := f.Get("k"); err != nil || ok {
		t.Fatalf("Get on missing file = ok %v, err %v", ok, err)
	}
	if err := f.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := NewFile(path).Get("k"); err != nil || !ok || v != "v" {
		t.Fatalf("Get after Set = %q, %v, %v", v, ok, err)
	}
	if err := f.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := f.Remove("k"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if _, ok, _ := f.Get("k"); ok {
		t.Error("key still present after Remove")
	}
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")
	if err := os.WriteFile(path, []byte("[1,2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFile(path).Get("k"); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func TestGate(t *testing.T) {
	store := NewFile(filepath.Join(t.TempDir(), "local.json"))
	g := NewGate(store, "admin", "password")

	tests := []struct {
		user, pass string
		want       bool
	}{
		{"admin", "password", true},
		{"admin", "Password", false},
		{"root", "password", false},
		{"", "", false},
		{"admin", "password1", false},
	}
	for _, tt := range tests {
		if got := g.Check(tt.user, tt.pass); got != tt.want {
			t.Errorf("Check(%q, %q) = %v, want %v", tt.user, tt.pass, got, tt.want)
		}
	}

	if err := g.Login("admin", "nope"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("Login with bad password = %v", err)
	}
	if ok, _ := g.IsAuthenticated(); ok {
		t.Fatal("authenticated after failed login")
	}
	if err := g.Login("admin", "password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if ok, err := g.IsAuthenticated(); err != nil || !ok {
		t.Fatalf("IsAuthenticated = %v, %v", ok, err)
	}
	if v, _, _ := store.Get("basicAuth"); v != "authenticated" {
		t.Errorf("stored flag = %q", v)
	}
	if err := g.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if ok, _ := g.IsAuthenticated(); ok {
		t.Error("authenticated after logout")
	}
}
