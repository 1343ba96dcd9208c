package controller

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/errwatch/errwatch/internal/pkg/security"
	"github.com/errwatch/errwatch/internal/report"
)

func newTestMeta(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	if _, err := security.InitMasterKey(filepath.Join(dir, "master.key")); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "meta.enc")
	return NewStore(path), path
}

func TestDefaultsBeforeLoad(t *testing.T) {
	s, _ := newTestMeta(t)
	cfg := s.GetData().Config
	if cfg.DefaultZone != "Asia/Tokyo" {
		t.Errorf("default zone = %q", cfg.DefaultZone)
	}
	if cfg.DefaultTopN != report.TopNDefault {
		t.Errorf("default topn = %d", cfg.DefaultTopN)
	}
	if s.IsInitialized() {
		t.Error("fresh store must not be initialized")
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, _ := newTestMeta(t)
	if err := s.Load(); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if s.IsInitialized() {
		t.Error("missing file must leave the store uninitialized")
	}
}

func TestInitializeAndReload(t *testing.T) {
	s, path := newTestMeta(t)
	if err := s.InitializeSystem("admin", "secret"); err != nil {
		t.Fatal(err)
	}
	if !s.IsInitialized() {
		t.Fatal("store not marked initialized")
	}
	if err := s.InitializeSystem("again", "x"); err == nil {
		t.Error("second initialization must fail")
	}

	// The file on disk is not plaintext JSON.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 || raw[0] == '{' {
		t.Error("metadata file looks unencrypted")
	}

	// A fresh store reloads the same state.
	s2 := NewStore(path)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	user, ok := s2.GetUser("admin")
	if !ok {
		t.Fatal("admin not found after reload")
	}
	if user.Role != "super_admin" {
		t.Errorf("role = %q", user.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret")); err != nil {
		t.Errorf("password hash mismatch: %v", err)
	}
}

func TestUserLookupCaseInsensitive(t *testing.T) {
	s, _ := newTestMeta(t)
	if err := s.InitializeSystem("Admin", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetUser("admin"); !ok {
		t.Error("lookup should be case-insensitive")
	}
}

func TestAddDeleteUser(t *testing.T) {
	s, _ := newTestMeta(t)
	u := User{Username: "viewer1", Role: "viewer"}
	if err := s.AddUser(u); err != nil {
		t.Fatal(err)
	}
	if err := s.AddUser(u); err == nil {
		t.Error("duplicate username must fail")
	}
	if err := s.DeleteUser("viewer1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteUser("viewer1"); err == nil {
		t.Error("deleting a missing user must fail")
	}
}

func TestTokens(t *testing.T) {
	s, _ := newTestMeta(t)
	tok := APIToken{ID: "t1", Name: "exporter", Token: "ew-abc", Type: "read"}
	if err := s.AddToken(tok); err != nil {
		t.Fatal(err)
	}

	got, ok := s.GetTokenByValue("ew-abc")
	if !ok || got.ID != "t1" {
		t.Errorf("lookup = %+v, %v", got, ok)
	}
	if _, ok := s.GetTokenByValue("ew-other"); ok {
		t.Error("unknown token value matched")
	}

	if err := s.DeleteToken("t1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetTokenByValue("ew-abc"); ok {
		t.Error("deleted token still resolvable")
	}
}

func TestGetDataReturnsCopies(t *testing.T) {
	s, _ := newTestMeta(t)
	if err := s.AddUser(User{Username: "a"}); err != nil {
		t.Fatal(err)
	}
	data := s.GetData()
	data.Users[0].Username = "mutated"
	if u, _ := s.GetUser("a"); u.Username != "a" {
		t.Error("GetData leaked internal state")
	}
}

func TestUpdateConfig(t *testing.T) {
	s, path := newTestMeta(t)
	cfg := Config{DefaultZone: "UTC", BackupRetention: "24h", DefaultTopN: 5}
	if err := s.UpdateConfig(cfg); err != nil {
		t.Fatal(err)
	}

	s2 := NewStore(path)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	if got := s2.GetData().Config; got != cfg {
		t.Errorf("config after reload = %+v, want %+v", got, cfg)
	}
}
