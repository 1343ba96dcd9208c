package controller

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/errwatch/errwatch/internal/pkg/security"
	"github.com/errwatch/errwatch/internal/report"
)

// User represents a dashboard user profile.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"` // bcrypt hashed
	Role         string `json:"role"`          // "super_admin", "admin", "viewer"
	CreatedAt    int64  `json:"created_at"`
}

// APIToken represents a machine-to-machine access key, e.g. for an
// exporter pulling the aggregated CSV.
type APIToken struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Token     string `json:"token"` // ew-xxxxxx
	Type      string `json:"type"`  // "write" (append records), "read" (reports)
	CreatedBy string `json:"created_by"`
}

// Config holds the runtime settings the dashboard can change without a
// restart.
type Config struct {
	DefaultZone     string `json:"default_zone"`     // e.g. "Asia/Tokyo"
	BackupRetention string `json:"backup_retention"` // e.g. "720h"
	DefaultTopN     int    `json:"default_top_n"`
}

// MetaData is the top-level container for system metadata.
type MetaData struct {
	Initialized bool       `json:"initialized"`
	Users       []User     `json:"users"`
	Tokens      []APIToken `json:"tokens"`
	Config      Config     `json:"config"`
}

// Store handles the persistence and in-memory management of MetaData.
// The file on disk is AES-GCM encrypted.
type Store struct {
	filePath string
	mu       sync.RWMutex
	data     *MetaData
}

// NewStore creates a new metadata store with default config.
func NewStore(filePath string) *Store {
	return &Store{
		filePath: filePath,
		data: &MetaData{
			Users:  make([]User, 0),
			Tokens: make([]APIToken, 0),
			Config: Config{
				DefaultZone:     "Asia/Tokyo",
				BackupRetention: "720h",
				DefaultTopN:     report.TopNDefault,
			},
		},
	}
}

// Load reads metadata from disk.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		s.data.Initialized = false
		return nil
	}

	encrypted, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if len(encrypted) == 0 {
		return nil
	}

	// No fallback to plain JSON: a file that fails to decrypt is an error.
	decrypted, err := security.Decrypt(encrypted)
	if err != nil {
		return errors.New("failed to decrypt metadata (invalid key or corrupted file): " + err.Error())
	}
	return json.Unmarshal(decrypted, s.data)
}

// Save writes metadata to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	jsonData, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	encrypted, err := security.Encrypt(jsonData)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, encrypted, 0600)
}

// IsInitialized reports whether the first super admin has been created.
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Initialized
}

// GetData returns a copy of the current metadata.
func (s *Store) GetData() MetaData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := MetaData{
		Initialized: s.data.Initialized,
		Users:       make([]User, len(s.data.Users)),
		Tokens:      make([]APIToken, len(s.data.Tokens)),
		Config:      s.data.Config,
	}
	copy(out.Users, s.data.Users)
	copy(out.Tokens, s.data.Tokens)
	return out
}

// InitializeSystem creates the first super admin and marks the system
// initialized.
func (s *Store) InitializeSystem(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Initialized {
		return os.ErrExist
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.data.Users = append(s.data.Users, User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         "super_admin",
		CreatedAt:    time.Now().Unix(),
	})
	s.data.Initialized = true

	return s.saveLocked()
}

// AddUser adds a new user.
func (s *Store) AddUser(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if existing.Username == u.Username {
			return os.ErrExist
		}
	}
	s.data.Users = append(s.data.Users, u)
	return s.saveLocked()
}

// DeleteUser removes a user by username.
func (s *Store) DeleteUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.data.Users {
		if u.Username == username {
			s.data.Users = append(s.data.Users[:i], s.data.Users[i+1:]...)
			return s.saveLocked()
		}
	}
	return os.ErrNotExist
}

// GetUser returns a user by username (case-insensitive).
func (s *Store) GetUser(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.data.Users {
		if strings.EqualFold(u.Username, username) {
			return u, true
		}
	}
	return User{}, false
}

// AddToken adds a new API token.
func (s *Store) AddToken(t APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Tokens = append(s.data.Tokens, t)
	return s.saveLocked()
}

// DeleteToken removes a token by ID.
func (s *Store) DeleteToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.data.Tokens {
		if t.ID == id {
			s.data.Tokens = append(s.data.Tokens[:i], s.data.Tokens[i+1:]...)
			return s.saveLocked()
		}
	}
	return os.ErrNotExist
}

// GetTokenByValue finds a token by its secret value.
func (s *Store) GetTokenByValue(val string) (APIToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data.Tokens {
		if t.Token == val {
			return t, true
		}
	}
	return APIToken{}, false
}

// UpdateConfig replaces the runtime configuration.
func (s *Store) UpdateConfig(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Config = cfg
	return s.saveLocked()
}
