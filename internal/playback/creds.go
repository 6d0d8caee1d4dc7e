package playback

import "sync"

// Storage keys live under a fixed prefix so the gate never collides with the
// host application's own persisted state.
const keyPrefix = "uvf."

const (
	keyAccessToken  = keyPrefix + "sessionToken"
	keyRefreshToken = keyPrefix + "refreshToken"
	keyUserID       = keyPrefix + "userId"
	keyUserEmail    = keyPrefix + "userEmail"
)

// Storage is the persistence the host environment supplies
// (localStorage-like: flat string keys and values).
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Identity is the locally cached login.
type Identity struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
}

// CredentialStore persists the viewer's identity under namespaced keys.
type CredentialStore struct {
	storage Storage
}

func NewCredentialStore(storage Storage) *CredentialStore {
	return &CredentialStore{storage: storage}
}

func (c *CredentialStore) SaveIdentity(id Identity) {
	c.storage.Set(keyAccessToken, id.AccessToken)
	c.storage.Set(keyRefreshToken, id.RefreshToken)
	c.storage.Set(keyUserID, id.UserID)
	c.storage.Set(keyUserEmail, id.Email)
}

// Identity returns the cached login. A missing access token or user id means
// no usable identity, regardless of what else is cached.
func (c *CredentialStore) Identity() (Identity, bool) {
	token, okT := c.storage.Get(keyAccessToken)
	userID, okU := c.storage.Get(keyUserID)
	if !okT || !okU || token == "" || userID == "" {
		return Identity{}, false
	}
	email, _ := c.storage.Get(keyUserEmail)
	refresh, _ := c.storage.Get(keyRefreshToken)
	return Identity{UserID: userID, Email: email, AccessToken: token, RefreshToken: refresh}, true
}

// Clear wipes the cached login, for logout and for invalid-session recovery.
func (c *CredentialStore) Clear() {
	c.storage.Delete(keyAccessToken)
	c.storage.Delete(keyRefreshToken)
	c.storage.Delete(keyUserID)
	c.storage.Delete(keyUserEmail)
}

// MemoryStorage is an in-process Storage, used when the host supplies none.
type MemoryStorage struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *MemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}
