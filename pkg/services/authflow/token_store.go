package authflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

// TokenStore persists one provider's token between runs.
type TokenStore interface {
	Save(token *oauth2.Token) error
	Load() (*oauth2.Token, error)
	Clear() error
}

// FileTokenStore implements TokenStore by persisting tokens to disk.
// It stores OAuth tokens in JSON format with secure file permissions (0600).
// Tokens are stored per-provider using unique filenames in the user's config
// directory. Thread-safe operations are provided through mutex protection.
type FileTokenStore struct {
	filePath string
	mutex    sync.RWMutex
}

// NewFileTokenStore creates a new file-based token store using the default location
func NewFileTokenStore(providerName string) *FileTokenStore {
	filename := fmt.Sprintf("tokens-%s.json", providerName)
	filePath := filepath.Join(xdg.ConfigHome, "oauth-bouncer", filename)

	return NewFileTokenStoreWithPath(filePath)
}

// NewFileTokenStoreWithPath creates a new file-based token store with a custom file path
func NewFileTokenStoreWithPath(filePath string) *FileTokenStore {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		slog.Warn("Failed to create token storage directory", "error", err, "path", filepath.Dir(filePath))
	}

	return &FileTokenStore{
		filePath: filePath,
	}
}

// Load retrieves the token from the file
func (f *FileTokenStore) Load() (*oauth2.Token, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if _, err := os.Stat(f.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no token available")
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		slog.Error("Failed to read token file", "path", f.filePath, "error", err)
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		slog.Error("Failed to parse token file", "path", f.filePath, "error", err)
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	slog.Debug("Loaded token from file", "path", f.filePath, "expires_at", token.Expiry)
	return &token, nil
}

// Save saves the token to the file
func (f *FileTokenStore) Save(token *oauth2.Token) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(f.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	slog.Debug("Token saved to file", "path", f.filePath)
	return nil
}

// Clear removes the stored token file
func (f *FileTokenStore) Clear() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := os.Remove(f.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}

	slog.Debug("Token file cleared", "path", f.filePath)
	return nil
}

// GetTokenFilePath returns the path to the token file (for debugging/info purposes)
func (f *FileTokenStore) GetTokenFilePath() string {
	return f.filePath
}
