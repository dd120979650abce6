package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/adrg/xdg"
	"github.com/wailsapp/wails/v3/pkg/application"
)

// PresentationMode selects how a provider's authorize page is shown
type PresentationMode string

const (
	ModeWindow  PresentationMode = "window"
	ModeBrowser PresentationMode = "browser"
)

// ProviderConfig represents configuration for a single OAuth provider
type ProviderConfig struct {
	Name         string           `json:"name"`
	ClientID     string           `json:"client_id"`
	ClientSecret string           `json:"client_secret,omitempty"`
	AuthURL      string           `json:"auth_url"`
	TokenURL     string           `json:"token_url"`
	RedirectURL  string           `json:"redirect_url"`
	Scopes       []string         `json:"scopes,omitempty"`
	UsePKCE      bool             `json:"use_pkce"`
	Mode         PresentationMode `json:"mode,omitempty"`
	Enabled      bool             `json:"enabled"`
}

// Settings represents the application settings
type Settings struct {
	Providers   []ProviderConfig `json:"providers"`
	ListenAddr  string           `json:"listen_addr"`
	DefaultMode PresentationMode `json:"default_mode"`
}

// SettingsService handles loading and saving application settings
type SettingsService struct {
	settings       *Settings
	filePath       string
	settingsMutex  sync.RWMutex
	callbacks      []func(e *application.CustomEvent)
	callbacksMutex sync.RWMutex
}

// NewSettingsService creates a new settings service
func NewSettingsService() *SettingsService {
	return &SettingsService{
		settings: &Settings{
			Providers:   []ProviderConfig{},
			ListenAddr:  "localhost:8091",
			DefaultMode: ModeWindow,
		},
	}
}

// NewSettingsServiceWithPath creates a settings service reading from a custom
// file path instead of the xdg default
func NewSettingsServiceWithPath(filePath string) *SettingsService {
	s := NewSettingsService()
	s.filePath = filePath
	return s
}

// ServiceStartup is called when the service starts
func (s *SettingsService) ServiceStartup(ctx context.Context, options application.ServiceOptions) error {
	if s.filePath == "" {
		configDir, err := xdg.ConfigFile("oauth-bouncer")
		if err != nil {
			return fmt.Errorf("failed to get config directory: %w", err)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}

		s.filePath = filepath.Join(configDir, "settings.json")
	}

	// Load existing settings
	if err := s.Load(); err != nil {
		// If file doesn't exist, create default settings
		if os.IsNotExist(err) {
			if err := s.Save(); err != nil {
				return fmt.Errorf("failed to create default settings: %w", err)
			}
		} else {
			return fmt.Errorf("failed to load settings: %w", err)
		}
	}

	return nil
}

// Load reads settings from disk
func (s *SettingsService) Load() error {
	s.settingsMutex.Lock()
	defer s.settingsMutex.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}
	if settings.DefaultMode == "" {
		settings.DefaultMode = ModeWindow
	}

	s.settings = &settings
	slog.Debug("Loaded settings", "path", s.filePath, "providers", len(settings.Providers))
	return nil
}

// Save writes settings to disk
func (s *SettingsService) Save() error {
	s.settingsMutex.RLock()
	data, err := json.MarshalIndent(s.settings, "", "  ")
	s.settingsMutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	slog.Debug("Saved settings", "path", s.filePath)
	return nil
}

// GetSettings returns a copy of the current settings
func (s *SettingsService) GetSettings() *Settings {
	s.settingsMutex.RLock()
	defer s.settingsMutex.RUnlock()

	copied := *s.settings
	copied.Providers = append([]ProviderConfig{}, s.settings.Providers...)
	return &copied
}

// GetProviders returns the configured providers
func (s *SettingsService) GetProviders() []ProviderConfig {
	s.settingsMutex.RLock()
	defer s.settingsMutex.RUnlock()
	return append([]ProviderConfig{}, s.settings.Providers...)
}

// GetProvider returns the provider with the given name
func (s *SettingsService) GetProvider(name string) (ProviderConfig, bool) {
	s.settingsMutex.RLock()
	defer s.settingsMutex.RUnlock()

	for _, provider := range s.settings.Providers {
		if provider.Name == name {
			return provider, true
		}
	}
	return ProviderConfig{}, false
}

// AddProvider adds a new provider configuration
func (s *SettingsService) AddProvider(config ProviderConfig) error {
	if config.Name == "" {
		return fmt.Errorf("provider name must not be empty")
	}

	s.settingsMutex.Lock()
	for _, provider := range s.settings.Providers {
		if provider.Name == config.Name {
			s.settingsMutex.Unlock()
			return fmt.Errorf("provider '%s' already exists", config.Name)
		}
	}
	s.settings.Providers = append(s.settings.Providers, config)
	s.settingsMutex.Unlock()

	if err := s.Save(); err != nil {
		return err
	}
	s.emitEvent("settings:updated", s.GetSettings())
	return nil
}

// UpdateProvider replaces the provider with the given name
func (s *SettingsService) UpdateProvider(name string, config ProviderConfig) error {
	s.settingsMutex.Lock()
	found := false
	for i, provider := range s.settings.Providers {
		if provider.Name == name {
			s.settings.Providers[i] = config
			found = true
			break
		}
	}
	s.settingsMutex.Unlock()

	if !found {
		return fmt.Errorf("provider '%s' not found", name)
	}
	if err := s.Save(); err != nil {
		return err
	}
	s.emitEvent("settings:updated", s.GetSettings())
	return nil
}

// RemoveProvider removes the provider with the given name
func (s *SettingsService) RemoveProvider(name string) error {
	s.settingsMutex.Lock()
	found := false
	for i, provider := range s.settings.Providers {
		if provider.Name == name {
			s.settings.Providers = append(s.settings.Providers[:i], s.settings.Providers[i+1:]...)
			found = true
			break
		}
	}
	s.settingsMutex.Unlock()

	if !found {
		return fmt.Errorf("provider '%s' not found", name)
	}
	if err := s.Save(); err != nil {
		return err
	}
	s.emitEvent("settings:updated", s.GetSettings())
	return nil
}

// GetListenAddr returns the API listen address
func (s *SettingsService) GetListenAddr() string {
	s.settingsMutex.RLock()
	defer s.settingsMutex.RUnlock()
	return s.settings.ListenAddr
}

// GetDefaultMode returns the default presentation mode
func (s *SettingsService) GetDefaultMode() PresentationMode {
	s.settingsMutex.RLock()
	defer s.settingsMutex.RUnlock()
	return s.settings.DefaultMode
}

// Subscribe sets the event callback
func (s *SettingsService) Subscribe(callback func(e *application.CustomEvent)) {
	s.callbacksMutex.Lock()
	defer s.callbacksMutex.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// Unsubscribe removes a callback from the list of callbacks
// Note: This removes the first matching callback. If you have multiple identical callbacks,
// you may need to call this multiple times.
func (s *SettingsService) Unsubscribe(callback func(e *application.CustomEvent)) {
	s.callbacksMutex.Lock()
	defer s.callbacksMutex.Unlock()

	for i, cb := range s.callbacks {
		if fmt.Sprintf("%p", cb) == fmt.Sprintf("%p", callback) {
			s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
			break
		}
	}
}

// ClearCallbacks removes all callbacks
func (s *SettingsService) ClearCallbacks() {
	s.callbacksMutex.Lock()
	defer s.callbacksMutex.Unlock()
	s.callbacks = nil
}

// GetCallbackCount returns the number of registered callbacks
func (s *SettingsService) GetCallbackCount() int {
	s.callbacksMutex.RLock()
	defer s.callbacksMutex.RUnlock()
	return len(s.callbacks)
}

// emitEvent emits a custom event
func (s *SettingsService) emitEvent(name string, data any) {
	slog.Debug("Emitting settings event", "name", name, "callback_count", s.GetCallbackCount())

	s.callbacksMutex.RLock()
	defer s.callbacksMutex.RUnlock()

	if len(s.callbacks) == 0 {
		return
	}

	event := &application.CustomEvent{
		Name:   name,
		Data:   data,
		Sender: "settings_service",
	}

	for i, callback := range s.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Panic in settings service callback", "callback_index", i, "event_name", name, "panic", r)
				}
			}()
			callback(event)
		}()
	}
}

// OpenConfigDirectory opens the config directory in the platform's file manager
func (s *SettingsService) OpenConfigDirectory() error {
	configDir := filepath.Dir(s.filePath)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", configDir)
	case "windows":
		cmd = exec.Command("explorer", configDir)
	case "linux":
		cmd = exec.Command("xdg-open", configDir)
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return cmd.Start()
}
