package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/catkins/oauth-bouncer/pkg/services/browse"
	"github.com/catkins/oauth-bouncer/pkg/services/settings"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wailsapp/wails/v3/pkg/application"
	"golang.org/x/oauth2"
)

// mcpRedirectURL is the loopback redirect registered for MCP server
// authorization.
const mcpRedirectURL = "http://localhost:8085/oauth/callback"

// AuthService manages the authorization flows for all configured providers
// and exposes them to the frontend and the HTTP API.
type AuthService struct {
	settings *settings.SettingsService
	env      browse.Environment
	sessions *SessionRegistry
	callback func(e *application.CustomEvent)

	mu    sync.RWMutex
	flows map[string]*Flow

	newStore func(providerName string) TokenStore
}

// NewAuthService creates the service over the given settings and presentation
// environment.
func NewAuthService(settingsService *settings.SettingsService, env browse.Environment) *AuthService {
	s := &AuthService{
		settings: settingsService,
		env:      env,
		flows:    make(map[string]*Flow),
		newStore: func(providerName string) TokenStore { return NewFileTokenStore(providerName) },
	}
	s.sessions = NewSessionRegistry(s.emitEvent)
	return s
}

// ServiceStartup builds flows for the configured providers and reloads them
// whenever settings change.
func (s *AuthService) ServiceStartup(ctx context.Context, options application.ServiceOptions) error {
	if s.settings != nil {
		s.reloadFlows()

		s.settings.Subscribe(func(event *application.CustomEvent) {
			if event.Name == "settings:updated" {
				slog.Info("Settings updated, reloading flows")
				s.reloadFlows()
				s.emitEvent(EventProvidersUpdated, map[string]any{})
			}
		})
	}
	return nil
}

// Subscribe sets the event callback
func (s *AuthService) Subscribe(callback func(e *application.CustomEvent)) {
	s.callback = callback
}

// reloadFlows rebuilds the flow map from settings, keeping existing flows so
// in-memory tokens and subscribers survive a settings touch that didn't
// change the provider.
func (s *AuthService) reloadFlows() {
	if s.settings == nil {
		return
	}
	providers := s.settings.GetProviders()

	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(providers))
	for _, provider := range providers {
		if !provider.Enabled {
			continue
		}
		known[provider.Name] = true
		if _, exists := s.flows[provider.Name]; exists {
			continue
		}
		s.flows[provider.Name] = NewFlow(provider.Name, Config{
			ClientID:     provider.ClientID,
			ClientSecret: provider.ClientSecret,
			AuthURL:      provider.AuthURL,
			TokenURL:     provider.TokenURL,
			RedirectURL:  provider.RedirectURL,
			Scopes:       provider.Scopes,
			UsePKCE:      provider.UsePKCE,
		}, s.newStore(provider.Name))
		slog.Debug("Created flow", "provider", provider.Name)
	}
	for name := range s.flows {
		if !known[name] {
			delete(s.flows, name)
			slog.Debug("Dropped flow", "provider", name)
		}
	}
}

// Flow returns the flow for the named provider.
func (s *AuthService) Flow(name string) (*Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrProviderNotFound, name)
	}
	return flow, nil
}

// Authorize runs the authorization flow for the named provider. Window mode
// presents an embedded surface and returns once it is showing; the outcome
// arrives through events. Browser mode opens the system browser, blocks on
// the loopback receiver, and returns the final outcome.
func (s *AuthService) Authorize(ctx context.Context, name string, mode settings.PresentationMode) error {
	flow, err := s.Flow(name)
	if err != nil {
		return err
	}
	if mode == "" {
		if provider, ok := s.settings.GetProvider(name); ok && provider.Mode != "" {
			mode = provider.Mode
		} else {
			mode = s.settings.GetDefaultMode()
		}
	}

	switch mode {
	case settings.ModeWindow:
		return s.authorizeWindow(flow)
	case settings.ModeBrowser:
		return s.authorizeBrowser(ctx, flow)
	default:
		return fmt.Errorf("unsupported presentation mode: %s", mode)
	}
}

// authorizeWindow presents the embedded window. The flow outlives the
// attempt, so the outcome subscription is dropped once the attempt ends, and
// session transitions gate event emission against stale outcomes. When the
// environment cannot observe navigations inside the surface (the shipped
// webview reports none), redirect capture needs a loopback receiver running
// alongside the window, which only works for http(s) redirect rules.
func (s *AuthService) authorizeWindow(flow *Flow) error {
	rule := flow.RedirectURL()
	loopback := strings.HasPrefix(rule, "http://") || strings.HasPrefix(rule, "https://")
	if !loopback && !s.env.InterceptsNavigation() {
		return fmt.Errorf("cannot capture %q redirects in a window on this platform, use browser mode", rule)
	}

	session := s.sessions.Begin(flow.Provider())
	recvCtx, stopReceiver := context.WithCancel(context.Background())

	var subMu sync.Mutex
	var cancelOutcome func()
	cleanup := func() {
		stopReceiver()
		subMu.Lock()
		cancel := cancelOutcome
		cancelOutcome = nil
		subMu.Unlock()
		if cancel != nil {
			cancel()
		}
	}

	cancel := flow.OnOutcome(func(succeeded bool, outcomeErr error) {
		completed := s.sessions.Complete(session.ID, succeeded, outcomeErr)
		cleanup()
		if completed && succeeded {
			s.emitEvent(EventAuthorized, map[string]any{"provider": flow.Provider()})
		}
	})
	subMu.Lock()
	cancelOutcome = cancel
	subMu.Unlock()

	if loopback {
		receiver, err := browse.NewRedirectReceiver(flow)
		if err != nil {
			s.sessions.Complete(session.ID, false, err)
			cleanup()
			return err
		}
		go func() {
			if recvErr := receiver.Start(recvCtx); recvErr != nil && !errors.Is(recvErr, context.Canceled) {
				slog.Warn("Window-mode redirect receiver stopped", "provider", flow.Provider(), "error", recvErr)
			}
		}()
	}

	host := browse.NewHost(s.env, flow)
	cfg := browse.PresentConfig{
		Title: fmt.Sprintf("Sign in — %s", flow.Provider()),
		Dismissed: func(userInitiated bool) {
			s.sessions.Dismiss(session.ID)
			cleanup()
		},
	}
	if !host.PresentEmbedded(cfg, nil, true) {
		err := fmt.Errorf("failed to present authorization window for '%s'", flow.Provider())
		s.sessions.Complete(session.ID, false, err)
		cleanup()
		return err
	}
	return nil
}

// authorizeBrowser opens the system browser and blocks on the loopback
// receiver until the exchange resolves or the context ends.
func (s *AuthService) authorizeBrowser(ctx context.Context, flow *Flow) error {
	receiver, err := browse.NewRedirectReceiver(flow)
	if err != nil {
		return err
	}

	session := s.sessions.Begin(flow.Provider())
	outcome := make(chan error, 1)
	cancelOutcome := flow.OnOutcome(func(succeeded bool, outcomeErr error) {
		completed := s.sessions.Complete(session.ID, succeeded, outcomeErr)
		if completed && succeeded {
			s.emitEvent(EventAuthorized, map[string]any{"provider": flow.Provider()})
		}
		select {
		case outcome <- outcomeErr:
		default:
		}
	})
	defer cancelOutcome()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- receiver.Start(ctx)
	}()

	host := browse.NewHost(s.env, flow)
	if !host.OpenExternal(nil) {
		s.sessions.Dismiss(session.ID)
		return fmt.Errorf("failed to open browser for '%s'", flow.Provider())
	}
	select {
	case err := <-recvErr:
		if err != nil {
			s.sessions.Complete(session.ID, false, err)
			return err
		}
	case err := <-outcome:
		return err
	case <-ctx.Done():
		s.sessions.Dismiss(session.ID)
		return ctx.Err()
	}
	// Receiver handled the redirect; wait for the token exchange.
	select {
	case err := <-outcome:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthorizeMCPServer runs an interactive OAuth flow against a remote MCP
// server, driving mcp-go's OAuth handler through the same presentation
// machinery as plain providers.
func (s *AuthService) AuthorizeMCPServer(ctx context.Context, name, endpoint string) error {
	tokenStore := client.NewMemoryTokenStore()
	oauthConfig := client.OAuthConfig{
		RedirectURI: mcpRedirectURL,
		Scopes:      []string{"mcp.read", "mcp.write"},
		TokenStore:  tokenStore,
		PKCEEnabled: true,
	}
	oauthClient, err := client.NewOAuthStreamableHttpClient(endpoint, oauthConfig)
	if err != nil {
		return fmt.Errorf("failed to create OAuth HTTP client: %w", err)
	}
	if err := oauthClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}
	defer oauthClient.Close()

	_, err = oauthClient.Initialize(ctx, mcp.InitializeRequest{})
	if err == nil {
		return nil
	}
	if !client.IsOAuthAuthorizationRequiredError(err) {
		return fmt.Errorf("authorization not required or unexpected error: %w", err)
	}
	oauthHandler := client.GetOAuthHandler(err)
	if oauthHandler == nil {
		return fmt.Errorf("failed to obtain OAuth handler")
	}
	if err := oauthHandler.RegisterClient(ctx, "oauth-bouncer"); err != nil {
		return fmt.Errorf("failed to register client: %w", err)
	}

	authorizer := NewMCPAuthorizer(oauthHandler, mcpRedirectURL)
	session := s.sessions.Begin(name)
	outcome := make(chan error, 1)
	cancelOutcome := authorizer.OnOutcome(func(succeeded bool, outcomeErr error) {
		s.sessions.Complete(session.ID, succeeded, outcomeErr)
		select {
		case outcome <- outcomeErr:
		default:
		}
	})
	defer cancelOutcome()

	receiver, err := browse.NewRedirectReceiver(authorizer)
	if err != nil {
		s.sessions.Complete(session.ID, false, err)
		return err
	}
	recvErr := make(chan error, 1)
	go func() {
		recvErr <- receiver.Start(ctx)
	}()

	host := browse.NewHost(s.env, authorizer)
	if !host.OpenExternal(nil) {
		s.sessions.Dismiss(session.ID)
		return fmt.Errorf("failed to open browser for authorization")
	}

	select {
	case err := <-recvErr:
		if err != nil {
			s.sessions.Complete(session.ID, false, err)
			return err
		}
	case err := <-outcome:
		return err
	case <-ctx.Done():
		s.sessions.Dismiss(session.ID)
		return ctx.Err()
	}
	select {
	case err := <-outcome:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProviderStatus represents the status of a provider
type ProviderStatus struct {
	Name       string                    `json:"name"`
	Enabled    bool                      `json:"enabled"`
	Authorized bool                      `json:"authorized"`
	Mode       settings.PresentationMode `json:"mode,omitempty"`
}

// Status returns the status of all configured providers
func (s *AuthService) Status() map[string]ProviderStatus {
	status := make(map[string]ProviderStatus)
	if s.settings == nil {
		return status
	}
	for _, provider := range s.settings.GetProviders() {
		entry := ProviderStatus{
			Name:    provider.Name,
			Enabled: provider.Enabled,
			Mode:    provider.Mode,
		}
		s.mu.RLock()
		if flow, ok := s.flows[provider.Name]; ok {
			entry.Authorized = flow.Authorized()
		}
		s.mu.RUnlock()
		status[provider.Name] = entry
	}
	return status
}

// Sessions returns the known presentation sessions
func (s *AuthService) Sessions() []Session {
	return s.sessions.List()
}

// Token returns a valid token for the named provider, refreshing if needed.
func (s *AuthService) Token(ctx context.Context, name string) (*oauth2.Token, error) {
	flow, err := s.Flow(name)
	if err != nil {
		return nil, err
	}
	return flow.Token(ctx)
}

// Logout clears the stored token for the named provider.
func (s *AuthService) Logout(name string) error {
	flow, err := s.Flow(name)
	if err != nil {
		return err
	}
	if err := flow.Logout(); err != nil {
		return err
	}
	s.emitEvent(EventLoggedOut, map[string]any{"provider": name})
	return nil
}

func (s *AuthService) emitEvent(name string, data any) {
	slog.Debug("Emitting event", "name", name)
	if s.callback != nil {
		s.callback(&application.CustomEvent{
			Name:   name,
			Data:   data,
			Sender: "auth_service",
		})
	} else {
		slog.Debug("No callback set for auth service, cannot emit event", "name", name)
	}
}
