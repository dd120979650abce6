package authflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
)

// Config carries everything a Flow needs to run an authorization-code
// exchange against one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	UsePKCE      bool
}

// Flow is the OAuth2 core for a single provider: it builds authorize URLs
// with state and optional PKCE, parses captured redirect URLs, exchanges the
// code for tokens asynchronously, and fans the final outcome out to
// subscribers. The presentation layer in pkg/services/browse drives it
// through its Authorizer interface.
type Flow struct {
	provider   string
	cfg        *oauth2.Config
	usePKCE    bool
	httpClient *http.Client
	store      TokenStore

	mu           sync.Mutex
	state        string
	verifier     string
	token        *oauth2.Token
	subscribers  []outcomeSubscriber
	subscriberID int64
}

type outcomeSubscriber struct {
	id int64
	fn func(succeeded bool, err error)
}

// NewFlow creates a flow for the named provider.
func NewFlow(provider string, config Config, store TokenStore) *Flow {
	return &Flow{
		provider: provider,
		cfg: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.AuthURL,
				TokenURL: config.TokenURL,
			},
			RedirectURL: config.RedirectURL,
			Scopes:      config.Scopes,
		},
		usePKCE: config.UsePKCE,
		store:   store,
	}
}

// SetHTTPClient sets a custom HTTP client for token requests (useful for
// testing or proxies).
func (f *Flow) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// Provider returns the provider name the flow was created for.
func (f *Flow) Provider() string {
	return f.provider
}

// RedirectURL returns the configured redirect rule, or "" when unset.
func (f *Flow) RedirectURL() string {
	return f.cfg.RedirectURL
}

// AuthorizeURL builds the provider authorize URL with a fresh state value
// and, when PKCE is enabled, a fresh S256 challenge. Extra parameters are
// appended to the query.
func (f *Flow) AuthorizeURL(extraParams map[string]string) (string, error) {
	if f.cfg.ClientID == "" {
		return "", fmt.Errorf("%w: client id is not set", ErrConfiguration)
	}
	if f.cfg.Endpoint.AuthURL == "" {
		return "", fmt.Errorf("%w: authorization endpoint is not set", ErrConfiguration)
	}
	if f.cfg.RedirectURL == "" {
		return "", fmt.Errorf("%w: redirect URL is not set", ErrConfiguration)
	}

	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	opts := []oauth2.AuthCodeOption{}
	verifier := ""
	if f.usePKCE {
		verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	for key, value := range extraParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}

	f.mu.Lock()
	f.state = state
	f.verifier = verifier
	f.mu.Unlock()

	authURL := f.cfg.AuthCodeURL(state, opts...)
	slog.Debug("Built authorize URL", "provider", f.provider, "url", authURL)
	return authURL, nil
}

// HandleRedirectURL consumes a captured redirect URL. Parsing and state
// validation happen synchronously; a nil return means the URL carried a
// usable authorization code and the token exchange has been started in the
// background. The exchange result is delivered through OnOutcome.
func (f *Flow) HandleRedirectURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return f.rejectRedirect(fmt.Errorf("%w: %v", ErrRedirectParse, err))
	}
	query := parsed.Query()

	f.mu.Lock()
	expectedState := f.state
	verifier := f.verifier
	f.mu.Unlock()

	// Before AuthorizeURL has run there is no expected state, and a redirect
	// without one must not slip through the mismatch check.
	if expectedState == "" {
		return f.rejectRedirect(fmt.Errorf("%w: no authorization in progress", ErrRedirectParse))
	}
	if got := query.Get("state"); got != expectedState {
		return f.rejectRedirect(fmt.Errorf("%w: state mismatch", ErrRedirectParse))
	}
	if errCode := query.Get("error"); errCode != "" {
		description := query.Get("error_description")
		if description != "" {
			return f.rejectRedirect(fmt.Errorf("%w: authorization error: %s (%s)", ErrRedirectParse, errCode, description))
		}
		return f.rejectRedirect(fmt.Errorf("%w: authorization error: %s", ErrRedirectParse, errCode))
	}
	code := query.Get("code")
	if code == "" {
		return f.rejectRedirect(fmt.Errorf("%w: no authorization code received", ErrRedirectParse))
	}

	slog.Debug("Redirect accepted, starting token exchange", "provider", f.provider)
	go f.exchange(code, verifier)
	return nil
}

func (f *Flow) rejectRedirect(err error) error {
	slog.Warn("Rejected redirect URL", "provider", f.provider, "error", err)
	f.emitOutcome(false, err)
	return err
}

// exchange swaps the authorization code for tokens and persists them.
func (f *Flow) exchange(code, verifier string) {
	ctx := context.Background()
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	opts := []oauth2.AuthCodeOption{}
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := f.cfg.Exchange(ctx, code, opts...)
	if err != nil {
		slog.Error("Token exchange failed", "provider", f.provider, "error", err)
		f.emitOutcome(false, fmt.Errorf("token exchange failed: %w", err))
		return
	}

	f.mu.Lock()
	f.token = token
	f.mu.Unlock()

	if f.store != nil {
		if err := f.store.Save(token); err != nil {
			slog.Warn("Failed to persist token", "provider", f.provider, "error", err)
		}
	}

	slog.Info("Authorization completed", "provider", f.provider, "expires_at", token.Expiry)
	f.emitOutcome(true, nil)
}

// Token returns a valid token for the provider, refreshing a stale one via
// the token endpoint and persisting the result.
func (f *Flow) Token(ctx context.Context) (*oauth2.Token, error) {
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()

	if token == nil && f.store != nil {
		stored, err := f.store.Load()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		}
		token = stored
	}
	if token == nil {
		return nil, ErrNotAuthorized
	}

	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	fresh, err := f.cfg.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if fresh.AccessToken != token.AccessToken {
		slog.Debug("Refreshed token", "provider", f.provider, "expires_at", fresh.Expiry)
		f.mu.Lock()
		f.token = fresh
		f.mu.Unlock()
		if f.store != nil {
			if err := f.store.Save(fresh); err != nil {
				slog.Warn("Failed to persist refreshed token", "provider", f.provider, "error", err)
			}
		}
	}
	return fresh, nil
}

// Authorized reports whether a token is available in memory or on disk.
func (f *Flow) Authorized() bool {
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()
	if token != nil {
		return true
	}
	if f.store == nil {
		return false
	}
	stored, err := f.store.Load()
	return err == nil && stored != nil
}

// Logout drops the in-memory token and clears the store.
func (f *Flow) Logout() error {
	f.mu.Lock()
	f.token = nil
	f.mu.Unlock()
	if f.store == nil {
		return nil
	}
	return f.store.Clear()
}

// OnOutcome subscribes to the final authorization outcome. Subscribers are
// invoked after the token exchange resolves, not on interception. The flow
// outlives individual authorization attempts, so callers must invoke the
// returned function once their attempt is over.
func (f *Flow) OnOutcome(fn func(succeeded bool, err error)) func() {
	f.mu.Lock()
	f.subscriberID++
	id := f.subscriberID
	f.subscribers = append(f.subscribers, outcomeSubscriber{id: id, fn: fn})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, sub := range f.subscribers {
			if sub.id == id {
				f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (f *Flow) emitOutcome(succeeded bool, err error) {
	f.mu.Lock()
	subscribers := make([]outcomeSubscriber, len(f.subscribers))
	copy(subscribers, f.subscribers)
	f.mu.Unlock()

	for _, sub := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Panic in outcome subscriber", "subscriber_id", sub.id, "provider", f.provider, "panic", r)
				}
			}()
			sub.fn(succeeded, err)
		}()
	}
}

// randomState generates a cryptographically random state parameter.
func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
