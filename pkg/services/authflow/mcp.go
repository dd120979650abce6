package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/mark3labs/mcp-go/client"
)

// MCPOAuthHandler is the slice of mcp-go's OAuth handler the adapter needs.
// *transport.OAuthHandler satisfies it.
type MCPOAuthHandler interface {
	GetAuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error)
	ProcessAuthorizationResponse(ctx context.Context, authCode, state, codeVerifier string) error
}

// MCPAuthorizer adapts an MCP server's OAuth handler to the same contract the
// presentation layer drives for plain providers, so remote MCP servers are
// authorized through the identical interceptor/receiver machinery. PKCE and
// state are generated here with mcp-go's helpers; the handler owns endpoint
// discovery and the token exchange.
type MCPAuthorizer struct {
	handler     MCPOAuthHandler
	redirectURL string

	mu           sync.Mutex
	state        string
	verifier     string
	subscribers  []outcomeSubscriber
	subscriberID int64
}

// NewMCPAuthorizer wraps an MCP OAuth handler. The redirect URL must match
// what the handler was configured with.
func NewMCPAuthorizer(handler MCPOAuthHandler, redirectURL string) *MCPAuthorizer {
	return &MCPAuthorizer{
		handler:     handler,
		redirectURL: redirectURL,
	}
}

// RedirectURL returns the redirect rule the handler registered.
func (a *MCPAuthorizer) RedirectURL() string {
	return a.redirectURL
}

// AuthorizeURL asks the handler for the authorization URL using fresh PKCE
// and state values. Extra parameters are appended to the query.
func (a *MCPAuthorizer) AuthorizeURL(extraParams map[string]string) (string, error) {
	verifier, err := client.GenerateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	challenge := client.GenerateCodeChallenge(verifier)
	state, err := client.GenerateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, err := a.handler.GetAuthorizationURL(context.Background(), state, challenge)
	if err != nil {
		return "", fmt.Errorf("failed to get authorization URL: %w", err)
	}
	if len(extraParams) > 0 {
		parsed, parseErr := url.Parse(authURL)
		if parseErr != nil {
			return "", fmt.Errorf("handler returned invalid authorization URL: %w", parseErr)
		}
		query := parsed.Query()
		for key, value := range extraParams {
			query.Set(key, value)
		}
		parsed.RawQuery = query.Encode()
		authURL = parsed.String()
	}

	a.mu.Lock()
	a.state = state
	a.verifier = verifier
	a.mu.Unlock()

	return authURL, nil
}

// HandleRedirectURL validates a captured redirect URL and hands the code to
// the handler in the background. The handler's exchange result is delivered
// through OnOutcome.
func (a *MCPAuthorizer) HandleRedirectURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return a.reject(fmt.Errorf("%w: %v", ErrRedirectParse, err))
	}
	query := parsed.Query()

	a.mu.Lock()
	expectedState := a.state
	verifier := a.verifier
	a.mu.Unlock()

	if expectedState == "" {
		return a.reject(fmt.Errorf("%w: no authorization in progress", ErrRedirectParse))
	}
	state := query.Get("state")
	if state != expectedState {
		return a.reject(fmt.Errorf("%w: state mismatch", ErrRedirectParse))
	}
	if errCode := query.Get("error"); errCode != "" {
		return a.reject(fmt.Errorf("%w: authorization error: %s", ErrRedirectParse, errCode))
	}
	code := query.Get("code")
	if code == "" {
		return a.reject(fmt.Errorf("%w: no authorization code received", ErrRedirectParse))
	}

	go func() {
		if processErr := a.handler.ProcessAuthorizationResponse(context.Background(), code, state, verifier); processErr != nil {
			slog.Error("Failed to process authorization response", "error", processErr)
			a.emitOutcome(false, fmt.Errorf("failed to process authorization response: %w", processErr))
			return
		}
		slog.Info("MCP server authorization completed")
		a.emitOutcome(true, nil)
	}()
	return nil
}

func (a *MCPAuthorizer) reject(err error) error {
	slog.Warn("Rejected redirect URL", "error", err)
	a.emitOutcome(false, err)
	return err
}

// OnOutcome subscribes to the final authorization outcome. The returned
// function removes the subscription.
func (a *MCPAuthorizer) OnOutcome(fn func(succeeded bool, err error)) func() {
	a.mu.Lock()
	a.subscriberID++
	id := a.subscriberID
	a.subscribers = append(a.subscribers, outcomeSubscriber{id: id, fn: fn})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, sub := range a.subscribers {
			if sub.id == id {
				a.subscribers = append(a.subscribers[:i], a.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (a *MCPAuthorizer) emitOutcome(succeeded bool, err error) {
	a.mu.Lock()
	subscribers := make([]outcomeSubscriber, len(a.subscribers))
	copy(subscribers, a.subscribers)
	a.mu.Unlock()

	for _, sub := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Panic in outcome subscriber", "subscriber_id", sub.id, "panic", r)
				}
			}()
			sub.fn(succeeded, err)
		}()
	}
}
