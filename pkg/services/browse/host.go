package browse

import (
	"log/slog"
	"sync"
)

// Authorizer is the OAuth2 core the presentation layer drives. It owns
// authorize-URL construction, redirect parsing, and the downstream token
// exchange; the host only moves URLs between it and the user's browser.
type Authorizer interface {
	// AuthorizeURL builds the provider authorize URL with the given extra
	// query parameters. Fails when required configuration is missing.
	AuthorizeURL(extraParams map[string]string) (string, error)
	// HandleRedirectURL consumes a captured redirect URL. A nil return means
	// the URL parsed into the expected response parameters; the token
	// exchange it triggers reports through OnOutcome asynchronously.
	HandleRedirectURL(url string) error
	// RedirectURL returns the configured redirect rule, or "" when unset.
	RedirectURL() string
	// OnOutcome subscribes to the final authorization outcome, delivered
	// after the downstream token exchange finishes. The returned function
	// removes the subscription; authorizers outlive individual presentation
	// attempts.
	OnOutcome(fn func(succeeded bool, err error)) func()
}

// HostState tracks a presentation attempt. Failed means no window was ever
// shown.
type HostState int

const (
	HostIdle HostState = iota
	HostPresenting
	HostCompleted
	HostDismissed
	HostFailed
)

// PresentConfig holds the recognized presentation options.
type PresentConfig struct {
	// Title overrides the default window title.
	Title string
	// Present, when set, takes ownership of the surface. The host performs
	// no window management of its own and retains no reference.
	Present func(Surface)
	// Dismissed, when set, is notified after the host records a dismissal.
	Dismissed func(userInitiated bool)
}

const defaultWindowTitle = "Sign in"

// Host presents an authorization flow either in the system browser or in an
// embedded surface wrapped in a window it owns. All failures are handled at
// this boundary and converted to a boolean result plus a log line.
type Host struct {
	mu            sync.Mutex
	env           Environment
	auth          Authorizer
	state         HostState
	window        Window
	cancelOutcome func()

	browserOpen func(url string) error
}

// NewHost creates a presentation host over the given environment and
// authorizer.
func NewHost(env Environment, auth Authorizer) *Host {
	return &Host{
		env:         env,
		auth:        auth,
		browserOpen: openDefaultBrowser,
	}
}

// OpenExternal opens the authorize URL in the OS default browser.
// Fire-and-forget: there is no return channel from the external browser; the
// redirect comes back through a RedirectReceiver, not through this call.
func (h *Host) OpenExternal(extraParams map[string]string) bool {
	authURL, err := h.auth.AuthorizeURL(extraParams)
	if err != nil {
		slog.Error("Failed to build authorize URL", "error", err)
		return false
	}
	if err := h.browserOpen(authURL); err != nil {
		slog.Error("Failed to open default browser", "error", err, "url", authURL)
		return false
	}
	slog.Debug("Opened authorize URL in default browser", "url", authURL)
	return true
}

// PresentEmbedded runs the embedded-surface flow: it builds the authorize
// URL, wires a redirect interceptor to the authorizer, and either hands the
// surface to cfg.Present or shows it in a default window. With autoDismiss
// the owned window closes once the downstream outcome reports success; a
// user dismissal never auto-closes, it only clears retained state.
func (h *Host) PresentEmbedded(cfg PresentConfig, extraParams map[string]string, autoDismiss bool) bool {
	rule := h.auth.RedirectURL()
	if rule == "" {
		slog.Error("Cannot present embedded flow: no redirect URL configured")
		h.setState(HostFailed)
		return false
	}
	if !h.env.SupportsEmbeddedPresentation() {
		slog.Error("Embedded presentation is not supported by this environment")
		h.setState(HostFailed)
		return false
	}

	// The authorize URL is computed before anything is shown, so a
	// configuration failure presents nothing.
	authURL, err := h.auth.AuthorizeURL(extraParams)
	if err != nil {
		slog.Error("Failed to build authorize URL", "error", err)
		h.setState(HostFailed)
		return false
	}

	surface, err := h.env.NewSurface()
	if err != nil {
		slog.Error("Failed to create embedded surface", "error", err)
		h.setState(HostFailed)
		return false
	}

	interceptor := NewRedirectInterceptor(surface)
	err = interceptor.Configure(rule,
		func(matched string) bool {
			if handleErr := h.auth.HandleRedirectURL(matched); handleErr != nil {
				slog.Warn("Redirect URL was not handled", "error", handleErr, "url", matched)
				return false
			}
			return true
		},
		func(userInitiated bool) {
			h.mu.Lock()
			h.state = HostDismissed
			h.window = nil
			h.mu.Unlock()
			h.dropOutcome()
			slog.Info("Authorization window dismissed", "user_initiated", userInitiated)
			if cfg.Dismissed != nil {
				cfg.Dismissed(userInitiated)
			}
		})
	if err != nil {
		slog.Error("Failed to configure redirect interceptor", "error", err)
		h.setState(HostFailed)
		return false
	}
	surface.OnNavigate(interceptor.HandleNavigation)
	surface.OnClose(interceptor.HandleClose)

	cancel := h.auth.OnOutcome(func(succeeded bool, outcomeErr error) {
		h.mu.Lock()
		if h.state != HostPresenting {
			h.mu.Unlock()
			h.dropOutcome()
			return
		}
		window := h.window
		h.window = nil
		if succeeded {
			h.state = HostCompleted
		} else {
			h.state = HostFailed
		}
		h.mu.Unlock()
		h.dropOutcome()

		if succeeded && autoDismiss && window != nil {
			window.Close()
		}
	})
	h.mu.Lock()
	h.cancelOutcome = cancel
	h.mu.Unlock()

	if cfg.Present != nil {
		// Caller takes ownership of the surface and its lifecycle.
		h.setState(HostPresenting)
		cfg.Present(surface)
		if err := interceptor.Start(authURL); err != nil {
			slog.Error("Failed to load authorize URL", "error", err)
			h.setState(HostFailed)
			h.dropOutcome()
			return false
		}
		return true
	}

	title := cfg.Title
	if title == "" {
		title = defaultWindowTitle
	}
	window, err := h.env.ShowWindow(surface, title)
	if err != nil {
		slog.Error("Failed to show authorization window", "error", err)
		h.setState(HostFailed)
		h.dropOutcome()
		return false
	}
	h.mu.Lock()
	h.window = window
	h.state = HostPresenting
	h.mu.Unlock()

	if err := interceptor.Start(authURL); err != nil {
		slog.Error("Failed to load authorize URL", "error", err)
		h.mu.Lock()
		h.window = nil
		h.state = HostFailed
		h.mu.Unlock()
		h.dropOutcome()
		window.Close()
		return false
	}
	return true
}

// dropOutcome removes the host's outcome subscription, if still registered.
func (h *Host) dropOutcome() {
	h.mu.Lock()
	cancel := h.cancelOutcome
	h.cancelOutcome = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the host's current presentation state.
func (h *Host) State() HostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Host) setState(state HostState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}
