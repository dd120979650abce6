package browse

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// InterceptionState tracks the lifecycle of a redirect interception. The state
// starts Pending and moves exactly once to either Intercepted or Dismissed;
// both are terminal and no callbacks fire afterwards.
type InterceptionState int

const (
	StatePending InterceptionState = iota
	StateIntercepted
	StateDismissed
)

func (s InterceptionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateIntercepted:
		return "intercepted"
	case StateDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// NavigationAction tells the embedded surface what to do with a navigation attempt.
type NavigationAction int

const (
	NavigationAllow NavigationAction = iota
	NavigationCancel
)

// InterceptFunc receives the matched redirect URL and reports whether
// downstream handling accepted it. The result is only logged; the interceptor
// never retries or re-presents on failure.
type InterceptFunc func(url string) bool

// DismissFunc is invoked when the surface is closed while still pending. The
// argument reports whether the close was user-initiated.
type DismissFunc func(userInitiated bool)

// RedirectInterceptor watches the navigation attempts of an embedded surface
// and fires a one-shot callback on the first URL that has the configured
// redirect rule as a prefix. The matched navigation is vetoed so the surface
// never actually loads the redirect target.
type RedirectInterceptor struct {
	mu          sync.Mutex
	rule        string
	state       InterceptionState
	onIntercept InterceptFunc
	onDismiss   DismissFunc
	surface     Surface
	configured  bool
}

// NewRedirectInterceptor creates an interceptor bound to the given surface.
func NewRedirectInterceptor(surface Surface) *RedirectInterceptor {
	return &RedirectInterceptor{surface: surface}
}

// Configure sets the redirect rule and callbacks. The rule must be a non-empty
// URL with a scheme; custom schemes are fine.
func (ri *RedirectInterceptor) Configure(rule string, onIntercept InterceptFunc, onDismiss DismissFunc) error {
	if rule == "" {
		return fmt.Errorf("redirect rule must not be empty")
	}
	parsed, err := url.Parse(rule)
	if err != nil {
		return fmt.Errorf("invalid redirect rule %q: %w", rule, err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("redirect rule %q has no scheme", rule)
	}

	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.rule = rule
	ri.onIntercept = onIntercept
	ri.onDismiss = onDismiss
	ri.state = StatePending
	ri.configured = true
	return nil
}

// Start loads the given URL into the surface. Calling Start again simply
// reloads; no new interception contract is created.
func (ri *RedirectInterceptor) Start(target string) error {
	ri.mu.Lock()
	configured := ri.configured
	ri.mu.Unlock()
	if !configured {
		return fmt.Errorf("interceptor is not configured")
	}
	return ri.surface.Load(target)
}

// HandleNavigation is the navigation hook, invoked by the surface for every
// attempted navigation including the initial load and provider redirects. The
// terminal-state check happens synchronously under the lock, so two matching
// events in quick succession cannot both be treated as first.
func (ri *RedirectInterceptor) HandleNavigation(target string) NavigationAction {
	ri.mu.Lock()
	if !ri.configured || !strings.HasPrefix(target, ri.rule) {
		ri.mu.Unlock()
		return NavigationAllow
	}
	if ri.state != StatePending {
		// Terminal: still veto the redirect target, but fire nothing.
		ri.mu.Unlock()
		return NavigationCancel
	}
	ri.state = StateIntercepted
	onIntercept := ri.onIntercept
	ri.mu.Unlock()

	slog.Debug("Intercepted redirect navigation", "url", target)
	if onIntercept != nil && !onIntercept(target) {
		slog.Warn("Redirect handler rejected intercepted URL", "url", target)
	}
	return NavigationCancel
}

// HandleClose is the dismiss hook, invoked when the surface is closed. It only
// fires the dismiss callback while the interception is still pending.
func (ri *RedirectInterceptor) HandleClose(userInitiated bool) {
	ri.mu.Lock()
	if !ri.configured || ri.state != StatePending {
		ri.mu.Unlock()
		return
	}
	ri.state = StateDismissed
	onDismiss := ri.onDismiss
	ri.mu.Unlock()

	slog.Debug("Surface closed before interception", "user_initiated", userInitiated)
	if onDismiss != nil {
		onDismiss(userInitiated)
	}
}

// State returns the current interception state.
func (ri *RedirectInterceptor) State() InterceptionState {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.state
}
