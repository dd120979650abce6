package browse

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthorizer is a scripted OAuth2 core.
type fakeAuthorizer struct {
	mu          sync.Mutex
	redirect    string
	authURL     string
	authErr     error
	handleErr   error
	handled     []string
	subscribers map[int]func(succeeded bool, err error)
	nextSubID   int
}

func (f *fakeAuthorizer) AuthorizeURL(extraParams map[string]string) (string, error) {
	return f.authURL, f.authErr
}

func (f *fakeAuthorizer) HandleRedirectURL(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, url)
	return f.handleErr
}

func (f *fakeAuthorizer) RedirectURL() string {
	return f.redirect
}

func (f *fakeAuthorizer) OnOutcome(fn func(succeeded bool, err error)) func() {
	f.mu.Lock()
	if f.subscribers == nil {
		f.subscribers = make(map[int]func(succeeded bool, err error))
	}
	f.nextSubID++
	id := f.nextSubID
	f.subscribers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

func (f *fakeAuthorizer) emit(succeeded bool, err error) {
	f.mu.Lock()
	subscribers := make([]func(bool, error), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		subscribers = append(subscribers, fn)
	}
	f.mu.Unlock()
	for _, fn := range subscribers {
		fn(succeeded, err)
	}
}

func (f *fakeAuthorizer) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *fakeAuthorizer) handledURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.handled...)
}

type fakeWindow struct {
	title  string
	closed bool
}

func (w *fakeWindow) Close() { w.closed = true }

// fakeEnv records surfaces and window-show calls.
type fakeEnv struct {
	unsupported bool
	surfaceErr  error
	surfaces    []*fakeSurface
	windows     []*fakeWindow
}

func (e *fakeEnv) SupportsEmbeddedPresentation() bool { return !e.unsupported }

func (e *fakeEnv) InterceptsNavigation() bool { return true }

func (e *fakeEnv) NewSurface() (Surface, error) {
	if e.surfaceErr != nil {
		return nil, e.surfaceErr
	}
	surface := &fakeSurface{}
	e.surfaces = append(e.surfaces, surface)
	return surface, nil
}

func (e *fakeEnv) ShowWindow(surface Surface, title string) (Window, error) {
	window := &fakeWindow{title: title}
	e.windows = append(e.windows, window)
	return window, nil
}

func newTestAuthorizer() *fakeAuthorizer {
	return &fakeAuthorizer{
		redirect: "myapp://callback",
		authURL:  "https://provider.com/authorize?client_id=abc&state=xyz",
	}
}

func TestPresentEmbeddedFailsWithoutRedirectRule(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	auth.redirect = ""
	host := NewHost(env, auth)

	assert.False(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	assert.Empty(t, env.windows)
	assert.Empty(t, env.surfaces)
	assert.Equal(t, HostFailed, host.State())
}

func TestPresentEmbeddedFailsWhenUnsupported(t *testing.T) {
	env := &fakeEnv{unsupported: true}
	host := NewHost(env, newTestAuthorizer())

	assert.False(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	assert.Empty(t, env.windows)
	assert.Equal(t, HostFailed, host.State())
}

func TestPresentEmbeddedFailsWhenAuthorizeURLFails(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	auth.authErr = errors.New("client id is not set")
	host := NewHost(env, auth)

	assert.False(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	assert.Empty(t, env.windows)
	assert.Empty(t, env.surfaces)
	assert.Equal(t, HostFailed, host.State())
}

func TestPresentEmbeddedFailsWhenSurfaceCannotBeCreated(t *testing.T) {
	env := &fakeEnv{surfaceErr: errors.New("webview unavailable")}
	host := NewHost(env, newTestAuthorizer())

	assert.False(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	assert.Empty(t, env.windows)
	assert.Equal(t, HostFailed, host.State())
}

func TestPresentEmbeddedShowsDefaultWindow(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	require.True(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	require.Len(t, env.windows, 1)
	assert.Equal(t, defaultWindowTitle, env.windows[0].title)
	assert.Equal(t, HostPresenting, host.State())

	require.Len(t, env.surfaces, 1)
	assert.Equal(t, []string{auth.authURL}, env.surfaces[0].loads)
}

func TestPresentEmbeddedTitleOverride(t *testing.T) {
	env := &fakeEnv{}
	host := NewHost(env, newTestAuthorizer())

	require.True(t, host.PresentEmbedded(PresentConfig{Title: "Sign in — github"}, nil, true))
	require.Len(t, env.windows, 1)
	assert.Equal(t, "Sign in — github", env.windows[0].title)
}

func TestCustomPresentationOwnsTheSurface(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	var presented Surface
	ok := host.PresentEmbedded(PresentConfig{
		Present: func(surface Surface) { presented = surface },
	}, nil, true)

	require.True(t, ok)
	assert.NotNil(t, presented)
	assert.Empty(t, env.windows, "custom presentation must not construct a default window")

	// The host retained nothing: a successful outcome closes no window.
	auth.emit(true, nil)
	assert.Equal(t, HostCompleted, host.State())
}

func TestInterceptionFeedsAuthorizer(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	require.True(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	surface := env.surfaces[0]

	surface.navigate("https://provider.com/login")
	surface.navigate("myapp://callback?code=abc123")
	surface.navigate("myapp://callback?code=abc123")

	assert.Equal(t, []string{"myapp://callback?code=abc123"}, auth.handledURLs())
}

func TestAutoDismissClosesWindowOnSuccessOnly(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	require.True(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	window := env.windows[0]

	auth.emit(true, nil)
	assert.True(t, window.closed)
	assert.Equal(t, HostCompleted, host.State())
}

func TestFailedOutcomeDoesNotCloseWindow(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	require.True(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	window := env.windows[0]

	auth.emit(false, errors.New("token exchange failed"))
	assert.False(t, window.closed)
	assert.Equal(t, HostFailed, host.State())
}

func TestAutoDismissDisabled(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	require.True(t, host.PresentEmbedded(PresentConfig{}, nil, false))
	window := env.windows[0]

	auth.emit(true, nil)
	assert.False(t, window.closed)
	assert.Equal(t, HostCompleted, host.State())
}

func TestUserDismissalClearsStateWithoutClosing(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	var dismissals []bool
	require.True(t, host.PresentEmbedded(PresentConfig{
		Dismissed: func(userInitiated bool) { dismissals = append(dismissals, userInitiated) },
	}, nil, true))
	surface := env.surfaces[0]
	window := env.windows[0]

	surface.closeHook(true)
	assert.Equal(t, []bool{true}, dismissals)
	assert.Equal(t, HostDismissed, host.State())
	assert.False(t, window.closed, "the user already closed it")

	// A straggling outcome after dismissal must not flip the state.
	auth.emit(false, errors.New("late failure"))
	assert.Equal(t, HostDismissed, host.State())
}

func TestHostDropsSubscriptionWhenAttemptEnds(t *testing.T) {
	env := &fakeEnv{}
	auth := newTestAuthorizer()
	host := NewHost(env, auth)

	require.True(t, host.PresentEmbedded(PresentConfig{}, nil, true))
	require.Equal(t, 1, auth.subscriberCount())

	auth.emit(true, nil)
	assert.Zero(t, auth.subscriberCount(), "a resolved attempt must not keep listening")

	// A second attempt on the same long-lived authorizer starts clean.
	host2 := NewHost(env, auth)
	require.True(t, host2.PresentEmbedded(PresentConfig{}, nil, true))
	assert.Equal(t, 1, auth.subscriberCount())

	env.surfaces[1].closeHook(true)
	assert.Zero(t, auth.subscriberCount(), "a dismissed attempt must not keep listening")
}

func TestOpenExternal(t *testing.T) {
	auth := newTestAuthorizer()
	host := NewHost(&fakeEnv{}, auth)

	var opened []string
	host.browserOpen = func(url string) error {
		opened = append(opened, url)
		return nil
	}

	assert.True(t, host.OpenExternal(nil))
	assert.Equal(t, []string{auth.authURL}, opened)
}

func TestOpenExternalFailsWhenURLCannotBeBuilt(t *testing.T) {
	auth := newTestAuthorizer()
	auth.authErr = errors.New("redirect URL is not set")
	host := NewHost(&fakeEnv{}, auth)

	host.browserOpen = func(url string) error {
		t.Fatal("browser must not be opened")
		return nil
	}
	assert.False(t, host.OpenExternal(nil))
}

func TestOpenExternalFailsWhenBrowserFails(t *testing.T) {
	host := NewHost(&fakeEnv{}, newTestAuthorizer())
	host.browserOpen = func(url string) error { return errors.New("no browser") }

	assert.False(t, host.OpenExternal(nil))
}
