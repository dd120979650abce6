package browse

import (
	"fmt"
	"sync"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"
)

const (
	defaultWindowWidth  = 480
	defaultWindowHeight = 640
)

// WailsEnvironment presents surfaces in Wails webview windows.
type WailsEnvironment struct {
	mu  sync.Mutex
	app *application.App
}

// NewWailsEnvironment creates an environment with no application attached
// yet. Attach must be called before any surface can be shown.
func NewWailsEnvironment() *WailsEnvironment {
	return &WailsEnvironment{}
}

// Attach binds the running Wails application.
func (e *WailsEnvironment) Attach(app *application.App) {
	e.mu.Lock()
	e.app = app
	e.mu.Unlock()
}

func (e *WailsEnvironment) application() *application.App {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.app
}

// SupportsEmbeddedPresentation reports whether an application is attached.
func (e *WailsEnvironment) SupportsEmbeddedPresentation() bool {
	return e.application() != nil
}

// InterceptsNavigation reports false: the webview emits no navigation events
// carrying a URL, so only programmatic loads pass the hook. Redirect capture
// for windows shown here relies on a loopback receiver.
func (e *WailsEnvironment) InterceptsNavigation() bool {
	return false
}

// NewSurface creates a detached surface. The underlying webview window is
// only created when the surface is shown; Wails has no webview without a
// window.
func (e *WailsEnvironment) NewSurface() (Surface, error) {
	app := e.application()
	if app == nil {
		return nil, fmt.Errorf("%w: no application attached", ErrUnsupported)
	}
	return &wailsSurface{}, nil
}

// ShowWindow wraps the surface in a webview window with the preset size,
// centers it, and shows it. The window's close button drives the surface's
// close hook as a user-initiated dismissal.
func (e *WailsEnvironment) ShowWindow(surface Surface, title string) (Window, error) {
	app := e.application()
	if app == nil {
		return nil, fmt.Errorf("%w: no application attached", ErrUnsupported)
	}
	ws, ok := surface.(*wailsSurface)
	if !ok {
		return nil, fmt.Errorf("surface was not created by this environment")
	}

	window := app.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:  title,
		Width:  defaultWindowWidth,
		Height: defaultWindowHeight,
		URL:    ws.takePendingURL(),
	})
	ws.attach(window)
	window.OnWindowEvent(events.Common.WindowClosing, func(event *application.WindowEvent) {
		ws.closed(true)
	})
	window.Center()
	window.Show()

	return &wailsWindow{window: window, surface: ws}, nil
}

// wailsSurface routes loads through the registered navigation hook before
// handing them to the webview window. Loads requested before the surface is
// shown are remembered and applied when the window appears.
type wailsSurface struct {
	mu           sync.Mutex
	window       *application.WebviewWindow
	navigate     func(url string) NavigationAction
	closeHook    func(userInitiated bool)
	pendingURL   string
	programmatic bool
	closeOnce    sync.Once
}

func (s *wailsSurface) Load(target string) error {
	s.mu.Lock()
	navigate := s.navigate
	s.mu.Unlock()
	if navigate != nil && navigate(target) == NavigationCancel {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == nil {
		s.pendingURL = target
		return nil
	}
	s.window.SetURL(target)
	return nil
}

func (s *wailsSurface) OnNavigate(hook func(url string) NavigationAction) {
	s.mu.Lock()
	s.navigate = hook
	s.mu.Unlock()
}

func (s *wailsSurface) OnClose(hook func(userInitiated bool)) {
	s.mu.Lock()
	s.closeHook = hook
	s.mu.Unlock()
}

func (s *wailsSurface) attach(window *application.WebviewWindow) {
	s.mu.Lock()
	s.window = window
	s.pendingURL = ""
	s.mu.Unlock()
}

func (s *wailsSurface) takePendingURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingURL
}

func (s *wailsSurface) closed(userInitiated bool) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		hook := s.closeHook
		programmatic := s.programmatic
		s.mu.Unlock()
		if hook != nil {
			hook(userInitiated && !programmatic)
		}
	})
}

type wailsWindow struct {
	window  *application.WebviewWindow
	surface *wailsSurface
}

// Close tears the window down programmatically. The WindowClosing event this
// triggers must not be reported as a user dismissal.
func (w *wailsWindow) Close() {
	w.surface.mu.Lock()
	w.surface.programmatic = true
	w.surface.mu.Unlock()
	w.window.Close()
}
