package browse

import "errors"

// ErrUnsupported is returned by environments that cannot present embedded
// browsing surfaces on the current platform.
var ErrUnsupported = errors.New("embedded presentation is not supported")

// Surface is an embedded browsing view: it loads URLs and reports every
// navigation attempt and close to the hooks registered on it.
type Surface interface {
	// Load navigates the surface to the given URL. The navigation hook sees
	// the load like any other navigation attempt and may veto it.
	Load(url string) error
	// OnNavigate registers the hook consulted for every navigation attempt.
	OnNavigate(hook func(url string) NavigationAction)
	// OnClose registers the hook invoked when the surface is closed. The
	// argument reports whether the close was user-initiated.
	OnClose(hook func(userInitiated bool))
}

// Window is a shown container owning a surface.
type Window interface {
	Close()
}

// Environment abstracts the UI toolkit behind the presentation host, so the
// host can be driven headlessly in tests with a fake that records window-show
// calls.
type Environment interface {
	// SupportsEmbeddedPresentation reports whether the platform can show
	// embedded browsing surfaces at all.
	SupportsEmbeddedPresentation() bool
	// InterceptsNavigation reports whether surfaces deliver provider-initiated
	// navigations to the OnNavigate hook, or only programmatic loads. When
	// false, redirect capture needs a loopback receiver alongside the surface.
	InterceptsNavigation() bool
	// NewSurface creates a detached surface.
	NewSurface() (Surface, error)
	// ShowWindow wraps the surface in a default window, centers it, and
	// shows it.
	ShowWindow(surface Surface, title string) (Window, error)
}
