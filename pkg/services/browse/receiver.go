package browse

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const redirectLandingPage = `
      <html>
        <body>
          <h1>Authorization Successful</h1>
          <p>You can now close this window and return to the application.</p>
          <script>window.close();</script>
        </body>
      </html>
    `

// RedirectReceiver is the external-browser counterpart to the embedded
// interceptor: a loopback HTTP server that receives the provider redirect and
// feeds it to the authorizer. It only works for http/https redirect rules
// pointing at a local address.
type RedirectReceiver struct {
	auth Authorizer
	addr string
	path string
	base string

	mu        sync.Mutex
	boundAddr string
}

// NewRedirectReceiver creates a receiver for the authorizer's redirect rule.
func NewRedirectReceiver(auth Authorizer) (*RedirectReceiver, error) {
	rule := auth.RedirectURL()
	if rule == "" {
		return nil, fmt.Errorf("no redirect URL configured")
	}
	parsed, err := url.Parse(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", rule, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("redirect URL %q cannot be received on a loopback server", rule)
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return &RedirectReceiver{
		auth: auth,
		addr: parsed.Host,
		path: path,
		base: strings.TrimSuffix(rule, "?"+parsed.RawQuery),
	}, nil
}

// Start listens on the redirect rule's address and blocks until a redirect
// has been received and handled, the server fails, or the context is
// cancelled. Handler failures keep the server alive so the user can retry
// from the browser.
func (r *RedirectReceiver) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to start redirect receiver: %w", err)
	}
	r.mu.Lock()
	r.boundAddr = listener.Addr().String()
	r.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(r.path, func(w http.ResponseWriter, req *http.Request) {
		target := r.base
		if req.URL.RawQuery != "" {
			target = r.base + "?" + req.URL.RawQuery
		}
		if handleErr := r.auth.HandleRedirectURL(target); handleErr != nil {
			slog.Error("Failed to handle redirect", "error", handleErr, "url", target)
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(redirectLandingPage))
		once.Do(func() { close(done) })
	})

	server := &http.Server{Handler: mux}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			slog.Warn("Redirect receiver shutdown failed", "error", shutdownErr)
		}
	}

	select {
	case <-done:
		slog.Debug("Redirect received, shutting down receiver", "addr", r.boundAddr)
		shutdown()
		return nil
	case serveErr := <-errCh:
		return serveErr
	case <-ctx.Done():
		shutdown()
		return ctx.Err()
	}
}

// Addr returns the bound listener address, or "" before Start.
func (r *RedirectReceiver) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boundAddr
}
