package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const callbackPage = `<!DOCTYPE html>
<html><head><title>Flavory</title></head>
<body><p>%s You can close this window and return to the terminal.</p></body></html>`

// LoopbackAuthorizer completes the browser part of the flow by listening on
// the loopback redirect URL for the provider's callback.
type LoopbackAuthorizer struct {
	redirectURL *url.URL
	openURL     func(string) error
	log         zerolog.Logger
}

type LoopbackOption func(*LoopbackAuthorizer)

// WithBrowserOpener replaces the function used to open URLs in the browser
func WithBrowserOpener(open func(string) error) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.openURL = open
	}
}

func WithLoopbackLogger(logger zerolog.Logger) LoopbackOption {
	return func(a *LoopbackAuthorizer) {
		a.log = logger
	}
}

func NewLoopbackAuthorizer(redirectURL string, opts ...LoopbackOption) (*LoopbackAuthorizer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("[identity NewLoopbackAuthorizer] invalid redirect URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("[identity NewLoopbackAuthorizer] redirect URL %q has no host", redirectURL)
	}

	a := &LoopbackAuthorizer{
		redirectURL: u,
		openURL:     browser.OpenURL,
		log:         log.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authorize opens authURL in the browser and waits for the redirect back to
// the loopback address, or for ctx to end.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL string) (*Callback, error) {
	listener, err := net.Listen("tcp", a.redirectURL.Host)
	if err != nil {
		return nil, fmt.Errorf("[identity Authorize] failed to listen on %s: %w", a.redirectURL.Host, err)
	}

	results := make(chan *Callback, 1)
	path := a.redirectURL.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, a.callbackHandler(results))
	mux.HandleFunc("POST "+path, a.callbackHandler(results))

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("Callback server stopped")
		}
	}()
	defer a.shutdown(server)

	a.log.Info().Str("url", authURL).Msg("Complete the login in your browser")
	if err := a.openURL(authURL); err != nil {
		a.log.Warn().Err(err).Msg("Failed to open the browser, open the URL manually")
	}

	select {
	case callback := <-results:
		return callback, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("[identity Authorize] %w: %w", apperrors.ErrLoginCancelled, ctx.Err())
	}
}

// EndSession opens the provider's logout URL in the browser
func (a *LoopbackAuthorizer) EndSession(_ context.Context, logoutURL string) error {
	if err := a.openURL(logoutURL); err != nil {
		return fmt.Errorf("[identity EndSession] failed to open browser: %w", err)
	}
	return nil
}

func (a *LoopbackAuthorizer) callbackHandler(results chan<- *Callback) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callback := &Callback{
			Code:             r.FormValue("code"),
			State:            r.FormValue("state"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		message := "Login complete."
		if callback.Error != "" {
			message = "Login was not completed."
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, callbackPage, message)

		select {
		case results <- callback:
		default:
			a.log.Debug().Msg("Ignoring repeated callback")
		}
	}
}

func (a *LoopbackAuthorizer) shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.log.Debug().Err(err).Msg("Callback server shutdown")
	}
}
