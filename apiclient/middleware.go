package apiclient

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/flavory-client/credentials"
	"github.com/rs/zerolog"
)

// Middleware wraps a round tripper. Outbound middleware edits the request
// before calling next, inbound middleware inspects the response after.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain wraps rt so that mw[0] is the outermost middleware
func Chain(rt http.RoundTripper, mw ...Middleware) http.RoundTripper {
	chained := rt
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// RequestID tags each request with a fresh X-Request-ID unless one is set
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(HeaderRequestID) != "" {
				return next.RoundTrip(req)
			}
			return next.RoundTrip(withHeader(req, HeaderRequestID, uuid.NewString()))
		})
	}
}

// StaticHeaders sets the same headers on every request
func StaticHeaders(headers map[string]string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if len(headers) == 0 {
				return next.RoundTrip(req)
			}
			req = req.Clone(req.Context())
			for k, v := range headers {
				if v != "" {
					req.Header.Set(k, v)
				}
			}
			return next.RoundTrip(req)
		})
	}
}

// Bearer attaches the token yielded by tokens. Requests go out without an
// Authorization header when the source has nothing to offer.
func Bearer(tokens TokenSource) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if tokens == nil {
				return next.RoundTrip(req)
			}
			token, err := tokens.AccessToken(req.Context())
			if err != nil {
				return nil, err
			}
			if token == "" {
				return next.RoundTrip(req)
			}
			return next.RoundTrip(withHeader(req, "Authorization", "Bearer "+token))
		})
	}
}

// Unauthorized drops the stored credential when the API answers 401 and then
// calls onUnauthorized. Only the credential that was actually sent is
// dropped, so a late 401 cannot clear a newer login. A 401 on a request that
// carried no token leaves the store alone.
func Unauthorized(store credentials.Store, onUnauthorized func()) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			if token := bearerToken(req); store != nil && token != "" {
				store.CompareAndClear(token)
			}
			if onUnauthorized != nil {
				onUnauthorized()
			}
			return resp, nil
		})
	}
}

// StatusLogging reports forbidden and server error responses
func StatusLogging(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil {
				return resp, err
			}
			switch {
			case resp.StatusCode == http.StatusForbidden:
				logger.Warn().Str("method", req.Method).Str("path", req.URL.Path).Msg("Access forbidden")
			case resp.StatusCode >= http.StatusInternalServerError:
				logger.Error().Str("method", req.Method).Str("path", req.URL.Path).Int("status", resp.StatusCode).Msg("Server error")
			}
			return resp, nil
		})
	}
}

// Logging logs every request with its outcome, meant for development
func Logging(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			event := logger.Debug().
				Str("method", colouredMethod(req.Method)).
				Str("url", req.URL.String()).
				Str("request_id", req.Header.Get(HeaderRequestID)).
				Dur("elapsed", time.Since(start))
			if err != nil {
				event.Err(err).Msg("API request failed")
				return resp, err
			}
			event.Int("status", resp.StatusCode).Msg("API request")
			return resp, nil
		})
	}
}

func withHeader(req *http.Request, key, value string) *http.Request {
	req = req.Clone(req.Context())
	req.Header.Set(key, value)
	return req
}

func bearerToken(req *http.Request) string {
	token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}
