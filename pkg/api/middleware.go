// Package api wires the HTTP surface: routing, the middleware pipeline and
// the resource handlers. The pipeline order is fixed and declared in one
// place (see NewRouter): request id, access log, authentication, then the
// per-route role gate. Query scoping happens inside the handlers because it
// needs the parsed route variables.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oncoregistry/ingest/pkg/auth"
	"github.com/oncoregistry/ingest/pkg/config"
	"github.com/oncoregistry/ingest/pkg/httputil"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
)

// requestIDHeader is echoed back to clients for cross-service correlation.
const requestIDHeader = "X-Request-Id"

// Upload destination headers returned on every authenticated response, so
// clients always know where to stage files without a separate lookup.
const (
	uploadBaseURLHeader = "X-Upload-Base-URL"
	uploadFolderHeader  = "X-Upload-Folder"
)

// RequestIDMiddleware assigns each request a uuid, honoring one supplied by
// an upstream proxy.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// AccessLogMiddleware logs one line per request and observes its latency.
func AccessLogMiddleware(log logrus.FieldLogger, metrics *observability.Metrics, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			if metrics != nil {
				metrics.RequestDuration.WithLabelValues(resource, r.Method).
					Observe(elapsed.Seconds())
			}
			observability.WithCategory(log, observability.CategoryRequest).
				WithFields(logrus.Fields{
					"request_id": RequestIDFrom(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     rec.status,
					"elapsed_ms": elapsed.Milliseconds(),
				}).Info("request served")
		})
	}
}

// UploadDestinationMiddleware advertises the upload staging destination on
// every response.
func UploadDestinationMiddleware(cfg config.UploadConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(uploadBaseURLHeader, cfg.BaseURL)
			w.Header().Set(uploadFolderHeader, cfg.FolderPath)
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware extracts and verifies the bearer token, attaching the
// resulting principal to the request context. Requests with no usable
// Authorization header never reach a handler.
func AuthMiddleware(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			principal, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// bearerToken pulls the raw token out of the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", httputil.Unauthorized("authorization header is expected")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", httputil.Unauthorized("authorization header must be a bearer token")
	}
	return parts[1], nil
}

// RoleGate authorizes the principal against the roles allowed for a
// resource, attaching the resolved account to the context. The account is
// nil only on the first-time registration resource.
func RoleGate(accounts *auth.AccountStore, resource string, allowed []model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := PrincipalFrom(r.Context())
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			account, err := accounts.Authorize(r.Context(), principal, allowed, resource)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}
