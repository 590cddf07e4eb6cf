package restapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/service/authService"
	"github.com/Techyishu/writerly/telemetry"
)

// ctxPrincipalKey - special type for getting authenticated user from request context
type ctxPrincipalKey string

const (
	// CtxPrincipalKey - used to get *models.Principal from request context
	CtxPrincipalKey = ctxPrincipalKey("principal")
)

// PrincipalFromContext - user set by RequireAdmin, nil if absent
func PrincipalFromContext(ctx context.Context) *models.Principal {
	principal, _ := ctx.Value(CtxPrincipalKey).(*models.Principal)
	return principal
}

// requestAdmin - email of the admin behind the request, for logs
func requestAdmin(r *http.Request) string {
	if principal := PrincipalFromContext(r.Context()); principal != nil {
		return principal.Email
	}
	return "unknown"
}

// RequireAdmin - middleware for admin routes: 401 without a valid session, 403 for non-admins
func RequireAdmin(auth *authService.Authenticator, logInfo *log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := auth.Authenticate(r)
			if err != nil {
				if !errors.Is(err, authService.ErrNoToken) {
					logInfo.Printf("Rejected admin request: %s. Path: %s", err, r.URL.Path)
				}
				RespondWithError(w, http.StatusUnauthorized, InvalidToken, "")
				return
			}
			if !principal.IsAdmin() {
				logInfo.Printf("User doesn't have permissions for admin API. User ID: %s, role: %s",
					principal.UserID, principal.Role)
				RespondWithError(w, http.StatusForbidden, NoPermissions, "")
				return
			}

			ctx := context.WithValue(r.Context(), CtxPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NoStore - admin responses must not be cached
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// SandboxedFiles - uploaded files are never rendered as active content of the site origin
func SandboxedFiles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "sandbox")
		next.ServeHTTP(w, r)
	})
}

// RateLimit - 429 once the client exceeds the limiter's budget. Limiter failures let the request through
// nil limiter disables limiting
func RateLimit(limiter Limiter, metrics *telemetry.Metrics, logError *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logError.Printf("Rate limiter failed, letting request through. Client: %s. Error: %s", key, err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.RateLimited()
				RespondWithError(w, http.StatusTooManyRequests, TooManyRequests, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder - remembers the status code written by the handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger - logs every request and records its metrics under the route template
func RequestLogger(metrics *telemetry.Metrics, logInfo *log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = template
				}
			}
			metrics.ObserveRequest(r.Method, route, recorder.status, elapsed)
			if !strings.HasPrefix(route, "/metrics") {
				logInfo.Printf("%s %s %d %s", r.Method, r.URL.Path, recorder.status, elapsed.Round(time.Microsecond))
			}
		})
	}
}
