package apiapp

import (
	"net"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	anomalysvc "github.com/nyckye/starshop/backend/internal/services/anomaly"
	authsvc "github.com/nyckye/starshop/backend/internal/services/auth"
	ratesvc "github.com/nyckye/starshop/backend/internal/services/rate"
	httperrors "github.com/nyckye/starshop/backend/internal/transport/http/errors"
)

func ApplyMiddlewares(r chiRouter, log *zap.Logger) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log))
}

// AnomalyMiddleware screens every request before routing. Blocked paths
// are answered with a plain not-found so probes cannot distinguish
// guarded files from missing ones.
func AnomalyMiddleware(filter *anomalysvc.Filter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if filter == nil {
				next.ServeHTTP(w, r)
				return
			}

			verdict := filter.Inspect(anomalysvc.Request{
				Path:      r.URL.RequestURI(),
				Method:    r.Method,
				ClientIP:  r.RemoteAddr,
				UserAgent: r.UserAgent(),
			})
			if verdict == anomalysvc.VerdictBlocked {
				httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
					Code:    "NOT_FOUND",
					Message: "not found",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware bounds attempts per subject and action. The
// subject is the verified init data identity when the client sends one,
// the remote address otherwise.
func RateLimitMiddleware(limiter *ratesvc.Limiter, verifier *authsvc.WebAppVerifier, action ratesvc.Action, rule ratesvc.Rule, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			subject := ratesvc.Subject{IP: requestIP(r)}
			if verifier != nil {
				if initData := r.Header.Get("X-Telegram-Init-Data"); initData != "" {
					if identity, err := verifier.Verify(initData); err == nil {
						subject.UserID = identity.UserID
					}
				}
			}

			decision, err := limiter.Allow(r.Context(), subject, action, rule)
			if err != nil {
				// The limiter store being down must not take
				// purchases down with it.
				if log != nil {
					log.Warn("rate limiter unavailable", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
					Code:          "RATE_LIMITED",
					Message:       "too many requests",
					RetryAfterSec: decision.RetryAfterSec,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminAuthMiddleware guards the admin surface with bearer JWTs.
func AdminAuthMiddleware(tokens *authsvc.JWTManager, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
					Code:    "ADMIN_AUTH_UNAVAILABLE",
					Message: "admin auth is not configured",
				})
				return
			}

			accessToken, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "missing bearer token",
				})
				return
			}

			if _, err := tokens.ValidateAdminToken(accessToken); err != nil {
				if log != nil {
					log.Debug("admin token validation failed", zap.Error(err))
				}
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "invalid access token",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func requestIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
