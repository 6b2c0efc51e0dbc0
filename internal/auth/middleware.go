package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopdesk/shopdesk/internal/observability"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// SubjectFromContext returns the authenticated subject, or "" for anonymous
// requests.
func SubjectFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Subject
}

// rejection describes why a request was refused.
type rejection struct {
	status  int
	code    string
	reason  string
	message string
}

var (
	rejectMissingKey = rejection{status: http.StatusUnauthorized, code: "UNAUTHORIZED", reason: "missing_key", message: "missing API key"}
	rejectInvalidKey = rejection{status: http.StatusUnauthorized, code: "UNAUTHORIZED", reason: "invalid_key", message: "invalid API key"}
	rejectNoIdentity = rejection{status: http.StatusUnauthorized, code: "UNAUTHORIZED", reason: "missing_identity", message: "missing identity"}
	rejectRole       = rejection{status: http.StatusForbidden, code: "FORBIDDEN", reason: "missing_role"}
)

// Middleware authenticates requests by API key, taken from X-API-Key or a
// bearer Authorization header, and stores the identity in the context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKeyFrom(r.Header)
			if key == "" {
				reject(w, r, nil, rejectMissingKey)
				return
			}
			identity, ok := validator.Validate(r.Context(), key)
			if !ok {
				reject(w, r, logger, rejectInvalidKey)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole rejects identities without role. It must run after Middleware.
func RequireRole(logger *slog.Logger, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			switch {
			case !ok:
				reject(w, r, nil, rejectNoIdentity)
			case !identity.HasRole(role):
				denied := rejectRole
				denied.message = "role " + role + " is required"
				reject(w, r, logger, denied, slog.String("subject", identity.Subject), slog.String("required_role", role))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func apiKeyFrom(header http.Header) string {
	if key := strings.TrimSpace(header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, credentials, found := strings.Cut(strings.TrimSpace(header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(credentials)
}

func reject(w http.ResponseWriter, r *http.Request, logger *slog.Logger, rej rejection, attrs ...slog.Attr) {
	ctx := r.Context()
	traceID := observability.TraceIDFromContext(ctx)
	observability.ObserveAuthRejection(rej.reason)
	if logger != nil {
		attrs = append(attrs,
			slog.String("trace_id", traceID),
			slog.String("path", r.URL.Path),
			slog.String("reason", rej.reason),
		)
		logger.LogAttrs(ctx, slog.LevelWarn, "request rejected by auth", attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	if rej.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="shopdesk"`)
	}
	w.WriteHeader(rej.status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": rej.code,
		"message":    rej.message,
		"retryable":  false,
		"trace_id":   traceID,
	})
}
