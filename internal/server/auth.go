package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/Dmi3yy/webui-pipes/internal/auth"
	"github.com/Dmi3yy/webui-pipes/internal/domain"
)

type userKey struct{}

// AuthMiddleware rejects requests without a valid API key. A nil
// authenticator lets every request through.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authenticator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("Authorization")
			if apiKey == "" {
				writeUnauthorized(w, "Missing Authorization header")
				return
			}
			if len(apiKey) > 7 && strings.EqualFold(apiKey[:7], "Bearer ") {
				apiKey = apiKey[7:]
			}
			if err := authenticator.ValidateAPIKey(apiKey); err != nil {
				AddError(r.Context(), err)
				writeUnauthorized(w, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(domain.NewErrorPayload(domain.ErrorCodeUnauthorized, msg).String()))
}

// User identity headers. The host forwards its X-OpenWebUI-User-* headers;
// the short X-User-* forms are accepted for direct callers.
var userHeaders = map[string][2]string{
	"id":    {"X-OpenWebUI-User-Id", "X-User-Id"},
	"role":  {"X-OpenWebUI-User-Role", "X-User-Role"},
	"name":  {"X-OpenWebUI-User-Name", "X-User-Name"},
	"email": {"X-OpenWebUI-User-Email", "X-User-Email"},
}

func header(r *http.Request, field string) string {
	for _, h := range userHeaders[field] {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

// UserFromHeaders builds the calling user from identity headers, or nil when
// neither an id nor a role is present.
func UserFromHeaders(r *http.Request) *domain.User {
	u := &domain.User{
		ID:    header(r, "id"),
		Role:  header(r, "role"),
		Name:  header(r, "name"),
		Email: header(r, "email"),
	}
	if u.ID == "" && u.Role == "" {
		return nil
	}
	return u
}

// UserMiddleware stores the header identity in the request context.
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromHeaders(r)
		if u == nil {
			next.ServeHTTP(w, r)
			return
		}
		AddLogField(r.Context(), "user_id", u.ID)
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user stored by UserMiddleware, or nil.
func UserFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey{}).(*domain.User)
	return u
}
