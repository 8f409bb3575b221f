package acl

import (
	"encoding/json"
	"net/http"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/manifest"
)

// RequirePipe rejects requests whose user may not call the pipe named by
// pipeFromRequest.
func RequirePipe(
	loader *Loader,
	manifests *manifest.Loader,
	userFromRequest func(r *http.Request) *domain.User,
	pipeFromRequest func(r *http.Request) string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromRequest(r)
			if !loader.IsPipeAllowed(pipeFromRequest(r), user, manifests.Load()) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(domain.ErrForbidden("Not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
