package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/interviewprep/interviewprep/internal/i18n"
	"github.com/interviewprep/interviewprep/internal/model"
)

type accountCtxKey struct{}

func contextWithAccount(ctx context.Context, u *model.UserAccount) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, u)
}

// accountFromContext returns the caller's account as loaded by requireAuth.
func accountFromContext(ctx context.Context) *model.UserAccount {
	u, _ := ctx.Value(accountCtxKey{}).(*model.UserAccount)
	return u
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth verifies the bearer ID token and ensures the caller's account
// exists, starting the trial on first sight.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
			return
		}
		id, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			slog.Debug("rejected token", "error", err)
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
			return
		}

		account, err := h.store.EnsureUser(r.Context(), *id, h.config.TrialLength, h.config.Now())
		if err != nil {
			slog.Error("failed to ensure user", "uid", id.UID, "error", err)
			writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
			return
		}

		ctx := model.ContextWithIdentity(r.Context(), id)
		ctx = contextWithAccount(ctx, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects callers without the admin flag.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := model.IdentityFromContext(r.Context())
		if id == nil {
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
			return
		}
		if !id.Admin {
			writeError(w, http.StatusForbidden, appI18n.T(r.Context(), "Forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
