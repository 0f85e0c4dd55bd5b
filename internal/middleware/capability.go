package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sellerlens/internal/access"
	"github.com/hitoshi/sellerlens/internal/model"
)

// RoleFinder はユーザーのプロフィール（ロール）を取得する。
type RoleFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// NewCapabilityMiddleware はユーザーのロールがcapabilityを許可されている場合のみ通すミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func NewCapabilityMiddleware(policy *access.Policy, profiles RoleFinder, capability access.Capability) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewAPIErrorFromKind(model.KindUnauthenticated))
				return
			}

			profile, err := profiles.FindByUserID(r.Context(), userID)
			if err != nil {
				slog.Error("failed to load profile for capability check",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			var role model.Role
			if profile != nil {
				role = profile.Role
			}
			if !policy.Allows(role, capability) {
				slog.Warn("capability denied",
					slog.String("user_id", userID),
					slog.String("role", string(role)),
					slog.String("capability", string(capability)),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
