package middleware

import (
	"context"
	"database/sql"
	"net/http"

	"task-manager/logging"
	"task-manager/models"
	"task-manager/permissions"
	"task-manager/store"
	"task-manager/utils"
)

type ctxKey int

const userKey ctxKey = iota

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// Authenticator resolves the session JWT of a request to an active user.
type Authenticator struct {
	DB     *sql.DB
	Secret string
}

func unauthorized(w http.ResponseWriter, message string) {
	utils.RespondWithError(w, http.StatusUnauthorized, models.Error{Message: message, Code: "unauthenticated"})
}

func forbidden(w http.ResponseWriter) {
	utils.RespondWithError(w, http.StatusForbidden, models.Error{
		Message: "You do not have permission to perform this action.",
		Code:    "permission_denied",
	})
}

// Required rejects requests without a valid session for an active user and
// loads the user, with group permissions, into the request context.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := utils.TokenFromRequest(r)
		if tokenString == "" {
			unauthorized(w, "Authentication credentials were not provided.")
			return
		}
		userID, err := utils.SessionUserID(tokenString, a.Secret)
		if err != nil {
			logging.Logger.Warnf("Event ID: AUTH_INVALID_TOKEN, Description: %s %s: %v", r.Method, r.URL.Path, err)
			unauthorized(w, "Invalid or expired token.")
			return
		}
		user, err := store.GetUserByID(r.Context(), a.DB, userID)
		if err == store.ErrNotFound || (err == nil && !user.IsActive) {
			unauthorized(w, "User not found or inactive.")
			return
		}
		if err != nil {
			logging.Logger.Errorf("Event ID: AUTH_USER_LOOKUP_FAILED, Description: %v", err)
			utils.RespondWithError(w, http.StatusInternalServerError, models.Error{Message: "Internal server error"})
			return
		}
		if user.Permissions, err = store.UserPermissions(r.Context(), a.DB, user.ID); err != nil {
			logging.Logger.Errorf("Event ID: AUTH_PERMISSIONS_FAILED, Description: %v", err)
			utils.RespondWithError(w, http.StatusInternalServerError, models.Error{Message: "Internal server error"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// allow builds a guard that admits users for whom ok returns true.
func allow(ok func(models.User) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, found := UserFromContext(r.Context())
			if !found {
				unauthorized(w, "Authentication credentials were not provided.")
				return
			}
			if !ok(user) {
				logging.Logger.Infof("Event ID: ACCESS_DENIED, Description: user %d (%s) denied %s %s", user.ID, user.Role, r.Method, r.URL.Path)
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return allow(func(u models.User) bool {
		for _, role := range roles {
			if u.Role == role {
				return true
			}
		}
		return false
	})
}

// RequireAdmin admits role Admin and superusers.
func RequireAdmin() func(http.Handler) http.Handler {
	return allow(func(u models.User) bool { return u.IsAdmin() || u.IsSuperuser })
}

func RequireStaff() func(http.Handler) http.Handler {
	return allow(func(u models.User) bool { return u.IsStaff || u.IsSuperuser })
}

func RequirePerm(codename string) func(http.Handler) http.Handler {
	return allow(func(u models.User) bool { return permissions.HasPerm(u, codename) })
}
