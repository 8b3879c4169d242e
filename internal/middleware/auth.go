package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"mandoob-dispatch-services/internal/auth"

	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const authContextKey contextKey = "authContext"

type AuthContext struct {
	UserID   int64
	DriverID int64
	Role     auth.UserRole
}

func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	value := ctx.Value(authContextKey)
	if value == nil {
		return nil, false
	}
	ac, ok := value.(*AuthContext)
	return ac, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeAuthErrorDebug(w, status, message, "")
}

func writeAuthErrorDebug(w http.ResponseWriter, status int, message string, debug string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload := map[string]any{
		"success": false,
		"error":   "UNAUTHORIZED",
		"message": message,
	}

	if os.Getenv("APP_ENV") == "development" && strings.TrimSpace(debug) != "" {
		payload["debug"] = debug
	}

	_ = json.NewEncoder(w).Encode(payload)
}

func verifyRequest(r *http.Request, jwtSecret string) (*auth.Claims, error) {
	token := auth.ParseBearerToken(r.Header.Get("Authorization"))
	return auth.VerifyAccessToken(token, jwtSecret)
}

// UserAuth admits any authenticated account. Drivers and admins carry a
// user identity too, so they pass as well.
func UserAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifyRequest(r, jwtSecret)
			if err != nil {
				writeAuthErrorDebug(w, http.StatusUnauthorized, "Authorization token required", err.Error())
				return
			}

			userID := claims.UserIDInt64()
			if userID == 0 {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			authCtx := &AuthContext{UserID: userID, DriverID: claims.DriverIDInt64(), Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), authCtx)))
		})
	}
}

// DriverAuth requires a driver token backed by an active driver row.
// Every authenticated driver call refreshes last_activity_at, which is
// what the recent-activity filter in dispatch reads.
func DriverAuth(db *pgxpool.Pool, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifyRequest(r, jwtSecret)
			if err != nil {
				writeAuthErrorDebug(w, http.StatusUnauthorized, "Authorization token required", err.Error())
				return
			}

			if claims.Role != auth.RoleDriver {
				writeAuthError(w, http.StatusForbidden, "Driver access required")
				return
			}

			driverID := claims.DriverIDInt64()
			if driverID == 0 {
				writeAuthError(w, http.StatusUnauthorized, "Driver not found")
				return
			}

			var isActive bool
			err = db.QueryRow(r.Context(), `
				update drivers set last_activity_at = now() where id = $1 returning is_active
			`, driverID).Scan(&isActive)
			if err != nil {
				writeAuthErrorDebug(w, http.StatusUnauthorized, "Driver not found", err.Error())
				return
			}
			if !isActive {
				writeAuthError(w, http.StatusForbidden, "Driver account is disabled")
				return
			}

			authCtx := &AuthContext{UserID: claims.UserIDInt64(), DriverID: driverID, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), authCtx)))
		})
	}
}

func AdminAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifyRequest(r, jwtSecret)
			if err != nil {
				writeAuthErrorDebug(w, http.StatusUnauthorized, "Authorization token required", err.Error())
				return
			}

			if claims.Role != auth.RoleAdmin {
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}

			authCtx := &AuthContext{UserID: claims.UserIDInt64(), Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), authCtx)))
		})
	}
}
