package middleware

import (
	"context"
	"net/http"
	"strings"

	"diagnostics/internal/service"
)

type contextKey string

// StudentIDKey holds the authenticated student in the request context
const StudentIDKey contextKey = "studentId"

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireStudent validates a student JWT from the Authorization header or the token query param
func (m *AuthMiddleware) RequireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			unauthorized(w, "missing authorization")
			return
		}

		claims, err := m.authSvc.ValidateStudentToken(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), StudentIDKey, claims.StudentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetStudentID extracts student ID from context
func GetStudentID(ctx context.Context) string {
	if v, ok := ctx.Value(StudentIDKey).(string); ok {
		return v
	}
	return ""
}

// WithStudentID stores a student ID the way RequireStudent does
func WithStudentID(ctx context.Context, studentID string) context.Context {
	return context.WithValue(ctx, StudentIDKey, studentID)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"message":"` + message + `","code":"unauthorized"}}`))
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
