package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"diagnostics/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService validates student tokens issued by the identity collaborator.
// IssueStudentToken exists for seeding and local testing.
type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(secret string) *AuthService {
	return &AuthService{
		jwtSecret: []byte(secret),
		tokenTTL:  30 * 24 * time.Hour,
	}
}

// IssueStudentToken signs a student-scoped token
func (s *AuthService) IssueStudentToken(studentID string) (string, error) {
	now := time.Now()
	claims := &model.StudentClaims{
		StudentID: studentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   studentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateStudentToken validates a student JWT and returns claims
func (s *AuthService) ValidateStudentToken(tokenString string) (*model.StudentClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.StudentClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.StudentClaims)
	if !ok || !token.Valid || claims.StudentID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
