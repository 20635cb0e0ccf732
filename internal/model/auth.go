package model

import "github.com/golang-jwt/jwt/v5"

// StudentClaims are JWT claims issued by the identity collaborator
type StudentClaims struct {
	StudentID string `json:"studentId"`
	jwt.RegisteredClaims
}
