package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the token payload accepted on protected routes.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
