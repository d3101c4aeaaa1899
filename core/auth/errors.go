package auth

import "errors"

var (
	ErrDuplicateIdentity   = errors.New("user with this email or username already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountBlocked      = errors.New("account is blocked")
	ErrAccountLocked       = errors.New("account locked due to too many failed login attempts")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrPasswordMismatch    = errors.New("current password is incorrect")
	ErrUserNotFound        = errors.New("user not found")
)
