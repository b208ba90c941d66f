package security

import "time"

type TokenClaims struct {
	UserID string
	Role   string
	Name   string
	Email  string
	Exp    time.Time
	Issuer string
}
