package auth

import "errors"

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrUnauthorized     = errors.New("auth: unauthorized")
	ErrRoleForbidden    = errors.New("auth: role forbidden")
	ErrAbilityForbidden = errors.New("auth: ability forbidden")
)
