package jwtauth

import (
	authmw "talentgate/pkg/platform/middleware/auth"
)

// Adapter bridges the token service to the auth middleware's validator
// interface.
type Adapter struct {
	service *Service
}

func NewAdapter(service *Service) *Adapter {
	return &Adapter{service: service}
}

func (a *Adapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
	}, nil
}
