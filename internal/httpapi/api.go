package httpapi

import (
	"exam-app/internal/auth"
	"exam-app/internal/exam"
)

type API struct {
	service *exam.Service
	tokens  *auth.TokenService
	creds   auth.Credentials
}

func NewAPI(service *exam.Service, tokens *auth.TokenService, creds auth.Credentials) *API {
	return &API{
		service: service,
		tokens:  tokens,
		creds:   creds,
	}
}
