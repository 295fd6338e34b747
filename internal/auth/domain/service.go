package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/caseline/internal/principal"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
)

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	// Authenticate verifies a bearer token and returns the caller it was
	// issued to.
	Authenticate(ctx context.Context, rawToken string) (principal.Principal, error)
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

type LoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *userdomain.User `json:"user"`
}
