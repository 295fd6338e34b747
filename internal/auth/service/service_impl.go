package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/caseline/internal/auth/domain"
	"github.com/smallbiznis/caseline/internal/auth/password"
	"github.com/smallbiznis/caseline/internal/clock"
	"github.com/smallbiznis/caseline/internal/config"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/ratelimit"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	GenID       *snowflake.Node
	Clock       clock.Clock
	SessionRepo domain.SessionRepository
	UserRepo    userdomain.Repository
	Users       userdomain.Service
	Limiter     *ratelimit.LoginLimiter `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	secret      []byte
	cfg         config.AuthConfig
	genID       *snowflake.Node
	clock       clock.Clock
	sessionRepo domain.SessionRepository
	userRepo    userdomain.Repository
	users       userdomain.Service
	limiter     *ratelimit.LoginLimiter
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auth.service"),
		secret:      []byte(p.Config.Auth.JWTSecret),
		cfg:         p.Config.Auth,
		genID:       p.GenID,
		clock:       p.Clock,
		sessionRepo: p.SessionRepo,
		userRepo:    p.UserRepo,
		users:       p.Users,
		limiter:     p.Limiter,
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	if len(s.secret) == 0 {
		return nil, domain.ErrMissingSecret
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.limiter.Allow(ctx, email)
	if err != nil {
		// fail open
		s.log.Warn("login limiter unavailable", zap.Error(err))
	} else if !result.Allowed {
		return nil, domain.ErrTooManyAttempts
	}

	user, err := s.userRepo.FindByEmail(ctx, s.db, email)
	if errors.Is(err, userdomain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.clock.Now().UTC()
	session := &domain.Session{
		ID:         s.genID.Generate(),
		UserID:     user.ID,
		UserAgent:  strings.TrimSpace(req.UserAgent),
		IPAddress:  strings.TrimSpace(req.IPAddress),
		ExpiresAt:  now.Add(s.cfg.TokenTTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	token, err := s.sign(session, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("session_id", session.ID.String()))
	return &domain.LoginResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.parse(rawToken)
	if err != nil {
		return err
	}
	sessionID, err := snowflake.ParseString(claims.ID)
	if err != nil {
		return domain.ErrInvalidSession
	}
	return s.sessionRepo.RevokeSession(ctx, sessionID, s.clock.Now().UTC())
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (principal.Principal, error) {
	claims, err := s.parse(rawToken)
	if err != nil {
		return principal.Principal{}, err
	}
	sessionID, err := snowflake.ParseString(claims.ID)
	if err != nil {
		return principal.Principal{}, domain.ErrInvalidSession
	}
	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil {
		return principal.Principal{}, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSession(ctx, sessionID)
	if err != nil {
		return principal.Principal{}, err
	}
	if session.UserID != userID {
		return principal.Principal{}, domain.ErrInvalidSession
	}
	if session.RevokedAt != nil {
		return principal.Principal{}, domain.ErrSessionRevoked
	}
	now := s.clock.Now().UTC()
	if !now.Before(session.ExpiresAt) {
		return principal.Principal{}, domain.ErrSessionExpired
	}

	p, err := s.users.Principal(ctx, userID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) || errors.Is(err, userdomain.ErrInactiveUser) {
			return principal.Principal{}, domain.ErrInvalidSession
		}
		return principal.Principal{}, err
	}

	if err := s.sessionRepo.UpdateLastSeen(ctx, sessionID, now); err != nil {
		s.log.Warn("failed to touch session", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
	return p, nil
}

func (s *Service) sign(session *domain.Session, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   session.UserID.String(),
		ID:        session.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) parse(rawToken string) (*jwt.RegisteredClaims, error) {
	if len(s.secret) == 0 {
		return nil, domain.ErrMissingSecret
	}
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidSession
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, domain.ErrSessionExpired
	}
	if err != nil {
		return nil, domain.ErrInvalidSession
	}
	return claims, nil
}
