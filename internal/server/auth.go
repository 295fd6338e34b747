package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/caseline/internal/auth/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
)

func (s *Server) Login(c *gin.Context) {
	var req authdomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserAgent = c.Request.UserAgent()
	req.IPAddress = c.ClientIP()

	ctx := c.Request.Context()
	result, err := s.authsvc.Login(ctx, req)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, authdomain.ErrInvalidCredentials):
			outcome = "invalid"
		case errors.Is(err, authdomain.ErrTooManyAttempts):
			outcome = "throttled"
		}
		s.metrics.RecordLoginAttempt(ctx, outcome)
		AbortWithError(c, err)
		return
	}
	s.metrics.RecordLoginAttempt(ctx, "ok")

	s.sessions.Set(c, result.Token, result.ExpiresAt)
	respondOK(c, result)
}

func (s *Server) Logout(c *gin.Context) {
	if token, found := s.sessions.ReadToken(c); found {
		if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	s.sessions.Clear(c)
	respond(c, http.StatusOK, "Logged out", nil)
}

func (s *Server) Me(c *gin.Context) {
	user, err := s.userSvc.Me(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, user)
}

func (s *Server) ChangePassword(c *gin.Context) {
	var req userdomain.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.userSvc.ChangePassword(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Password changed", nil)
}
