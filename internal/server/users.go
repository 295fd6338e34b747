package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/caseline/internal/authorization"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
)

type setGroupsRequest struct {
	Groups []string `json:"groups"`
}

type setPermissionsRequest struct {
	Permissions []authorization.Code `json:"permissions"`
}

type groupPermissions struct {
	Group       string               `json:"group"`
	Permissions []authorization.Code `json:"permissions"`
}

func (s *Server) ListUsers(c *gin.Context) {
	var req userdomain.ListUserRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	accountID, err := parseOptionalSnowflakeID(c.Query("account_id"))
	if err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_account_id", "Invalid account_id"))
		return
	}
	req.AccountID = accountID
	req.Search = strings.TrimSpace(req.Search)

	resp, err := s.userSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) CreateUser(c *gin.Context) {
	var req userdomain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	user, err := s.userSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, user)
}

func (s *Server) GetUser(c *gin.Context) {
	user, err := s.userSvc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, user)
}

func (s *Server) UpdateUser(c *gin.Context) {
	var req userdomain.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	user, err := s.userSvc.Update(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, user)
}

func (s *Server) DeleteUser(c *gin.Context) {
	if err := s.userSvc.Delete(c.Request.Context(), c.Param("slug")); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "User deactivated", nil)
}

func (s *Server) SetUserGroups(c *gin.Context) {
	var req setGroupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	user, err := s.userSvc.SetGroups(c.Request.Context(), c.Param("slug"), req.Groups)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, user)
}

func (s *Server) ListGroups(c *gin.Context) {
	groups, err := s.authzSvc.ListGroups(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, groups)
}

func (s *Server) GetGroupPermissions(c *gin.Context) {
	group := c.Param("name")
	codes, err := s.authzSvc.GroupPermissions(c.Request.Context(), group)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, groupPermissions{Group: group, Permissions: codes})
}

func (s *Server) SetGroupPermissions(c *gin.Context) {
	var req setPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	group := c.Param("name")
	ctx := c.Request.Context()
	if err := s.authzSvc.SetGroupPermissions(ctx, group, req.Permissions); err != nil {
		AbortWithError(c, err)
		return
	}
	codes, err := s.authzSvc.GroupPermissions(ctx, group)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, groupPermissions{Group: group, Permissions: codes})
}

func (s *Server) ListPermissions(c *gin.Context) {
	respondOK(c, authorization.Catalog())
}
