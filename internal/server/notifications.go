package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
)

func (s *Server) ListNotifications(c *gin.Context) {
	var req notificationdomain.ListNotificationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resp, err := s.notificationSvc.ListForUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	if err := s.notificationSvc.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Notification marked as read", nil)
}
