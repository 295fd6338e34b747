package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// associationRequest names the partner account by id or account number.
type associationRequest struct {
	AccountID     snowflake.ID `json:"account_id"`
	AccountNumber string       `json:"account_number"`
}

type contactRequest struct {
	UserID snowflake.ID `json:"user_id"`
}

func (s *Server) partnerAccount(c *gin.Context) (snowflake.ID, error) {
	var req associationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return 0, invalidRequestError()
	}
	if req.AccountID != 0 {
		return req.AccountID, nil
	}
	number := strings.TrimSpace(req.AccountNumber)
	if number == "" {
		return 0, newValidationError("account_id", "required", "An account id or account number is required")
	}
	account, err := s.accountSvc.FindByNumber(c.Request.Context(), number)
	if err != nil {
		return 0, err
	}
	return account.ID, nil
}

func (s *Server) ListAssociatedAccounts(c *gin.Context) {
	accepted, err := queryBool(c, "accepted")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rows, err := s.associationSvc.ListAccounts(c.Request.Context(), accepted)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, rows)
}

func (s *Server) RequestAccountAssociation(c *gin.Context) {
	to, err := s.partnerAccount(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	assoc, err := s.associationSvc.RequestAccount(c.Request.Context(), to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, assoc)
}

func (s *Server) RequestAssociationViaAdmin(c *gin.Context) {
	to, err := s.partnerAccount(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.associationSvc.RequestViaAdmin(c.Request.Context(), to); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Request sent to account admin", nil)
}

func (s *Server) AcceptAccountAssociation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	assoc, err := s.associationSvc.AcceptAccount(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, assoc)
}

func (s *Server) RemoveAccountAssociation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.associationSvc.RemoveAccount(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Association removed", nil)
}

func (s *Server) ListAssociatedContacts(c *gin.Context) {
	accepted, err := queryBool(c, "accepted")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rows, err := s.associationSvc.ListContacts(c.Request.Context(), accepted)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, rows)
}

func (s *Server) RequestContactAssociation(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	assoc, err := s.associationSvc.RequestContact(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, assoc)
}

func (s *Server) RequestContactViaAdmin(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.associationSvc.RequestContactViaAdmin(c.Request.Context(), req.UserID); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Request sent to account admin", nil)
}

func (s *Server) InviteContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.associationSvc.InviteContact(c.Request.Context(), req.UserID); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Invite sent", nil)
}

func (s *Server) AcceptContactAssociation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	assoc, err := s.associationSvc.AcceptContact(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, assoc)
}

func (s *Server) RemoveContactAssociation(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.associationSvc.RemoveContact(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Association removed", nil)
}
