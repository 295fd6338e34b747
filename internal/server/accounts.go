package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
)

type setDomainRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) ListAccounts(c *gin.Context) {
	var req accountdomain.ListAccountRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	parentID, err := parseOptionalSnowflakeID(c.Query("parent_id"))
	if err != nil {
		AbortWithError(c, newValidationError("parent_id", "invalid_parent_id", "Invalid parent_id"))
		return
	}
	req.ParentID = parentID
	req.Search = strings.TrimSpace(req.Search)

	resp, err := s.accountSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req accountdomain.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	account, err := s.accountSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, account)
}

func (s *Server) GetAccount(c *gin.Context) {
	detail, err := s.accountSvc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) UpdateAccount(c *gin.Context) {
	var req accountdomain.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	account, err := s.accountSvc.Update(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, account)
}

func (s *Server) DeleteAccount(c *gin.Context) {
	if err := s.accountSvc.Delete(c.Request.Context(), c.Param("slug")); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Account deleted", nil)
}

func (s *Server) AcquireAccount(c *gin.Context) {
	var req accountdomain.AcquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	account, err := s.accountSvc.Acquire(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, account)
}

func (s *Server) SetAccountActive(c *gin.Context) {
	var req accountdomain.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	account, err := s.accountSvc.SetActive(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, account)
}

func (s *Server) ListAcquiringCandidates(c *gin.Context) {
	accounts, err := s.accountSvc.AcquiringCandidates(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, accounts)
}

func (s *Server) ListSubsidiaries(c *gin.Context) {
	accounts, err := s.accountSvc.Subsidiaries(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, accounts)
}

func (s *Server) SetAccountDomain(c *gin.Context) {
	var req setDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	account, err := s.accountSvc.SetDomain(c.Request.Context(), c.Param("slug"), req.Domain)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, account)
}

func (s *Server) ListCaseUsers(c *gin.Context) {
	users, err := s.accountSvc.CaseUsers(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, users)
}

func (s *Server) GetAccountSubscription(c *gin.Context) {
	summary, err := s.accountSvc.Subscription(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, summary)
}

// accountID resolves the :slug parameter. The lookup also checks that the
// caller may view the account.
func (s *Server) accountID(c *gin.Context) (snowflake.ID, error) {
	detail, err := s.accountSvc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		return 0, err
	}
	return detail.ID, nil
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	id, err := s.accountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.subscriptionSvc.History(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, history)
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	id, err := s.accountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.AccountID = id
	sub, err := s.subscriptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, sub)
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	var req subscriptiondomain.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	id, err := s.accountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.AccountID = id
	sub, err := s.subscriptionSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, sub)
}

func (s *Server) RenewSubscription(c *gin.Context) {
	var req subscriptiondomain.RenewSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	id, err := s.accountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.AccountID = id
	sub, err := s.subscriptionSvc.Renew(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, sub)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, err := s.accountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.subscriptionSvc.Cancel(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Subscription cancelled", nil)
}

func (s *Server) CreateDeviceSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateDeviceSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	id, err := s.accountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.AccountID = id
	sub, err := s.subscriptionSvc.CreateDevice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, sub)
}
