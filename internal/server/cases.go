package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	casesdomain "github.com/smallbiznis/caseline/internal/cases/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
)

type rolesRequest struct {
	Roles caseroledomain.Assignment `json:"roles"`
}

type matrixRequest struct {
	NotificationMatrix []matrixdomain.Override `json:"notification_matrix"`
}

func (s *Server) ListCases(c *gin.Context) {
	var req casesdomain.ListCaseRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Search = strings.TrimSpace(req.Search)

	resp, err := s.caseSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) CreateCase(c *gin.Context) {
	var req casesdomain.CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	detail, err := s.caseSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, detail)
}

func (s *Server) GetCase(c *gin.Context) {
	detail, err := s.caseSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) UpdateCase(c *gin.Context) {
	var req casesdomain.UpdateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	detail, err := s.caseSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) CloseCase(c *gin.Context) {
	detail, err := s.caseSvc.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) ChangeCaseDevice(c *gin.Context) {
	var req casesdomain.ChangeDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	detail, err := s.caseSvc.ChangeDevice(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) ArchiveCases(c *gin.Context) {
	var req casesdomain.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	result, err := s.caseSvc.Archive(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) UnarchiveCases(c *gin.Context) {
	var req casesdomain.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	result, err := s.caseSvc.Unarchive(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) ArchiveCase(c *gin.Context) {
	result, err := s.caseSvc.Archive(c.Request.Context(), casesdomain.ArchiveRequest{Cases: []string{c.Param("id")}})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) UnarchiveCase(c *gin.Context) {
	result, err := s.caseSvc.Unarchive(c.Request.Context(), casesdomain.ArchiveRequest{Cases: []string{c.Param("id")}})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) ListCasesToArchive(c *gin.Context) {
	cases, err := s.caseSvc.ListToArchive(c.Request.Context(), c.Query("before"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, cases)
}

func (s *Server) GetCaseRoles(c *gin.Context) {
	roles, err := s.caseSvc.Roles(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, roles)
}

func (s *Server) UpdateCaseRoles(c *gin.Context) {
	var req rolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	roles, err := s.caseSvc.UpdateRoles(c.Request.Context(), c.Param("id"), req.Roles)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, roles)
}

func (s *Server) GetCaseMatrix(c *gin.Context) {
	entries, err := s.caseSvc.Matrix(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, entries)
}

func (s *Server) UpdateCaseMatrix(c *gin.Context) {
	var req matrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	entries, err := s.caseSvc.UpdateMatrix(c.Request.Context(), c.Param("id"), req.NotificationMatrix)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, entries)
}

func (s *Server) GetDefaultMatrix(c *gin.Context) {
	entries, err := s.matrixSvc.ListDefault(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, entries)
}

func (s *Server) UpdateDefaultMatrix(c *gin.Context) {
	var req matrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	entries, err := s.matrixSvc.UpdateDefault(c.Request.Context(), req.NotificationMatrix)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, entries)
}
