package server

import (
	"github.com/gin-gonic/gin"
	interpretationdomain "github.com/smallbiznis/caseline/internal/interpretation/domain"
	notedomain "github.com/smallbiznis/caseline/internal/note/domain"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
)

func (s *Server) ListInterpretations(c *gin.Context) {
	rows, err := s.interpretationSvc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, rows)
}

func (s *Server) CreateInterpretation(c *gin.Context) {
	var req interpretationdomain.CreateInterpretationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	row, err := s.interpretationSvc.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, row)
}

func (s *Server) GetInterpretationSummary(c *gin.Context) {
	summary, err := s.interpretationSvc.Summary(c.Request.Context(), c.Param("id"), c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, summary)
}

func (s *Server) GetInterpretation(c *gin.Context) {
	row, err := s.interpretationSvc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, row)
}

func (s *Server) ApproveInterpretation(c *gin.Context) {
	row, err := s.interpretationSvc.Approve(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, row)
}

func (s *Server) ListCaseNotes(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resp, err := s.noteSvc.ListByCase(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) CreateNote(c *gin.Context) {
	var req notedomain.CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	note, err := s.noteSvc.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, note)
}

func (s *Server) ListNotes(c *gin.Context) {
	var req notedomain.ListNoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	resp, err := s.noteSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) GetNote(c *gin.Context) {
	note, err := s.noteSvc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, note)
}
