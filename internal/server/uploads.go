package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
)

const maxUploadBytes = 10 << 20

func (s *Server) UploadAccounts(c *gin.Context) {
	s.upload(c, importerdomain.KindAccount)
}

func (s *Server) UploadDevices(c *gin.Context) {
	s.upload(c, importerdomain.KindDevice)
}

func (s *Server) upload(c *gin.Context, kind importerdomain.Kind) {
	c.Set("upload_kind", string(kind))
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "A .csv or .xlsx file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	detail, err := s.importerSvc.Upload(ctx, kind, header.Filename, file)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var valid, invalid int
	for _, item := range detail.Items {
		if item.Errors.Data().Empty() {
			valid++
		} else {
			invalid++
		}
	}
	s.metrics.RecordImportRows(ctx, string(kind), true, valid)
	s.metrics.RecordImportRows(ctx, string(kind), false, invalid)

	respondCreated(c, detail)
}

func (s *Server) GetUpload(c *gin.Context) {
	detail, err := s.importerSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, detail)
}

func (s *Server) CommitUpload(c *gin.Context) {
	result, err := s.importerSvc.Commit(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, result)
}
