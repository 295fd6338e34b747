package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
)

func (s *Server) ListDevices(c *gin.Context) {
	var req devicedomain.ListDeviceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Search = strings.TrimSpace(req.Search)

	resp, err := s.deviceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, resp)
}

func (s *Server) CreateDevice(c *gin.Context) {
	var req devicedomain.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	device, err := s.deviceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, device)
}

func (s *Server) GetDevice(c *gin.Context) {
	device, err := s.deviceSvc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, device)
}

func (s *Server) UpdateDevice(c *gin.Context) {
	var req devicedomain.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	device, err := s.deviceSvc.Update(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, device)
}

func (s *Server) SetDeviceStatus(c *gin.Context) {
	var req devicedomain.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	record, err := s.deviceSvc.SetStatus(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, record)
}

func (s *Server) ListDeviceRecords(c *gin.Context) {
	records, err := s.deviceSvc.Records(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, records)
}

func (s *Server) ListMaintenanceRecords(c *gin.Context) {
	records, err := s.deviceSvc.ListRecords(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, records)
}

func (s *Server) TransferDevices(c *gin.Context) {
	var req devicedomain.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	result, err := s.deviceSvc.Transfer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) ListDeviceItems(c *gin.Context) {
	items, err := s.deviceSvc.ListItems(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, items)
}

func (s *Server) CreateDeviceItem(c *gin.Context) {
	var req devicedomain.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.deviceSvc.CreateItem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, item)
}
