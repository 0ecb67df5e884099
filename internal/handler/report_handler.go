package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/maildigest/internal/pkg/errcode"
	"github.com/xxxsen/maildigest/internal/pkg/response"
	"github.com/xxxsen/maildigest/internal/service"
)

type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func (h *ReportHandler) List(c *gin.Context) {
	offset := queryUint(c, "offset", 0)
	limit := queryUint(c, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	reports, err := h.reports.List(c.Request.Context(), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	// the full html body is only returned by Get
	for _, report := range reports {
		report.HTML = ""
	}
	response.Success(c, reports)
}

func (h *ReportHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, errcode.ErrInvalid, "report id is required")
		return
	}
	report, err := h.reports.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}
