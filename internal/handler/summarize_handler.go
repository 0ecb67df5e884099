package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/maildigest/internal/convert"
	"github.com/xxxsen/maildigest/internal/model"
	"github.com/xxxsen/maildigest/internal/pkg/errcode"
	"github.com/xxxsen/maildigest/internal/pkg/response"
	"github.com/xxxsen/maildigest/internal/service"
)

// SummarizeHandler exposes on-demand document summarization, outside the
// mailbox flow.
type SummarizeHandler struct {
	converter  convert.Converter
	summarizer *service.SummarizeService
	maxBytes   int64
}

func NewSummarizeHandler(converter convert.Converter, summarizer *service.SummarizeService, maxBytes int64) *SummarizeHandler {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &SummarizeHandler{converter: converter, summarizer: summarizer, maxBytes: maxBytes}
}

func (h *SummarizeHandler) Summarize(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "file is required")
		return
	}
	if file.Size > h.maxBytes {
		response.Error(c, errcode.ErrFileTooLarge, "file too large")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, h.maxBytes))
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}

	doc, err := h.converter.Convert(c.Request.Context(), &model.Attachment{
		Filename:  file.Filename,
		MediaType: file.Header.Get("Content-Type"),
		Data:      data,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	result, err := h.summarizer.Summarize(c.Request.Context(), doc, c.PostForm("guidance"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
