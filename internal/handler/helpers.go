package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/extract"
	"github.com/xxxsen/maildigest/internal/pkg/errcode"
	appErr "github.com/xxxsen/maildigest/internal/pkg/errors"
	"github.com/xxxsen/maildigest/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)

	var extractErr *extract.ExtractionError
	switch {
	case errors.As(err, &extractErr):
		response.Error(c, errcode.ErrExtractFailed, "document could not be read")
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrTooLarge):
		response.Error(c, errcode.ErrFileTooLarge, "file too large")
	case errors.Is(err, appErr.ErrUnsupportedType):
		response.Error(c, errcode.ErrInvalidFile, "unsupported file type")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

func queryUint(c *gin.Context, key string, fallback uint) uint {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return uint(value)
}
