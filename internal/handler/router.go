package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/maildigest/internal/middleware"
	"github.com/xxxsen/maildigest/internal/pkg/response"
)

type RouterDeps struct {
	Digest    *DigestHandler
	Summarize *SummarizeHandler
	Reports   *ReportHandler
	Files     *FileHandler
	APIToken  string
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	api.GET("/files/:key", deps.Files.Get)

	authGroup := api.Group("")
	authGroup.Use(middleware.TokenAuth(deps.APIToken))
	authGroup.POST("/digest/run", deps.Digest.Run)
	authGroup.POST("/summarize/document", deps.Summarize.Summarize)
	authGroup.GET("/reports", deps.Reports.List)
	authGroup.GET("/reports/:id", deps.Reports.Get)
}
