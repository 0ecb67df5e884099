package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/maildigest/internal/job"
	"github.com/xxxsen/maildigest/internal/pkg/response"
	"github.com/xxxsen/maildigest/internal/schedule"
)

// DigestHandler triggers a mailbox scan outside the cron schedule.
type DigestHandler struct {
	scheduler schedule.Scheduler
}

func NewDigestHandler(scheduler schedule.Scheduler) *DigestHandler {
	return &DigestHandler{scheduler: scheduler}
}

func (h *DigestHandler) Run(c *gin.Context) {
	if err := h.scheduler.Trigger(job.MailDigestJobName); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"status": "triggered"})
}
