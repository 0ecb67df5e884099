package job

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/maildigest/internal/convert"
	"github.com/xxxsen/maildigest/internal/filestore"
	"github.com/xxxsen/maildigest/internal/mailbox"
	"github.com/xxxsen/maildigest/internal/model"
	"github.com/xxxsen/maildigest/internal/repo"
	"github.com/xxxsen/maildigest/internal/service"
)

const MailDigestJobName = "mail_digest"

// MailDigestJob scans the mailbox, summarizes every new email plus its
// attachments, and mails the digest report back. One broken email never
// blocks the rest of the batch.
type MailDigestJob struct {
	mailbox     mailbox.Mailbox
	converter   convert.Converter
	summarizer  *service.SummarizeService
	reports     *service.ReportService
	sender      service.EmailSender
	messages    *repo.MessageRepo
	store       filestore.Store
	baseURL     string
	guidance    string
	digestTo    string
	fetchLimit  int
	concurrency int
}

type MailDigestDeps struct {
	Mailbox    mailbox.Mailbox
	Converter  convert.Converter
	Summarizer *service.SummarizeService
	Reports    *service.ReportService
	Sender     service.EmailSender
	Messages   *repo.MessageRepo
	Store      filestore.Store
	BaseURL    string
}

func NewMailDigestJob(deps MailDigestDeps, guidance, digestTo string, fetchLimit, concurrency int) *MailDigestJob {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &MailDigestJob{
		mailbox:     deps.Mailbox,
		converter:   deps.Converter,
		summarizer:  deps.Summarizer,
		reports:     deps.Reports,
		sender:      deps.Sender,
		messages:    deps.Messages,
		store:       deps.Store,
		baseURL:     deps.BaseURL,
		guidance:    guidance,
		digestTo:    digestTo,
		fetchLimit:  fetchLimit,
		concurrency: concurrency,
	}
}

func (j *MailDigestJob) Name() string {
	return MailDigestJobName
}

func (j *MailDigestJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)

	emails, err := j.mailbox.FetchUnread(ctx, j.fetchLimit)
	if err != nil {
		return fmt.Errorf("fetch unread: %w", err)
	}
	if len(emails) == 0 {
		return nil
	}

	var processed, skipped int
	for _, email := range emails {
		done, err := j.messages.IsProcessed(ctx, dedupKey(email))
		if err != nil {
			return fmt.Errorf("check processed: %w", err)
		}
		if done {
			skipped++
			continue
		}
		if err := j.processEmail(ctx, email); err != nil {
			logger.Error("email digest failed",
				zap.String("message_id", email.MessageID),
				zap.String("subject", email.Subject),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	logger.Info("digest batch done",
		zap.Int("fetched", len(emails)),
		zap.Int("processed", processed),
		zap.Int("already_done", skipped),
	)
	return nil
}

func (j *MailDigestJob) processEmail(ctx context.Context, email *model.InboundEmail) error {
	var body *model.SummaryResult
	if email.Body != "" {
		result, err := j.summarizer.SummarizeText(ctx, "email:"+email.MessageID, email.Body, j.guidance)
		if err != nil {
			return fmt.Errorf("summarize body: %w", err)
		}
		body = result
	}

	outcomes := make([]service.AttachmentOutcome, len(email.Attachments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i, att := range email.Attachments {
		g.Go(func() error {
			outcomes[i] = j.processAttachment(gctx, att)
			return nil
		})
	}
	_ = g.Wait()

	report, err := j.reports.Build(ctx, email, body, outcomes)
	if err != nil {
		return err
	}
	if j.digestTo != "" {
		if err := j.sender.Send(j.digestTo, "Digest: "+email.Subject, report.HTML); err != nil {
			return fmt.Errorf("send digest: %w", err)
		}
	}
	return j.messages.MarkProcessed(ctx, dedupKey(email), report.ID, time.Now().Unix())
}

// dedupKey identifies one inbound email across job runs. Some senders omit
// Message-ID; those fall back to a digest of the headers and body so they do
// not all collapse onto the empty key.
func dedupKey(email *model.InboundEmail) string {
	if email.MessageID != "" {
		return email.MessageID
	}
	h := sha256.New()
	h.Write([]byte(email.Sender))
	h.Write([]byte{0})
	h.Write([]byte(email.Subject))
	h.Write([]byte{0})
	h.Write([]byte(email.ReceivedAt.Format(time.RFC3339)))
	h.Write([]byte{0})
	h.Write([]byte(email.Body))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// processAttachment never fails the batch: whatever goes wrong becomes the
// outcome of this one attachment.
func (j *MailDigestJob) processAttachment(ctx context.Context, att *model.Attachment) service.AttachmentOutcome {
	outcome := service.AttachmentOutcome{Filename: att.Filename}

	if att.Err != "" {
		outcome.Err = fmt.Errorf("attachment not retrieved: %s", att.Err)
		return outcome
	}

	outcome.SourceURL = j.archiveAttachment(ctx, att)

	doc, err := j.converter.Convert(ctx, att)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	result, err := j.summarizer.Summarize(ctx, doc, j.guidance)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Result = result
	return outcome
}

// archiveAttachment keeps the original bytes around for later retrieval and
// returns the public URL of the stored copy, which the report links back to.
// Best-effort: a broken archive returns "" and never blocks summarization.
func (j *MailDigestJob) archiveAttachment(ctx context.Context, att *model.Attachment) string {
	if j.store == nil {
		return ""
	}
	key := uuid.NewString() + "_" + filepath.Base(att.Filename)
	if err := j.store.Save(ctx, key, bytes.NewReader(att.Data), int64(len(att.Data))); err != nil {
		logutil.GetLogger(ctx).Warn("archive attachment failed",
			zap.String("filename", att.Filename),
			zap.Error(err),
		)
		return ""
	}
	logutil.GetLogger(ctx).Info("attachment archived",
		zap.String("filename", att.Filename),
		zap.String("key", key),
	)
	return j.store.URL(key, j.baseURL)
}
