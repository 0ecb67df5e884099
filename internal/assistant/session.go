package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/caption"
	"github.com/xxxsen/maildigest/internal/config"
	"github.com/xxxsen/maildigest/internal/model"
)

// RunFailedError is a semantic rejection reported by the remote model
// (content policy, invalid input). Never retried.
type RunFailedError struct {
	Status  string
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("assistant run %s: %s %s", e.Status, e.Code, e.Message)
}

// RunExpiredError means the run did not reach a terminal state within the
// thread timeout. Distinct from RunFailedError because it is retryable.
type RunExpiredError struct {
	Timeout time.Duration
}

func (e *RunExpiredError) Error() string {
	return fmt.Sprintf("assistant run expired after %s", e.Timeout)
}

// session lifecycle states. Transitions are guarded: attaching files after
// the run started, or reusing a released session, is a programming error.
type sessionState int

const (
	stateCreated sessionState = iota
	stateFilesAttached
	stateRunning
	stateCompleted
	stateFailed
	stateExpired
	stateReleased
)

func (s sessionState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateFilesAttached:
		return "files_attached"
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	case stateExpired:
		return "expired"
	case stateReleased:
		return "released"
	default:
		return "unknown"
	}
}

var transitions = map[sessionState][]sessionState{
	stateCreated:       {stateFilesAttached, stateFailed, stateReleased},
	stateFilesAttached: {stateRunning, stateFailed, stateReleased},
	stateRunning:       {stateCompleted, stateFailed, stateExpired, stateReleased},
	stateCompleted:     {stateReleased},
	stateFailed:        {stateReleased},
	stateExpired:       {stateReleased},
}

// session is the handle for one remote thread plus the files attached to it.
// Owned by a single Run call, never shared.
type session struct {
	state    sessionState
	threadID string
	fileIDs  []string
}

func (s *session) to(next sessionState) error {
	for _, allowed := range transitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal session transition %s -> %s", s.state, next)
}

// Manager drives one summarization through the remote assistant session
// lifecycle: create thread, attach content, run, poll, collect, release.
type Manager struct {
	client    Client
	captioner caption.Provider
	cfg       config.SummarizerConfig

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu          sync.Mutex
	assistantID string
	version     string
}

type ManagerOption func(*Manager)

// WithSleep replaces the poll sleeper, for tests with fake clocks.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) { m.sleep = fn }
}

// WithNow injects the clock used for the poll deadline and durations.
func WithNow(fn func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = fn }
}

func NewManager(client Client, captioner caption.Provider, cfg config.SummarizerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		client:    client,
		captioner: captioner,
		cfg:       cfg,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes one summarization session for the bundle. Remote resources
// are released best-effort regardless of outcome; a cleanup failure is
// logged and never masks the primary result.
func (m *Manager) Run(ctx context.Context, bundle *model.ContentBundle, guidance string) (*model.SummaryResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("filename", bundle.Filename))
	start := m.now()

	assistantID, err := m.getOrCreateAssistant(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve assistant: %w", err)
	}

	captions := m.captionImages(ctx, bundle)

	sess := &session{state: stateCreated}
	thread, err := m.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	sess.threadID = thread.ID
	defer m.release(ctx, sess)

	if err := m.attachContent(ctx, sess, bundle, captions, guidance); err != nil {
		return nil, err
	}

	run, err := m.client.CreateRun(ctx, sess.threadID, openai.RunRequest{
		AssistantID:            assistantID,
		AdditionalInstructions: guidance,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := sess.to(stateRunning); err != nil {
		return nil, err
	}

	final, err := m.pollRun(ctx, sess, run.ID)
	if err != nil {
		return nil, err
	}

	summary, err := m.latestAssistantText(ctx, sess.threadID)
	if err != nil {
		return nil, err
	}

	logger.Info("summarization run completed",
		zap.String("thread_id", sess.threadID),
		zap.Int("uploaded_files", len(sess.fileIDs)),
		zap.Int("total_tokens", final.Usage.TotalTokens),
		zap.Duration("duration", m.now().Sub(start)),
	)
	return &model.SummaryResult{
		Success: true,
		Summary: summary,
		Metadata: model.SummaryMetadata{
			Filename:  bundle.Filename,
			PageCount: bundle.PageCount,
			Captions:  captions,
			Figures:   orderedFigures(bundle, captions),
			Usage: model.TokenUsage{
				PromptTokens:     final.Usage.PromptTokens,
				CompletionTokens: final.Usage.CompletionTokens,
				TotalTokens:      final.Usage.TotalTokens,
			},
			Duration: m.now().Sub(start),
		},
	}, nil
}

// captionImages describes every usable image, in page order. A caption
// failure degrades to a missing caption and never fails the session.
func (m *Manager) captionImages(ctx context.Context, bundle *model.ContentBundle) map[string]string {
	captions := make(map[string]string)
	if m.captioner == nil {
		return captions
	}
	logger := logutil.GetLogger(ctx).With(zap.String("filename", bundle.Filename))
	for _, img := range bundle.UsableImages() {
		text, err := m.captioner.Caption(ctx, img)
		if err != nil {
			logger.Warn("caption generation failed",
				zap.Int("page", img.Page),
				zap.Int("index", img.Index),
				zap.Error(err),
			)
			continue
		}
		img.Caption = text
		captions[img.ID] = text
	}
	return captions
}

// orderedFigures lists the generated captions in bundle image order, which is
// ascending (page, index). The report renders figures straight from this list.
func orderedFigures(bundle *model.ContentBundle, captions map[string]string) []model.ImageCaption {
	if len(captions) == 0 {
		return nil
	}
	figures := make([]model.ImageCaption, 0, len(captions))
	for _, img := range bundle.Images {
		text, ok := captions[img.ID]
		if !ok {
			continue
		}
		figures = append(figures, model.ImageCaption{
			ImageID: img.ID,
			Page:    img.Page,
			Index:   img.Index,
			Caption: text,
		})
	}
	return figures
}

// attachContent embeds the bundle text into the thread input and uploads
// every usable image as a remote file, in ascending (page, index) order. The
// remote model's reading order follows upload order, which in turn follows
// page order in the report.
func (m *Manager) attachContent(ctx context.Context, sess *session, bundle *model.ContentBundle, captions map[string]string, guidance string) error {
	attachments := make([]openai.ThreadAttachment, 0, len(bundle.Images))
	for _, img := range bundle.UsableImages() {
		name := fmt.Sprintf("%s_p%d_img%d_%s.%s", strings.TrimSuffix(bundle.Filename, ".pdf"), img.Page, img.Index, shortID(img.ID), img.Format)
		file, err := m.client.CreateFileBytes(ctx, openai.FileBytesRequest{
			Name:    name,
			Bytes:   img.Data,
			Purpose: openai.PurposeAssistants,
		})
		if err != nil {
			return fmt.Errorf("upload image page=%d index=%d: %w", img.Page, img.Index, err)
		}
		sess.fileIDs = append(sess.fileIDs, file.ID)
		attachments = append(attachments, openai.ThreadAttachment{
			FileID: file.ID,
			Tools:  []openai.ThreadAttachmentTool{{Type: string(openai.AssistantToolTypeFileSearch)}},
		})
	}

	if _, err := m.client.CreateMessage(ctx, sess.threadID, openai.MessageRequest{
		Role:        openai.ChatMessageRoleUser,
		Content:     buildPrompt(bundle, captions, guidance),
		Attachments: attachments,
	}); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return sess.to(stateFilesAttached)
}

// pollRun waits for the run to reach a terminal state, at a bounded interval,
// up to the configured thread timeout.
func (m *Manager) pollRun(ctx context.Context, sess *session, runID string) (openai.Run, error) {
	timeout := time.Duration(m.cfg.ThreadTimeoutS) * time.Second
	interval := time.Duration(m.cfg.PollIntervalMS) * time.Millisecond
	deadline := m.now().Add(timeout)

	for {
		run, err := m.client.RetrieveRun(ctx, sess.threadID, runID)
		if err != nil {
			return openai.Run{}, fmt.Errorf("retrieve run: %w", err)
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, sess.to(stateCompleted)
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusRequiresAction, openai.RunStatusIncomplete:
			if err := sess.to(stateFailed); err != nil {
				return openai.Run{}, err
			}
			return openai.Run{}, runFailure(run)
		case openai.RunStatusExpired:
			if err := sess.to(stateExpired); err != nil {
				return openai.Run{}, err
			}
			return openai.Run{}, &RunExpiredError{Timeout: timeout}
		}

		if m.now().After(deadline) {
			if err := sess.to(stateExpired); err != nil {
				return openai.Run{}, err
			}
			return openai.Run{}, &RunExpiredError{Timeout: timeout}
		}
		if err := m.sleep(ctx, interval); err != nil {
			return openai.Run{}, err
		}
	}
}

// shortID truncates a synthetic image ID for use in a remote file name. IDs
// shorter than 8 bytes are kept whole.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runFailure(run openai.Run) error {
	e := &RunFailedError{Status: string(run.Status)}
	if run.LastError != nil {
		e.Code = string(run.LastError.Code)
		e.Message = run.LastError.Message
	}
	return e
}

// latestAssistantText reads the newest message of the thread, which holds the
// assistant response after a completed run.
func (m *Manager) latestAssistantText(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := m.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(list.Messages) == 0 || list.Messages[0].Role != openai.ChatMessageRoleAssistant {
		return "", fmt.Errorf("assistant response not found")
	}
	for _, content := range list.Messages[0].Content {
		if content.Text != nil {
			return strings.TrimSpace(content.Text.Value), nil
		}
	}
	return "", fmt.Errorf("assistant response has no text content")
}

// release deletes uploaded files and the thread. Unconditional and
// best-effort: failures are logged, never escalated, and the cleanup runs
// even when the caller's context already lapsed.
func (m *Manager) release(ctx context.Context, sess *session) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	logger := logutil.GetLogger(cleanupCtx).With(zap.String("thread_id", sess.threadID))

	for _, fileID := range sess.fileIDs {
		if err := m.client.DeleteFile(cleanupCtx, fileID); err != nil {
			logger.Warn("delete remote file failed", zap.String("file_id", fileID), zap.Error(err))
		}
	}
	if sess.threadID != "" {
		if _, err := m.client.DeleteThread(cleanupCtx, sess.threadID); err != nil {
			logger.Warn("delete thread failed", zap.Error(err))
		}
	}
	if err := sess.to(stateReleased); err != nil {
		logger.Warn("session release bookkeeping", zap.Error(err))
	}
}

// getOrCreateAssistant reuses one remote assistant per profile+model. The
// handle is cached per process and re-validated against the remote side.
func (m *Manager) getOrCreateAssistant(ctx context.Context) (string, error) {
	version := profileVersion(m.cfg.Profile, m.cfg.Model)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assistantID != "" && m.version == version {
		if _, err := m.client.RetrieveAssistant(ctx, m.assistantID); err == nil {
			return m.assistantID, nil
		}
		logutil.GetLogger(ctx).Warn("cached assistant unavailable, recreating", zap.String("assistant_id", m.assistantID))
		m.assistantID = ""
	}

	req, err := ProfileRequest(m.cfg.Profile, m.cfg.Model)
	if err != nil {
		return "", err
	}
	created, err := m.client.CreateAssistant(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	m.assistantID = created.ID
	m.version = version
	return m.assistantID, nil
}

func buildPrompt(bundle *model.ContentBundle, captions map[string]string, guidance string) string {
	var sb strings.Builder
	sb.WriteString("Please analyze the document content below and generate a concise summary with bullet points, ")
	sb.WriteString("highlighting key information and insights. The summary should be readable in under 10 minutes.\n\n")
	if guidance != "" {
		sb.WriteString("Additional guidance: ")
		sb.WriteString(guidance)
		sb.WriteString("\n\n")
	}
	if len(captions) > 0 {
		sb.WriteString("The following are captions of images extracted from the document, in page order. ")
		sb.WriteString("Use them as supplemental context for the summary:\n")
		for _, img := range bundle.Images {
			text, ok := captions[img.ID]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "- Page %d Image %d: %s\n", img.Page, img.Index, text)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("DOCUMENT (")
	sb.WriteString(bundle.Filename)
	sb.WriteString("):\n")
	sb.WriteString(bundle.Text)
	return sb.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
