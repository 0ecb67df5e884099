package assistant

import (
	"context"
	"fmt"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/maildigest/internal/config"
	"github.com/xxxsen/maildigest/internal/model"
)

type fakeClient struct {
	runStatuses []openai.RunStatus
	runErr      *openai.RunLastError
	replyText   string

	retrieveCalls  int
	createdFiles   int
	deletedFiles   []string
	deletedThreads []string
	createAsstN    int
	lastMessage    openai.MessageRequest
}

func (f *fakeClient) CreateAssistant(_ context.Context, _ openai.AssistantRequest) (openai.Assistant, error) {
	f.createAsstN++
	return openai.Assistant{ID: "asst_1"}, nil
}

func (f *fakeClient) RetrieveAssistant(_ context.Context, id string) (openai.Assistant, error) {
	return openai.Assistant{ID: id}, nil
}

func (f *fakeClient) CreateThread(_ context.Context, _ openai.ThreadRequest) (openai.Thread, error) {
	return openai.Thread{ID: "thread_1"}, nil
}

func (f *fakeClient) DeleteThread(_ context.Context, id string) (openai.ThreadDeleteResponse, error) {
	f.deletedThreads = append(f.deletedThreads, id)
	return openai.ThreadDeleteResponse{}, nil
}

func (f *fakeClient) CreateMessage(_ context.Context, _ string, req openai.MessageRequest) (openai.Message, error) {
	f.lastMessage = req
	return openai.Message{ID: "msg_user"}, nil
}

func (f *fakeClient) CreateRun(_ context.Context, _ string, _ openai.RunRequest) (openai.Run, error) {
	return openai.Run{ID: "run_1", Status: openai.RunStatusQueued}, nil
}

func (f *fakeClient) RetrieveRun(_ context.Context, _ string, id string) (openai.Run, error) {
	idx := f.retrieveCalls
	if idx >= len(f.runStatuses) {
		idx = len(f.runStatuses) - 1
	}
	f.retrieveCalls++
	return openai.Run{
		ID:        id,
		Status:    f.runStatuses[idx],
		LastError: f.runErr,
		Usage:     openai.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

func (f *fakeClient) ListMessage(_ context.Context, _ string, _ *int, _ *string, _ *string, _ *string, _ *string) (openai.MessagesList, error) {
	return openai.MessagesList{Messages: []openai.Message{
		{
			Role: openai.ChatMessageRoleAssistant,
			Content: []openai.MessageContent{
				{Type: "text", Text: &openai.MessageText{Value: f.replyText}},
			},
		},
	}}, nil
}

func (f *fakeClient) CreateFileBytes(_ context.Context, _ openai.FileBytesRequest) (openai.File, error) {
	f.createdFiles++
	return openai.File{ID: fmt.Sprintf("file_%d", f.createdFiles)}, nil
}

func (f *fakeClient) DeleteFile(_ context.Context, id string) error {
	f.deletedFiles = append(f.deletedFiles, id)
	return nil
}

type fakeCaptioner struct {
	texts map[string]string
	err   error
}

func (f *fakeCaptioner) Name() string { return "fake" }

func (f *fakeCaptioner) Caption(_ context.Context, img *model.ExtractedImage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.texts[img.ID], nil
}

func testSummarizerConfig() config.SummarizerConfig {
	return config.SummarizerConfig{
		Model:          "gpt-4o",
		Profile:        "pdf_summarizer",
		ThreadTimeoutS: 120,
		PollIntervalMS: 500,
	}
}

func testBundle() *model.ContentBundle {
	return &model.ContentBundle{
		Filename:  "report.pdf",
		Text:      "quarterly revenue grew",
		PageCount: 2,
		Images: []*model.ExtractedImage{
			{ID: "img-aaaa0001", Page: 1, Index: 0, Format: "png", Data: []byte{1, 2, 3}},
			{ID: "img-bbbb0002", Page: 2, Index: 0, Format: "jpeg", Err: "decode failed"},
		},
	}
}

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestManagerRunHappyPath(t *testing.T) {
	client := &fakeClient{
		runStatuses: []openai.RunStatus{openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCompleted},
		replyText:   "- revenue grew\n- costs flat",
	}
	captioner := &fakeCaptioner{texts: map[string]string{"img-aaaa0001": "a bar chart of revenue"}}
	mgr := NewManager(client, captioner, testSummarizerConfig(), WithSleep(noSleep))

	result, err := mgr.Run(context.Background(), testBundle(), "focus on finance")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "- revenue grew\n- costs flat", result.Summary)
	require.Equal(t, 150, result.Metadata.Usage.TotalTokens)
	require.Equal(t, map[string]string{"img-aaaa0001": "a bar chart of revenue"}, result.Metadata.Captions)

	// only the usable image is uploaded, and everything is released
	require.Equal(t, 1, client.createdFiles)
	require.Equal(t, []string{"file_1"}, client.deletedFiles)
	require.Equal(t, []string{"thread_1"}, client.deletedThreads)

	require.Contains(t, client.lastMessage.Content, "focus on finance")
	require.Contains(t, client.lastMessage.Content, "Page 1 Image 0: a bar chart of revenue")
	require.Len(t, client.lastMessage.Attachments, 1)
}

func TestManagerFiguresKeepPageOrder(t *testing.T) {
	client := &fakeClient{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "summary",
	}
	// caption text sorts against page order on purpose
	captioner := &fakeCaptioner{texts: map[string]string{
		"img-p1": "zebra migration chart",
		"img-p2": "apple sales table",
	}}
	mgr := NewManager(client, captioner, testSummarizerConfig(), WithSleep(noSleep))

	bundle := &model.ContentBundle{
		Filename:  "wildlife.pdf",
		Text:      "migration and sales",
		PageCount: 2,
		Images: []*model.ExtractedImage{
			{ID: "img-p1", Page: 1, Index: 1, Format: "png", Data: []byte{1}},
			{ID: "img-p2", Page: 2, Index: 1, Format: "png", Data: []byte{2}},
		},
	}
	result, err := mgr.Run(context.Background(), bundle, "")
	require.NoError(t, err)
	require.Equal(t, []model.ImageCaption{
		{ImageID: "img-p1", Page: 1, Index: 1, Caption: "zebra migration chart"},
		{ImageID: "img-p2", Page: 2, Index: 1, Caption: "apple sales table"},
	}, result.Metadata.Figures)
}

func TestManagerRunShortImageID(t *testing.T) {
	client := &fakeClient{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "summary",
	}
	mgr := NewManager(client, nil, testSummarizerConfig(), WithSleep(noSleep))

	bundle := &model.ContentBundle{
		Filename:  "tiny.pdf",
		Text:      "short ids",
		PageCount: 1,
		Images: []*model.ExtractedImage{
			{ID: "img", Page: 1, Index: 1, Format: "png", Data: []byte{1}},
		},
	}
	result, err := mgr.Run(context.Background(), bundle, "")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, client.createdFiles)
}

func TestManagerRunFailed(t *testing.T) {
	client := &fakeClient{
		runStatuses: []openai.RunStatus{openai.RunStatusInProgress, openai.RunStatusFailed},
		runErr:      &openai.RunLastError{Code: "invalid_request", Message: "content rejected"},
	}
	mgr := NewManager(client, nil, testSummarizerConfig(), WithSleep(noSleep))

	result, err := mgr.Run(context.Background(), testBundle(), "")
	require.Nil(t, result)
	var rfe *RunFailedError
	require.ErrorAs(t, err, &rfe)
	require.Equal(t, "invalid_request", rfe.Code)

	// cleanup still runs on failure
	require.Equal(t, []string{"thread_1"}, client.deletedThreads)
	require.Equal(t, []string{"file_1"}, client.deletedFiles)
}

func TestManagerRunExpired(t *testing.T) {
	client := &fakeClient{
		runStatuses: []openai.RunStatus{openai.RunStatusInProgress},
	}
	now := time.Now()
	mgr := NewManager(client, nil, testSummarizerConfig(),
		WithSleep(noSleep),
		WithNow(func() time.Time {
			// every reading advances past the deadline after the first poll
			now = now.Add(90 * time.Second)
			return now
		}),
	)

	result, err := mgr.Run(context.Background(), testBundle(), "")
	require.Nil(t, result)
	var ree *RunExpiredError
	require.ErrorAs(t, err, &ree)
	require.Equal(t, []string{"thread_1"}, client.deletedThreads)
}

func TestManagerReusesAssistant(t *testing.T) {
	client := &fakeClient{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "summary",
	}
	mgr := NewManager(client, nil, testSummarizerConfig(), WithSleep(noSleep))

	_, err := mgr.Run(context.Background(), testBundle(), "")
	require.NoError(t, err)
	client.retrieveCalls = 0
	_, err = mgr.Run(context.Background(), testBundle(), "")
	require.NoError(t, err)
	require.Equal(t, 1, client.createAsstN)
}

func TestManagerCaptionFailureDegrades(t *testing.T) {
	client := &fakeClient{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "summary",
	}
	captioner := &fakeCaptioner{err: fmt.Errorf("vision model down")}
	mgr := NewManager(client, captioner, testSummarizerConfig(), WithSleep(noSleep))

	result, err := mgr.Run(context.Background(), testBundle(), "")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Metadata.Captions)
	// the image still travels with the session even without a caption
	require.Equal(t, 1, client.createdFiles)
}

func TestRunFailureCarriesLastError(t *testing.T) {
	err := runFailure(openai.Run{
		Status:    openai.RunStatusFailed,
		LastError: &openai.RunLastError{Code: "rate_limit_exceeded", Message: "slow down"},
	})
	var rfe *RunFailedError
	require.ErrorAs(t, err, &rfe)
	require.Equal(t, "failed", rfe.Status)
	require.Equal(t, "rate_limit_exceeded", rfe.Code)
	require.Equal(t, "slow down", rfe.Message)
}

func TestSessionTransitions(t *testing.T) {
	s := &session{state: stateCreated}
	require.NoError(t, s.to(stateFilesAttached))
	require.NoError(t, s.to(stateRunning))
	require.Error(t, s.to(stateFilesAttached))
	require.NoError(t, s.to(stateCompleted))
	require.Error(t, s.to(stateRunning))
	require.NoError(t, s.to(stateReleased))
	require.Error(t, s.to(stateReleased))
}
