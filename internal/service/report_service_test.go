package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/maildigest/internal/model"
	appErr "github.com/xxxsen/maildigest/internal/pkg/errors"
	"github.com/xxxsen/maildigest/internal/repo"
)

func newTestReportService(t *testing.T) (*ReportService, *repo.ReportRepo) {
	t.Helper()
	db, err := repo.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repo.ApplyMigrations(db))
	reports := repo.NewReportRepo(db)
	return NewReportService(reports), reports
}

func inbound() *model.InboundEmail {
	return &model.InboundEmail{
		MessageID:  "<msg-1@example.com>",
		Subject:    "Q3 results",
		Sender:     "cfo@example.com",
		ReceivedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		Body:       "please review",
	}
}

func TestReportBuildAndPersist(t *testing.T) {
	svc, _ := newTestReportService(t)

	body := &model.SummaryResult{
		Success: true,
		Summary: "- **revenue** up 12%\n- costs flat",
		Metadata: model.SummaryMetadata{
			Captions: map[string]string{"img-1": "a revenue bar chart"},
		},
	}
	attachments := []AttachmentOutcome{
		{Filename: "report.pdf", Result: &model.SummaryResult{Success: true, Summary: "detailed figures"}},
		{Filename: "broken.pdf", Result: model.Failed("broken.pdf", "gave up after 3 attempts: rate limited")},
		{Filename: "archive.zip", Err: fmt.Errorf("unsupported attachment type")},
	}

	report, err := svc.Build(context.Background(), inbound(), body, attachments)
	require.NoError(t, err)
	require.Len(t, report.Items, 4)
	require.Equal(t, model.ReportItemEmail, report.Items[0].Type)
	require.True(t, report.Items[0].Success)
	require.Equal(t, []string{"a revenue bar chart"}, report.Items[0].Captions)
	require.False(t, report.Items[2].Success)
	require.Equal(t, "gave up after 3 attempts: rate limited", report.Items[2].Reason)
	require.False(t, report.Items[3].Success)

	// markdown rendered, failures rendered as unavailable sections
	require.Contains(t, report.HTML, "<strong>revenue</strong>")
	require.Contains(t, report.HTML, "Attachment: report.pdf")
	require.Contains(t, report.HTML, "Summary unavailable: gave up after 3 attempts: rate limited")
	require.Contains(t, report.HTML, "a revenue bar chart")

	got, err := svc.Get(context.Background(), report.ID)
	require.NoError(t, err)
	require.Equal(t, report.Subject, got.Subject)
	require.Len(t, got.Items, 4)
	require.Equal(t, report.HTML, got.HTML)
}

func TestReportCaptionsKeepPageOrder(t *testing.T) {
	svc, _ := newTestReportService(t)

	// page-1 caption deliberately sorts after page-2's alphabetically
	body := &model.SummaryResult{
		Success: true,
		Summary: "wildlife and sales",
		Metadata: model.SummaryMetadata{
			Captions: map[string]string{
				"img-p1": "zebra migration chart",
				"img-p2": "apple sales table",
			},
			Figures: []model.ImageCaption{
				{ImageID: "img-p1", Page: 1, Index: 1, Caption: "zebra migration chart"},
				{ImageID: "img-p2", Page: 2, Index: 1, Caption: "apple sales table"},
			},
		},
	}
	report, err := svc.Build(context.Background(), inbound(), body, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"zebra migration chart", "apple sales table"}, report.Items[0].Captions)

	zebra := strings.Index(report.HTML, "zebra migration chart")
	apple := strings.Index(report.HTML, "apple sales table")
	require.True(t, zebra >= 0 && apple >= 0)
	require.Less(t, zebra, apple)
}

func TestReportLinksArchivedAttachment(t *testing.T) {
	svc, _ := newTestReportService(t)

	attachments := []AttachmentOutcome{
		{
			Filename:  "report.pdf",
			SourceURL: "http://localhost:8080/api/v1/files/abc_report.pdf",
			Result:    &model.SummaryResult{Success: true, Summary: "figures"},
		},
	}
	report, err := svc.Build(context.Background(), inbound(), nil, attachments)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/api/v1/files/abc_report.pdf", report.Items[0].SourceURL)
	require.Contains(t, report.HTML, `<a href="http://localhost:8080/api/v1/files/abc_report.pdf">report.pdf</a>`)
}

func TestReportGetMissing(t *testing.T) {
	svc, _ := newTestReportService(t)
	_, err := svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestReportList(t *testing.T) {
	svc, _ := newTestReportService(t)

	for i := 0; i < 3; i++ {
		email := inbound()
		email.Subject = fmt.Sprintf("mail %d", i)
		_, err := svc.Build(context.Background(), email, &model.SummaryResult{Success: true, Summary: "s"}, nil)
		require.NoError(t, err)
	}

	all, err := svc.List(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	page, err := svc.List(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
}

func TestReportPurge(t *testing.T) {
	svc, reports := newTestReportService(t)

	report, err := svc.Build(context.Background(), inbound(), &model.SummaryResult{Success: true, Summary: "s"}, nil)
	require.NoError(t, err)

	removed, err := reports.PurgeBefore(context.Background(), report.Ctime+1)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	_, err = svc.Get(context.Background(), report.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
