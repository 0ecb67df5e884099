package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	rendererhtml "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/model"
	"github.com/xxxsen/maildigest/internal/repo"
)

// AttachmentOutcome pairs one attachment with whatever the pipeline made of
// it. Result is nil when the attachment never reached summarization; Err then
// says why. SourceURL points at the archived original when one was stored.
type AttachmentOutcome struct {
	Filename  string
	SourceURL string
	Result    *model.SummaryResult
	Err       error
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; max-width: 720px; margin: 0 auto;">
<h1>Digest: {{.Subject}}</h1>
<p>From <b>{{.Sender}}</b> on {{.Date}}</p>
{{range .Items}}
<hr>
{{if eq .Type "email"}}<h2>Email body</h2>{{else if .SourceURL}}<h2>Attachment: <a href="{{.SourceURL}}">{{.Filename}}</a></h2>{{else}}<h2>Attachment: {{.Filename}}</h2>{{end}}
{{if .Success}}
{{.HTML}}
{{if .Captions}}<h3>Figures</h3><ul>{{range .Captions}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{else}}
<p><i>Summary unavailable: {{.Reason}}</i></p>
{{end}}
{{end}}
</body>
</html>
`

type reportItemView struct {
	Type      model.ReportItemType
	Filename  string
	SourceURL string
	HTML      template.HTML
	Success   bool
	Reason    string
	Captions  []string
}

type reportView struct {
	Subject string
	Sender  string
	Date    string
	Items   []reportItemView
}

// ReportService turns summarization outcomes into persisted HTML digest
// reports. Summaries arrive as markdown and are rendered to HTML here.
type ReportService struct {
	reports *repo.ReportRepo
	md      goldmark.Markdown
	tmpl    *template.Template
}

func NewReportService(reports *repo.ReportRepo) *ReportService {
	return &ReportService{
		reports: reports,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(rendererhtml.WithHardWraps()),
		),
		tmpl: template.Must(template.New("report").Parse(reportTemplate)),
	}
}

// Build assembles and persists the digest report for one processed email.
// Failed items are kept so the recipient sees what could not be summarized.
func (s *ReportService) Build(ctx context.Context, email *model.InboundEmail, body *model.SummaryResult, attachments []AttachmentOutcome) (*model.Report, error) {
	report := &model.Report{
		ID:      uuid.NewString(),
		Subject: email.Subject,
		Sender:  email.Sender,
		Date:    email.ReceivedAt.Format(time.RFC1123),
		Ctime:   time.Now().Unix(),
	}
	if body != nil {
		report.Items = append(report.Items, s.buildItem(model.ReportItemEmail, "", "", body, nil))
	}
	for _, att := range attachments {
		report.Items = append(report.Items, s.buildItem(model.ReportItemAttachment, att.Filename, att.SourceURL, att.Result, att.Err))
	}

	html, err := s.render(report)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	report.HTML = html

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}
	logutil.GetLogger(ctx).Info("digest report built",
		zap.String("report_id", report.ID),
		zap.String("subject", report.Subject),
		zap.Int("items", len(report.Items)),
	)
	return report, nil
}

func (s *ReportService) Get(ctx context.Context, id string) (*model.Report, error) {
	return s.reports.Get(ctx, id)
}

func (s *ReportService) List(ctx context.Context, offset, limit uint) ([]*model.Report, error) {
	return s.reports.List(ctx, offset, limit)
}

func (s *ReportService) buildItem(typ model.ReportItemType, filename, sourceURL string, result *model.SummaryResult, localErr error) *model.ReportItem {
	item := &model.ReportItem{Type: typ, Filename: filename, SourceURL: sourceURL}
	switch {
	case localErr != nil:
		item.Reason = localErr.Error()
	case result == nil:
		item.Reason = "not processed"
	case !result.Success:
		item.Reason = result.Reason
	default:
		item.Success = true
		item.Summary = result.Summary
		item.Captions = captionTexts(result.Metadata)
	}
	return item
}

func (s *ReportService) render(report *model.Report) (string, error) {
	view := reportView{
		Subject: report.Subject,
		Sender:  report.Sender,
		Date:    report.Date,
	}
	for _, item := range report.Items {
		iv := reportItemView{
			Type:      item.Type,
			Filename:  item.Filename,
			SourceURL: item.SourceURL,
			Success:   item.Success,
			Reason:    item.Reason,
			Captions:  item.Captions,
		}
		if item.Success {
			var buf bytes.Buffer
			if err := s.md.Convert([]byte(item.Summary), &buf); err != nil {
				return "", err
			}
			iv.HTML = template.HTML(buf.String())
		}
		view.Items = append(view.Items, iv)
	}
	var out bytes.Buffer
	if err := s.tmpl.Execute(&out, view); err != nil {
		return "", err
	}
	return out.String(), nil
}

// captionTexts flattens the caption metadata for rendering. Figures already
// carries page order; the keyed map is only a fallback for results that never
// recorded placement, where alphabetical order is the best available.
func captionTexts(md model.SummaryMetadata) []string {
	if len(md.Figures) > 0 {
		out := make([]string, 0, len(md.Figures))
		for _, fig := range md.Figures {
			out = append(out, fig.Caption)
		}
		return out
	}
	if len(md.Captions) == 0 {
		return nil
	}
	out := make([]string, 0, len(md.Captions))
	for _, text := range md.Captions {
		out = append(out, text)
	}
	sort.Strings(out)
	return out
}
