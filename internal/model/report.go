package model

type ReportItemType string

const (
	ReportItemEmail      ReportItemType = "email"
	ReportItemAttachment ReportItemType = "attachment"
)

// ReportItem is one summarized unit inside a digest report. A failed item is
// still rendered, with Reason explaining why no summary is available.
type ReportItem struct {
	Type      ReportItemType `json:"type"`
	Filename  string         `json:"filename,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Success   bool           `json:"success"`
	Reason    string         `json:"reason,omitempty"`
	Captions  []string       `json:"captions,omitempty"`
	SourceURL string         `json:"source_url,omitempty"`
}

// Report is the digest generated for one processed email.
type Report struct {
	ID      string        `json:"id"`
	Subject string        `json:"subject"`
	Sender  string        `json:"sender"`
	Date    string        `json:"date"`
	Items   []*ReportItem `json:"items"`
	HTML    string        `json:"html,omitempty"`
	Ctime   int64         `json:"ctime"`
}
