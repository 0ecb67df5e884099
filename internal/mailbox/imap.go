package mailbox

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/config"
	"github.com/xxxsen/maildigest/internal/model"
)

type imapMailbox struct {
	cfg      config.IMAPConfig
	maxBytes int
}

type Option func(*imapMailbox)

// WithMaxAttachmentBytes caps the size of a single parsed attachment. Larger
// attachments keep their metadata but carry an error instead of a payload.
func WithMaxAttachmentBytes(n int) Option {
	return func(m *imapMailbox) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

func NewIMAP(cfg config.IMAPConfig, opts ...Option) Mailbox {
	m := &imapMailbox{
		cfg:      cfg,
		maxBytes: 25 << 20,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FetchUnread opens a fresh IMAP connection per call. Digest runs are minutes
// apart, so a persistent connection buys nothing and drops anyway.
func (m *imapMailbox) FetchUnread(ctx context.Context, limit int) ([]*model.InboundEmail, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("imap_host", m.cfg.Host))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(m.cfg.Folder, false); err != nil {
		return nil, fmt.Errorf("select %s: %w", m.cfg.Folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var emails []*model.InboundEmail
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			logger.Warn("message fetched without body section", zap.Uint32("seq", msg.SeqNum))
			continue
		}
		email, err := parseMessage(body, m.maxBytes)
		if err != nil {
			logger.Warn("unparseable message skipped", zap.Uint32("seq", msg.SeqNum), zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	logger.Info("mailbox scanned",
		zap.Int("unseen", len(ids)),
		zap.Int("parsed", len(emails)),
	)
	return emails, nil
}
