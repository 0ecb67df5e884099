package mailbox

import (
	"context"

	"github.com/xxxsen/maildigest/internal/model"
)

// Mailbox fetches unread inbound emails. Fetching marks a message as seen on
// the server side; deduplication across restarts is the caller's business.
type Mailbox interface {
	FetchUnread(ctx context.Context, limit int) ([]*model.InboundEmail, error)
}
