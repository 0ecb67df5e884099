package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
)

// MessageRepo remembers which inbound messages already produced a report so
// a mailbox re-scan never summarizes the same email twice.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	where := map[string]interface{}{
		"message_id": messageID,
	}
	sqlStr, args, err := builder.BuildSelect("processed_messages", where, []string{"message_id"})
	if err != nil {
		return false, err
	}
	var id string
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *MessageRepo) MarkProcessed(ctx context.Context, messageID, reportID string, ctime int64) error {
	data := map[string]interface{}{
		"message_id": messageID,
		"report_id":  reportID,
		"ctime":      ctime,
	}
	sqlStr, args, err := builder.BuildReplaceInsert("processed_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
