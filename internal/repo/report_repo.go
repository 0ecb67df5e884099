package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/maildigest/internal/model"
	appErr "github.com/xxxsen/maildigest/internal/pkg/errors"
)

var reportFields = []string{"id", "subject", "sender", "date", "items", "html", "ctime"}

type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

func (r *ReportRepo) Create(ctx context.Context, report *model.Report) error {
	items, err := json.Marshal(report.Items)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":      report.ID,
		"subject": report.Subject,
		"sender":  report.Sender,
		"date":    report.Date,
		"items":   string(items),
		"html":    report.HTML,
		"ctime":   report.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("reports", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ReportRepo) Get(ctx context.Context, id string) (*model.Report, error) {
	where := map[string]interface{}{
		"id": id,
	}
	sqlStr, args, err := builder.BuildSelect("reports", where, reportFields)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (r *ReportRepo) List(ctx context.Context, offset, limit uint) ([]*model.Report, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("reports", where, reportFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// PurgeBefore deletes reports created before the given unix timestamp and
// returns how many rows went away.
func (r *ReportRepo) PurgeBefore(ctx context.Context, ctime int64) (int64, error) {
	where := map[string]interface{}{
		"ctime <": ctime,
	}
	sqlStr, args, err := builder.BuildDelete("reports", where)
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*model.Report, error) {
	var report model.Report
	var items string
	if err := row.Scan(&report.ID, &report.Subject, &report.Sender, &report.Date, &items, &report.HTML, &report.Ctime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &report.Items); err != nil {
		return nil, err
	}
	return &report, nil
}
