package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"social-export/internal/domain"
	"social-export/internal/domain/model"
	"social-export/internal/domain/ports/repository"
)

var _ repository.ExportRequestRepository = (*exportRequestRepo)(nil)

const exportRequestColumns = `id, user_id, format, status, include_dm, include_media, include_all_posts,
  attempt_count, max_attempts, requested_at, processed_at, error_message, result_json, download_url`

type exportRequestRepo struct{ pool *pgxpool.Pool }

func NewExportRequestRepo(pool *pgxpool.Pool) *exportRequestRepo {
	return &exportRequestRepo{pool: pool}
}

func (r *exportRequestRepo) Create(ctx context.Context, tx repository.Tx, req *model.ExportRequest) error {
	const q = `
INSERT INTO export_requests (` + exportRequestColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	result := "{}"
	if len(req.ResultJSON) > 0 {
		result = string(req.ResultJSON)
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		req.ID, req.UserID, req.Format, string(req.Status),
		req.Options.IncludeDM, req.Options.IncludeMedia, req.Options.IncludeAllPosts,
		req.AttemptCount, req.MaxAttempts, req.RequestedAt, req.ProcessedAt,
		req.ErrorMessage, result, req.DownloadURL)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return fmt.Errorf("insert export request: %w", err)
	}
	return nil
}

func (r *exportRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ExportRequest, error) {
	q := `SELECT ` + exportRequestColumns + ` FROM export_requests WHERE id=$1`
	if isLocking(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	req, err := scanExportRequest(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return req, nil
}

func (r *exportRequestRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.ExportRequest, error) {
	const q = `SELECT ` + exportRequestColumns + ` FROM export_requests WHERE user_id=$1 ORDER BY requested_at DESC, id DESC;`
	return r.list(ctx, tx, q, userID)
}

// ListPending filters due rows in SQL so requests still backing off at the head of
// the queue cannot fill the batch. Delays are passed in microseconds.
func (r *exportRequestRepo) ListPending(ctx context.Context, tx repository.Tx, pq repository.PendingQuery) ([]*model.ExportRequest, error) {
	if pq.Limit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	q := `SELECT ` + exportRequestColumns + ` FROM export_requests
WHERE (status='pending' AND (
		attempt_count <= 0
		OR processed_at IS NULL
		OR attempt_count >= max_attempts
		OR processed_at + LEAST($5::float8, $4::float8 * power(2, attempt_count-1)) * interval '1 microsecond' <= $2))
	OR (status='processing' AND processed_at < $3)
ORDER BY requested_at ASC, id ASC
LIMIT $1`
	if isLocking(tx) {
		q += " FOR UPDATE SKIP LOCKED"
	}
	return r.list(ctx, tx, q+";", pq.Limit, pq.Now, pq.StaleBefore,
		pq.BaseDelay.Microseconds(), pq.MaxDelay.Microseconds())
}

func (r *exportRequestRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.ExportRequestPatch) error {
	set, args := patchSet(patch, []interface{}{id})
	if set == "" {
		return nil
	}
	q := `UPDATE export_requests SET ` + set + ` WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return fmt.Errorf("update export request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *exportRequestRepo) Claim(ctx context.Context, tx repository.Tx, id string, fromStatus model.ExportStatus, fromAttempt int, patch model.ExportRequestPatch) error {
	set, args := patchSet(patch, []interface{}{id, string(fromStatus), fromAttempt})
	if set == "" {
		return domain.ErrInvalidArgument
	}
	q := `UPDATE export_requests SET ` + set + ` WHERE id=$1 AND status=$2 AND attempt_count=$3;`
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return fmt.Errorf("claim export request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *exportRequestRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.ExportRequest, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ExportRequest
	for rows.Next() {
		req, err := scanExportRequest(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list export requests: %w", err)
	}
	return out, nil
}

// patchSet renders the SET clause for the non-nil patch fields. Placeholders
// continue after the args already bound by the caller.
func patchSet(p model.ExportRequestPatch, args []interface{}) (string, []interface{}) {
	var sets []string
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.AttemptCount != nil {
		add("attempt_count", *p.AttemptCount)
	}
	if p.MaxAttempts != nil {
		add("max_attempts", *p.MaxAttempts)
	}
	if p.ProcessedAt != nil {
		add("processed_at", *p.ProcessedAt)
	}
	if p.ErrorMessage != nil {
		add("error_message", *p.ErrorMessage)
	}
	if p.ResultJSON != nil {
		add("result_json", string(p.ResultJSON))
	}
	if p.DownloadURL != nil {
		add("download_url", *p.DownloadURL)
	}
	return strings.Join(sets, ", "), args
}

func scanExportRequest(row pgx.Row) (*model.ExportRequest, error) {
	var (
		req    model.ExportRequest
		status string
		result []byte
	)
	err := row.Scan(&req.ID, &req.UserID, &req.Format, &status,
		&req.Options.IncludeDM, &req.Options.IncludeMedia, &req.Options.IncludeAllPosts,
		&req.AttemptCount, &req.MaxAttempts, &req.RequestedAt, &req.ProcessedAt,
		&req.ErrorMessage, &result, &req.DownloadURL)
	if err != nil {
		return nil, err
	}
	req.Status = model.ExportStatus(status)
	req.ResultJSON = result
	return &req, nil
}
