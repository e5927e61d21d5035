package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// EmailLogRepo owns email_delivery_log.  The UNIQUE(user_id, lifecycle_key)
// constraint is the idempotency boundary: a send is only attempted by the
// caller that managed to reserve the pair.
type EmailLogRepo struct{ DB *sql.DB }

func NewEmailLogRepo(db *sql.DB) *EmailLogRepo { return &EmailLogRepo{DB: db} }

// Reserve claims (userID, lifecycleKey) for a send.  It returns the row id
// and true when the caller may send.  It returns false without error when a
// sent row exists, when a pending row has already reached the provider, or
// when a pending reservation younger than inflight is held by someone else.
// Older pending rows that never reached the provider are left over from a
// crashed sender and are taken over.
func (r *EmailLogRepo) Reserve(ctx context.Context, d model.EmailDelivery, inflight time.Duration) (string, bool, error) {
	now := time.Now().UTC().Truncate(time.Second)
	id := uuid.NewString()
	// two attempts: the conflicting row may be released between insert and read
	for attempt := 0; attempt < 2; attempt++ {
		_, err := r.DB.ExecContext(ctx,
			`INSERT INTO email_delivery_log (id, user_id, email_to, template_id, lifecycle_key, subject, status, reserved_at)
			 VALUES (?,?,?,?,?,?,'pending',?)`,
			id, d.UserID, d.EmailTo, d.TemplateID, d.LifecycleKey, ptrOrNil(d.Subject), now)
		if err == nil {
			return id, true, nil
		}
		if !isDuplicateKey(err) {
			return "", false, err
		}

		var existingID, status string
		var reservedAt time.Time
		var calledAt sql.NullTime
		err = r.DB.QueryRowContext(ctx,
			"SELECT id, status, reserved_at, provider_called_at FROM email_delivery_log WHERE user_id=? AND lifecycle_key=? LIMIT 1",
			d.UserID, d.LifecycleKey).Scan(&existingID, &status, &reservedAt, &calledAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		if model.DeliveryStatus(status) == model.DeliverySent || calledAt.Valid {
			return existingID, false, nil
		}
		cutoff := now.Add(-inflight)
		if reservedAt.After(cutoff) {
			return existingID, false, nil
		}

		res, err := r.DB.ExecContext(ctx,
			`UPDATE email_delivery_log SET template_id=?, email_to=?, subject=?, reserved_at=?
			 WHERE id=? AND status='pending' AND provider_called_at IS NULL AND reserved_at<=?`,
			d.TemplateID, d.EmailTo, ptrOrNil(d.Subject), now, existingID, cutoff)
		if err != nil {
			return "", false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", false, err
		}
		return existingID, n == 1, nil
	}
	return "", false, nil
}

// MarkCalling stamps a reservation just before the provider call.
func (r *EmailLogRepo) MarkCalling(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE email_delivery_log SET provider_called_at=? WHERE id=? AND status='pending'",
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSent records the provider message id on a reserved row.
func (r *EmailLogRepo) MarkSent(ctx context.Context, id, messageID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE email_delivery_log SET status='sent', message_id=?, sent_at=? WHERE id=?",
		strOrNil(messageID), time.Now().UTC(), id)
	return err
}

// Release deletes a pending reservation so a later attempt can send.  The
// caller must only release after a failed or skipped provider call.
func (r *EmailLogRepo) Release(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM email_delivery_log WHERE id=? AND status='pending'", id)
	return err
}

// ListByUser returns the delivery history for a user, newest first.
func (r *EmailLogRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.EmailDelivery, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, email_to, template_id, lifecycle_key, subject, status, message_id, reserved_at, provider_called_at, sent_at
		 FROM email_delivery_log WHERE user_id=? ORDER BY reserved_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.EmailDelivery{}
	for rows.Next() {
		var d model.EmailDelivery
		var subject, msgID sql.NullString
		var status string
		var calledAt, sentAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.UserID, &d.EmailTo, &d.TemplateID, &d.LifecycleKey,
			&subject, &status, &msgID, &d.ReservedAt, &calledAt, &sentAt); err != nil {
			return nil, err
		}
		d.Subject, d.MessageID = nullStr(subject), nullStr(msgID)
		d.CalledAt, d.SentAt = nullTime(calledAt), nullTime(sentAt)
		d.Status = model.DeliveryStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}
