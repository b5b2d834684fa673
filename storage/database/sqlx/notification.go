package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/notification"
)

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// insertNotifications drops the notifications of unknown users.
func insertNotifications(ctx context.Context, exec sqlx.ExecerContext, notes []notification.Notification) error {
	for _, n := range notes {
		_, err := exec.ExecContext(ctx, `INSERT INTO notifications (user_id, message, link, created_at)
			SELECT $1::integer, $2::text, $3::text, $4::timestamptz
			WHERE EXISTS (SELECT 1 FROM users WHERE id = $1::integer)`, n.UserID, n.Message, n.Link, n.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "inserting notification")
		}
	}
	return nil
}

func (repo *notificationRepository) InsertNotifications(ctx context.Context, notes ...notification.Notification) error {
	return insertNotifications(ctx, repo.db, notes)
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID, limit int) ([]notification.Notification, error) {
	notes := make([]notification.Notification, 0)
	err := repo.db.SelectContext(ctx, &notes, `SELECT id, user_id, message, link, is_read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	return notes, errors.Wrap(err, "querying notifications")
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id int) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE notifications SET is_read = true WHERE id = $1`, id)
	return errors.Wrap(err, "marking notification read")
}

func (repo *notificationRepository) DeleteUserNotifications(ctx context.Context, userID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	return errors.Wrap(err, "deleting notifications")
}
