package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/madrasa/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// insertNotifications must be called with the write lock held.
// Notifications of unknown users are dropped.
func (db *DB) insertNotifications(notes ...notification.Notification) {
	for _, n := range notes {
		if _, ok := db.users[n.UserID]; !ok {
			continue
		}
		n := n
		n.ID = db.nextPK()
		db.notifications[n.ID] = &n
	}
}

func (repo *notificationRepository) InsertNotifications(ctx context.Context, notes ...notification.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.insertNotifications(notes...)
	return nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID, limit int) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	notes := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.UserID == userID {
			notes = append(notes, *n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID > notes[j].ID
	})
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if n, ok := repo.db.notifications[id]; ok {
		n.IsRead = true
	}
	return nil
}

func (repo *notificationRepository) DeleteUserNotifications(ctx context.Context, userID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, n := range repo.db.notifications {
		if n.UserID == userID {
			delete(repo.db.notifications, id)
		}
	}
	return nil
}
