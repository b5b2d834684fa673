package notification

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// RecentLimit caps the size of a user's feed.
const RecentLimit = 50

type (
	Notification struct {
		ID        int         `db:"id" json:"id"`
		UserID    int         `db:"user_id" json:"user_id"`
		Message   string      `db:"message" json:"message"`
		Link      null.String `db:"link" json:"link"`
		IsRead    bool        `db:"is_read" json:"is_read"`
		CreatedAt time.Time   `db:"created_at" json:"created_at"`
	}

	// NewNotification is addressed to one user. Link is either a URL or an "action:chat:<id>" route.
	NewNotification struct {
		UserID  int
		Message string
		Link    string
	}

	Repository interface {
		InsertNotifications(ctx context.Context, notes ...Notification) error
		// QueryNotifications returns the limit newest notifications of a user.
		QueryNotifications(ctx context.Context, userID, limit int) ([]Notification, error)
		MarkNotificationRead(ctx context.Context, id int) error
		DeleteUserNotifications(ctx context.Context, userID int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Build turns NewNotifications into Notifications ready for insertion.
func Build(now time.Time, nns ...NewNotification) []Notification {
	notes := make([]Notification, 0, len(nns))
	for _, nn := range nns {
		notes = append(notes, Notification{
			UserID:    nn.UserID,
			Message:   nn.Message,
			Link:      null.NewString(nn.Link, nn.Link != ""),
			CreatedAt: now,
		})
	}
	return notes
}

// ChatLink is the pseudo-route opening the conversation with userID.
func ChatLink(userID int) string {
	return "action:chat:" + strconv.Itoa(userID)
}

func (svc *Service) Notify(ctx context.Context, nns ...NewNotification) error {
	if len(nns) == 0 {
		return nil
	}
	if err := svc.repo.InsertNotifications(ctx, Build(time.Now().UTC(), nns...)...); err != nil {
		return errors.Wrap(err, "inserting notifications")
	}
	return nil
}

func (svc *Service) Recent(ctx context.Context, userID int) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, userID, RecentLimit)
}

func (svc *Service) MarkRead(ctx context.Context, id int) error {
	return svc.repo.MarkNotificationRead(ctx, id)
}

func (svc *Service) Clear(ctx context.Context, userID int) error {
	return svc.repo.DeleteUserNotifications(ctx, userID)
}
