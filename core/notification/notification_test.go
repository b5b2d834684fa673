package notification_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
	inmemdb "github.com/trezcool/madrasa/storage/database/inmem"
	"github.com/trezcool/madrasa/tests"
)

func TestBuild(t *testing.T) {
	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	notes := notification.Build(now,
		notification.NewNotification{UserID: 1, Message: "a", Link: notification.ChatLink(5)},
		notification.NewNotification{UserID: 2, Message: "b"},
	)

	require.Len(t, notes, 2)
	assert.Equal(t, notification.Notification{UserID: 1, Message: "a", Link: null.StringFrom("action:chat:5"), CreatedAt: now}, notes[0])
	assert.False(t, notes[1].Link.Valid)
	assert.False(t, notes[1].IsRead)
}

func TestService(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	svc := notification.NewService(inmemdb.NewNotificationRepository(db))
	amina := testutil.CreateUser(t, usrRepo, user.TypeStudent, "أمينة", "amina", "111111")
	sara := testutil.CreateUser(t, usrRepo, user.TypeStudent, "سارة", "sara", "111111")

	require.NoError(t, svc.Notify(ctx), "nothing to notify")

	nns := make([]notification.NewNotification, 0, notification.RecentLimit+5)
	for i := 0; i < notification.RecentLimit+5; i++ {
		nns = append(nns, notification.NewNotification{UserID: amina.ID, Message: strconv.Itoa(i)})
	}
	nns = append(nns, notification.NewNotification{UserID: sara.ID, Message: "hello"})
	nns = append(nns, notification.NewNotification{UserID: 9999, Message: "nobody"})
	require.NoError(t, svc.Notify(ctx, nns...))

	recent, err := svc.Recent(ctx, amina.ID)
	require.NoError(t, err)
	require.Len(t, recent, notification.RecentLimit)
	assert.Equal(t, strconv.Itoa(notification.RecentLimit+4), recent[0].Message, "newest first")

	t.Run("mark read", func(t *testing.T) {
		require.NoError(t, svc.MarkRead(ctx, recent[0].ID))
		got, err := svc.Recent(ctx, amina.ID)
		require.NoError(t, err)
		assert.True(t, got[0].IsRead)
		assert.False(t, got[1].IsRead)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, svc.Clear(ctx, amina.ID))
		got, err := svc.Recent(ctx, amina.ID)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = svc.Recent(ctx, sara.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hello", got[0].Message)
	})
}
