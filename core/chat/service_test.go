package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
	inmemdb "github.com/trezcool/madrasa/storage/database/inmem"
	"github.com/trezcool/madrasa/tests"
)

type fixture struct {
	svc       *chat.Service
	repo      chat.Repository
	usrRepo   user.Repository
	dirRepo   directory.Repository
	notifRepo notification.Repository
	admin     user.User
}

func setup(t *testing.T) *fixture {
	// every call to the clock moves it a minute forward
	clock := time.Date(2025, time.January, 1, 8, 0, 0, 0, time.UTC)
	restore := chat.SetNow(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	t.Cleanup(restore)

	db := inmemdb.Open()
	f := &fixture{
		repo:      inmemdb.NewChatRepository(db),
		usrRepo:   inmemdb.NewUserRepository(db),
		dirRepo:   inmemdb.NewDirectoryRepository(db),
		notifRepo: inmemdb.NewNotificationRepository(db),
	}
	usrSvc := user.NewService(f.usrRepo, nil, core.NewTestConfig())
	f.svc = chat.NewService(f.repo, usrSvc, notification.NewService(f.notifRepo))
	f.admin = testutil.CreateAdmin(t, f.usrRepo, "admin", "admin123")
	return f
}

func (f *fixture) notifications(t *testing.T, userID int) []notification.Notification {
	notes, err := f.notifRepo.QueryNotifications(context.Background(), userID, notification.RecentLimit)
	require.NoError(t, err)
	return notes
}

func TestService_Send(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	student := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s", "student", "111111")
	admin2 := testutil.CreateAdmin(t, f.usrRepo, "admin2", "admin123")

	invalid := []struct {
		name    string
		nm      chat.NewMessage
		wantErr error
	}{
		{name: "no target", nm: chat.NewMessage{SenderID: student.ID, Text: "x"}, wantErr: chat.ErrInvalidTarget},
		{name: "zero receiver", nm: chat.NewMessage{SenderID: student.ID, ReceiverID: null.IntFrom(0), Text: "x"}, wantErr: chat.ErrInvalidTarget},
		{name: "both targets", nm: chat.NewMessage{SenderID: student.ID, ReceiverID: null.IntFrom(f.admin.ID), GroupID: null.IntFrom(1), Text: "x"}, wantErr: chat.ErrInvalidTarget},
		{name: "blank text", nm: chat.NewMessage{SenderID: student.ID, ReceiverID: null.IntFrom(f.admin.ID), Text: " \n "}, wantErr: chat.ErrEmptyMessage},
		{name: "unknown group", nm: chat.NewMessage{SenderID: student.ID, GroupID: null.IntFrom(999), Text: "x"}, wantErr: chat.ErrGroupNotFound},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(ctx, tt.nm)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	t.Run("student to admin", func(t *testing.T) {
		msg, err := f.svc.Send(ctx, chat.NewMessage{SenderID: student.ID, ReceiverID: null.IntFrom(f.admin.ID), Text: "السلام عليكم"})
		require.NoError(t, err)
		assert.Equal(t, chat.TypeText, msg.MessageType)
		assert.Equal(t, null.StringFrom("السلام عليكم"), msg.MessageText)
		assert.Empty(t, f.notifications(t, f.admin.ID), "admins are not notified")
	})

	t.Run("admin text to student", func(t *testing.T) {
		_, err := f.svc.Send(ctx, chat.NewMessage{SenderID: f.admin.ID, ReceiverID: null.IntFrom(student.ID), Text: "وعليكم السلام"})
		require.NoError(t, err)
		notes := f.notifications(t, student.ID)
		require.Len(t, notes, 1)
		assert.Equal(t, "لديك رسالة جديدة من الإدارة", notes[0].Message)
		assert.Equal(t, null.StringFrom(notification.ChatLink(f.admin.ID)), notes[0].Link)
	})

	t.Run("admin file to student", func(t *testing.T) {
		msg, err := f.svc.Send(ctx, chat.NewMessage{
			SenderID:   f.admin.ID,
			ReceiverID: null.IntFrom(student.ID),
			File:       &chat.Attachment{Path: "1-abc.pdf", Name: "planning.pdf", Size: 42},
		})
		require.NoError(t, err)
		assert.Equal(t, chat.TypeFile, msg.MessageType)
		assert.False(t, msg.MessageText.Valid)
		assert.Equal(t, null.StringFrom("planning.pdf"), msg.FileName)
		assert.Equal(t, null.Int64From(42), msg.FileSize)

		notes := f.notifications(t, student.ID)
		require.Len(t, notes, 2)
		assert.Equal(t, "أرسلت الإدارة ملفاً جديداً", notes[0].Message)
	})

	t.Run("admin to admin", func(t *testing.T) {
		_, err := f.svc.Send(ctx, chat.NewMessage{SenderID: f.admin.ID, ReceiverID: null.IntFrom(admin2.ID), Text: "x"})
		require.NoError(t, err)
		assert.Empty(t, f.notifications(t, admin2.ID))
	})

	t.Run("conversation", func(t *testing.T) {
		msgs, err := f.svc.Conversation(ctx, student.ID, f.admin.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, student.ID, msgs[0].SenderID)
		assert.Equal(t, null.StringFrom("s"), msgs[0].SenderName)
		assert.True(t, msgs[0].SentAt.Before(msgs[2].SentAt))
	})
}

func TestService_GroupPermissions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	teacher := testutil.CreateUser(t, f.usrRepo, user.TypeTeacher, "t", "teacher", "123456")
	member := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "m", "member", "111111")
	outsider := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "o", "outsider", "111111")

	grp, err := f.svc.CreateGroup(ctx, chat.GroupData{
		Name:              "إعلانات",
		OnlyAdminsCanSend: true,
		Members:           []chat.MemberData{{UserID: teacher.ID, IsAdmin: true}, {UserID: member.ID}},
	})
	require.NoError(t, err)

	send := func(senderID int) error {
		_, err := f.svc.Send(ctx, chat.NewMessage{SenderID: senderID, GroupID: null.IntFrom(grp.ID), Text: "x"})
		return err
	}
	assert.Equal(t, chat.ErrRestricted, send(member.ID))
	assert.Equal(t, chat.ErrRestricted, send(outsider.ID))
	assert.NoError(t, send(teacher.ID), "group admins can send")
	assert.NoError(t, send(f.admin.ID), "admin users can send")

	t.Run("settings", func(t *testing.T) {
		assert.Equal(t, chat.ErrNotGroupAdmin, f.svc.UpdateSettings(ctx, grp.ID, chat.Settings{UserID: member.ID}))
		assert.Equal(t, chat.ErrNotGroupAdmin, f.svc.UpdateSettings(ctx, grp.ID, chat.Settings{UserID: outsider.ID}))
		require.NoError(t, f.svc.UpdateSettings(ctx, grp.ID, chat.Settings{UserID: teacher.ID, OnlyAdminsCanSend: false}))
		assert.NoError(t, send(member.ID))
	})

	t.Run("details", func(t *testing.T) {
		details, err := f.svc.GroupDetails(ctx, grp.ID)
		require.NoError(t, err)
		assert.False(t, details.OnlyAdminsCanSend)
		assert.Len(t, details.Members, 2)

		msgs, err := f.svc.GroupMessages(ctx, grp.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
	})

	t.Run("update replaces members", func(t *testing.T) {
		require.NoError(t, f.svc.UpdateGroup(ctx, grp.ID, chat.GroupData{
			Name:    "إعلانات",
			Members: []chat.MemberData{{UserID: outsider.ID, IsAdmin: true}},
		}))
		members, err := f.svc.ListGroupMembers(ctx, grp.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, outsider.ID, members[0].ID)

		details, err := f.svc.GroupDetails(ctx, grp.ID)
		require.NoError(t, err)
		assert.Equal(t, grp.CreatedAt, details.CreatedAt)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteGroup(ctx, grp.ID))
		_, err := f.svc.GroupDetails(ctx, grp.ID)
		assert.Equal(t, chat.ErrGroupNotFound, err)
		assert.Equal(t, chat.ErrGroupNotFound, f.svc.UpdateGroup(ctx, grp.ID, chat.GroupData{Name: "x"}))
	})
}

func TestService_UserGroups(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	student := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s", "student", "111111")

	var ids []int
	for _, name := range []string{"g1", "g2", "g3"} {
		grp, err := f.svc.CreateGroup(ctx, chat.GroupData{Name: name, Members: []chat.MemberData{{UserID: student.ID}}})
		require.NoError(t, err)
		ids = append(ids, grp.ID)
	}
	for _, gid := range []int{ids[1], ids[0]} {
		_, err := f.svc.Send(ctx, chat.NewMessage{SenderID: f.admin.ID, GroupID: null.IntFrom(gid), Text: "x"})
		require.NoError(t, err)
	}

	groups, err := f.svc.UserGroups(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []int{ids[0], ids[1], ids[2]}, []int{groups[0].ID, groups[1].ID, groups[2].ID})
	assert.Equal(t, 1, groups[0].UnreadCount)
	assert.False(t, groups[2].LastMsgTime.Valid)

	summaries, err := f.svc.QueryGroups(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, ids[2], summaries[0].ID, "newest first")
	assert.Equal(t, 1, summaries[0].MemberCount)
}

func TestService_Contacts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lvl := testutil.CreateLevel(t, f.dirRepo, "L1")
	grp := testutil.CreateGroup(t, f.dirRepo, "A", lvl.ID)
	math := testutil.CreateSubject(t, f.dirRepo, "رياضيات")
	teacher := testutil.CreateUser(t, f.usrRepo, user.TypeTeacher, "t", "teacher", "123456")
	s1 := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s1", "s1", "111111", testutil.WithPlacement(lvl.ID, grp.ID))
	s2 := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s2", "s2", "111111")
	testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "unlinked", "s3", "111111")
	require.NoError(t, f.dirRepo.LinkStudents(ctx, teacher.ID, []int{s1.ID, s2.ID}))
	require.NoError(t, f.dirRepo.ReplaceTeacherSubjects(ctx, teacher.ID, []int{math.ID}))

	_, err := f.svc.Send(ctx, chat.NewMessage{SenderID: s2.ID, ReceiverID: null.IntFrom(teacher.ID), Text: "سؤال"})
	require.NoError(t, err)

	t.Run("teacher", func(t *testing.T) {
		contacts, err := f.svc.TeacherContacts(ctx, teacher.ID)
		require.NoError(t, err)
		require.Len(t, contacts, 3)

		assert.Equal(t, s2.ID, contacts[0].ID, "the latest conversation comes first")
		assert.Equal(t, 1, contacts[0].UnreadCount)

		byID := make(map[int]chat.Contact)
		for _, c := range contacts {
			byID[c.ID] = c
		}
		assert.Equal(t, null.StringFrom("L1"), byID[s1.ID].LevelName)
		assert.Equal(t, null.StringFrom("A"), byID[s1.ID].GroupName)
		assert.Equal(t, null.StringFrom("إدارة"), byID[f.admin.ID].LevelName)
		assert.Equal(t, null.StringFrom(""), byID[f.admin.ID].GroupName)
	})

	t.Run("student", func(t *testing.T) {
		contacts, err := f.svc.StudentContacts(ctx, s1.ID)
		require.NoError(t, err)
		require.Len(t, contacts, 1, "admins are not student contacts")
		assert.Equal(t, teacher.ID, contacts[0].ID)
		assert.Equal(t, null.StringFrom("رياضيات"), contacts[0].LevelName)
	})

	t.Run("mark read", func(t *testing.T) {
		require.NoError(t, f.svc.MarkRead(ctx, chat.MarkRead{SenderID: s2.ID, ReaderID: teacher.ID, GroupID: null.IntFrom(5)}))
		contacts, err := f.svc.TeacherContacts(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, contacts[0].UnreadCount, "group reads are a no-op")

		require.NoError(t, f.svc.MarkRead(ctx, chat.MarkRead{SenderID: s2.ID, ReaderID: teacher.ID}))
		contacts, err = f.svc.TeacherContacts(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Zero(t, contacts[0].UnreadCount)
	})
}

func TestService_Broadcast(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s1 := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s1", "s1", "111111")
	s2 := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s2", "s2", "111111")

	assert.Equal(t, chat.ErrNoRecipients, f.svc.Broadcast(ctx, chat.Broadcast{SenderID: f.admin.ID, Text: "x"}))
	assert.Equal(t, chat.ErrEmptyBroadcast, f.svc.Broadcast(ctx, chat.Broadcast{SenderID: f.admin.ID, Recipients: []int{s1.ID}, Text: "  "}))

	require.NoError(t, f.svc.Broadcast(ctx, chat.Broadcast{SenderID: f.admin.ID, Recipients: []int{s1.ID, s2.ID, s1.ID}, Text: "عطلة"}))
	for _, s := range []user.User{s1, s2} {
		msgs, err := f.svc.Conversation(ctx, f.admin.ID, s.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, null.StringFrom("عطلة"), msgs[0].MessageText)

		notes := f.notifications(t, s.ID)
		require.Len(t, notes, 1)
		assert.Equal(t, "رسالة تعميم جديدة من الإدارة", notes[0].Message)
	}

	t.Run("file only", func(t *testing.T) {
		require.NoError(t, f.svc.Broadcast(ctx, chat.Broadcast{
			SenderID:   f.admin.ID,
			Recipients: []int{s1.ID},
			File:       &chat.Attachment{Path: "1-x.png", Name: "x.png", Size: 1},
		}))
		msgs, err := f.svc.Conversation(ctx, f.admin.ID, s1.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, chat.TypeFile, msgs[1].MessageType)
	})

	t.Run("deleted recipients do not block the others", func(t *testing.T) {
		gone := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "gone", "gone", "111111")
		require.NoError(t, f.usrRepo.DeleteUsers(ctx, gone.ID))

		require.NoError(t, f.svc.Broadcast(ctx, chat.Broadcast{SenderID: f.admin.ID, Recipients: []int{s2.ID, gone.ID}, Text: "امتحان"}))
		assert.Len(t, f.notifications(t, s2.ID), 2)
		assert.Empty(t, f.notifications(t, gone.ID))
	})
}

func TestService_InboxAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s1 := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s1", "s1", "111111")
	s2 := testutil.CreateUser(t, f.usrRepo, user.TypeStudent, "s2", "s2", "111111")

	send := func(from, to int, text string) chat.Message {
		msg, err := f.svc.Send(ctx, chat.NewMessage{SenderID: from, ReceiverID: null.IntFrom(to), Text: text})
		require.NoError(t, err)
		return msg
	}
	send(s1.ID, f.admin.ID, "a")
	send(s2.ID, f.admin.ID, "b")
	send(s1.ID, f.admin.ID, "c")
	last := send(f.admin.ID, s2.ID, "d")

	entries, err := f.svc.InboxSummary(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, s2.ID, entries[0].ID, "latest exchange first")
	assert.Equal(t, null.StringFrom("d"), entries[0].LastMessage)
	assert.Equal(t, 1, entries[0].UnreadCount)
	assert.Equal(t, s1.ID, entries[1].ID)
	assert.Equal(t, null.StringFrom("c"), entries[1].LastMessage)
	assert.Equal(t, 2, entries[1].UnreadCount)

	require.NoError(t, f.svc.DeleteMessage(ctx, last.ID))
	assert.Equal(t, chat.ErrMessageNotFound, f.svc.DeleteMessage(ctx, last.ID))

	convs, err := f.svc.Conversations(ctx)
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}
