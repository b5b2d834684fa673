package inmemdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
	inmemdb "github.com/trezcool/madrasa/storage/database/inmem"
	"github.com/trezcool/madrasa/tests"
)

func TestUserRepository_UpdateUser(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	testutil.CreateUser(t, repo, user.TypeTeacher, "a", "taken", "123456")
	usr := testutil.CreateUser(t, repo, user.TypeTeacher, "b", "free", "123456")

	usr.Username = "taken"
	assert.Equal(t, user.ErrUsernameExists, repo.UpdateUser(ctx, usr))

	usr.Username = "free"
	usr.Name = "renamed"
	require.NoError(t, repo.UpdateUser(ctx, usr), "keeping its own username")

	usr.ID = 999
	assert.Equal(t, user.ErrNotFound, repo.UpdateUser(ctx, usr))
}

func TestDirectoryRepository_DeleteLevels(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	repo := inmemdb.NewDirectoryRepository(db)

	lvl := testutil.CreateLevel(t, repo, "L1")
	grp := testutil.CreateGroup(t, repo, "A", lvl.ID)
	student := testutil.CreateUser(t, usrRepo, user.TypeStudent, "s", "s", "111111", testutil.WithPlacement(lvl.ID, grp.ID))

	require.NoError(t, repo.DeleteLevels(ctx, lvl.ID))

	groups, err := repo.QueryGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.False(t, groups[0].LevelID.Valid, "the group survives without its level")

	got, err := usrRepo.GetUserByID(ctx, student.ID)
	require.NoError(t, err)
	assert.False(t, got.LevelID.Valid)
	assert.True(t, got.GroupID.Valid)

	require.NoError(t, repo.DeleteGroups(ctx, grp.ID))
	got, err = usrRepo.GetUserByID(ctx, student.ID)
	require.NoError(t, err)
	assert.False(t, got.GroupID.Valid)
}

func TestUserRepository_DeleteUsers(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	dirRepo := inmemdb.NewDirectoryRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)

	teacher := testutil.CreateUser(t, usrRepo, user.TypeTeacher, "t", "teacher", "123456")
	student := testutil.CreateUser(t, usrRepo, user.TypeStudent, "s", "student", "111111")
	other := testutil.CreateUser(t, usrRepo, user.TypeStudent, "o", "other", "111111")
	require.NoError(t, dirRepo.LinkStudents(ctx, teacher.ID, []int{student.ID, other.ID}))
	require.NoError(t, dirRepo.ReplaceTeacherStudents(ctx, teacher.ID, []int{student.ID}))
	require.NoError(t, notifRepo.InsertNotifications(ctx,
		notification.Notification{UserID: student.ID, Message: "x"},
		notification.Notification{UserID: other.ID, Message: "y"},
	))

	require.NoError(t, usrRepo.DeleteUsers(ctx, student.ID))

	_, err := usrRepo.GetUserByID(ctx, student.ID)
	assert.Equal(t, user.ErrNotFound, err)

	links, err := dirRepo.QueryStudentTeacherLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []directory.StudentTeacherLink{{StudentID: other.ID, TeacherID: teacher.ID, StudentName: "o", TeacherName: "t"}}, links)

	assigned, err := dirRepo.AssignedStudents(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, assigned)

	notes, err := notifRepo.QueryNotifications(ctx, student.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, notes)
	notes, err = notifRepo.QueryNotifications(ctx, other.ID, 0)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestLessonRepository_TargetedStudents(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	dirRepo := inmemdb.NewDirectoryRepository(db)
	repo := inmemdb.NewLessonRepository(db)

	lvl := testutil.CreateLevel(t, dirRepo, "L1")
	grp := testutil.CreateGroup(t, dirRepo, "A", lvl.ID)
	inGroup := testutil.CreateUser(t, usrRepo, user.TypeStudent, "g", "g", "111111", testutil.WithPlacement(lvl.ID, grp.ID))
	inLevel := testutil.CreateUser(t, usrRepo, user.TypeStudent, "l", "l", "111111", testutil.WithPlacement(lvl.ID, 0))
	loose := testutil.CreateUser(t, usrRepo, user.TypeStudent, "x", "x", "111111")
	teacher := testutil.CreateUser(t, usrRepo, user.TypeTeacher, "t", "t", "123456")

	tests := []struct {
		name   string
		target lesson.Target
		want   []int
	}{
		{name: "everyone", target: lesson.Target{All: true}, want: []int{inGroup.ID, inLevel.ID, loose.ID}},
		{name: "group", target: lesson.Target{Groups: []int{grp.ID}}, want: []int{inGroup.ID}},
		{name: "level", target: lesson.Target{Levels: []int{lvl.ID}}, want: []int{inGroup.ID, inLevel.ID}},
		{name: "students only", target: lesson.Target{Students: []int{loose.ID, teacher.ID}}, want: []int{loose.ID}},
		{name: "nobody", target: lesson.Target{}, want: []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.TargetedStudents(ctx, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
