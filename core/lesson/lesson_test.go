package lesson_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
	inmemdb "github.com/trezcool/madrasa/storage/database/inmem"
	"github.com/trezcool/madrasa/tests"
)

func TestService(t *testing.T) {
	clock := time.Date(2025, time.January, 1, 8, 0, 0, 0, time.UTC)
	defer lesson.SetNow(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})()

	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	dirRepo := inmemdb.NewDirectoryRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)
	svc := lesson.NewService(inmemdb.NewLessonRepository(db), notification.NewService(notifRepo))

	lvl1 := testutil.CreateLevel(t, dirRepo, "L1")
	lvl2 := testutil.CreateLevel(t, dirRepo, "L2")
	grpA := testutil.CreateGroup(t, dirRepo, "A", lvl1.ID)
	physics := testutil.CreateSubject(t, dirRepo, "فيزياء")
	teacher := testutil.CreateUser(t, usrRepo, user.TypeTeacher, "أستاذ", "teacher", "123456")
	inA := testutil.CreateUser(t, usrRepo, user.TypeStudent, "inA", "inA", "111111", testutil.WithPlacement(lvl1.ID, grpA.ID))
	inL2 := testutil.CreateUser(t, usrRepo, user.TypeStudent, "inL2", "inL2", "111111", testutil.WithPlacement(lvl2.ID, 0))
	nowhere := testutil.CreateUser(t, usrRepo, user.TypeStudent, "nowhere", "nowhere", "111111")

	notes := func(t *testing.T, userID int) []notification.Notification {
		res, err := notifRepo.QueryNotifications(ctx, userID, notification.RecentLimit)
		require.NoError(t, err)
		return res
	}

	t.Run("a file is required", func(t *testing.T) {
		_, err := svc.Create(ctx, lesson.NewLesson{TeacherID: teacher.ID, Title: "x"})
		assert.Equal(t, lesson.ErrNoFile, err)
	})

	byGroup, err := svc.Create(ctx, lesson.NewLesson{
		TeacherID: teacher.ID,
		SubjectID: null.IntFrom(physics.ID),
		Title:     "قوانين نيوتن",
		FilePath:  "1-newton.pdf",
		Target:    lesson.Target{Groups: []int{grpA.ID, grpA.ID}, Students: []int{nowhere.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, null.StringFrom("فيزياء"), byGroup.SubjectName)
	assert.Equal(t, []int{grpA.ID}, []int(byGroup.TargetGroups))
	assert.False(t, byGroup.Description.Valid)

	t.Run("targeted students are notified", func(t *testing.T) {
		for _, id := range []int{inA.ID, nowhere.ID} {
			got := notes(t, id)
			require.Len(t, got, 1)
			assert.Equal(t, "درس جديد: قوانين نيوتن", got[0].Message)
			assert.Equal(t, null.StringFrom("/api/lessons/files/1-newton.pdf"), got[0].Link)
		}
		assert.Empty(t, notes(t, inL2.ID))
		assert.Empty(t, notes(t, teacher.ID))
	})

	forAll, err := svc.Create(ctx, lesson.NewLesson{
		TeacherID:   teacher.ID,
		Title:       "الجدول",
		Description: "جدول الحصص",
		FilePath:    "2-table.pdf",
		Target:      lesson.Target{All: true, Levels: []int{lvl1.ID}},
	})
	require.NoError(t, err)
	assert.True(t, forAll.TargetAll)
	assert.Empty(t, forAll.TargetLevels)
	assert.Len(t, notes(t, inL2.ID), 1)

	hidden, err := svc.Create(ctx, lesson.NewLesson{TeacherID: teacher.ID, Title: "مسودة", FilePath: "3-draft.pdf"})
	require.NoError(t, err)

	t.Run("listing", func(t *testing.T) {
		all, err := svc.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int{hidden.ID, forAll.ID, byGroup.ID}, []int{all[0].ID, all[1].ID, all[2].ID}, "newest first")

		visible, err := svc.List(ctx, &lesson.Viewer{UserID: inA.ID, GroupID: grpA.ID, LevelID: lvl1.ID})
		require.NoError(t, err)
		require.Len(t, visible, 2)
		assert.Equal(t, forAll.ID, visible[0].ID)
		assert.Equal(t, byGroup.ID, visible[1].ID)

		visible, err = svc.List(ctx, &lesson.Viewer{UserID: inL2.ID, LevelID: lvl2.ID})
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, forAll.ID, visible[0].ID)

		mine, err := svc.ListByTeacher(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 3)
		assert.Equal(t, null.StringFrom("أستاذ"), mine[0].TeacherName)

		others, err := svc.ListByTeacher(ctx, inA.ID)
		require.NoError(t, err)
		assert.Empty(t, others)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, lesson.ErrNotOwner, svc.DeleteOwn(ctx, inA.ID, hidden.ID))
		assert.Equal(t, lesson.ErrNotFound, svc.DeleteOwn(ctx, teacher.ID, 9999))
		require.NoError(t, svc.DeleteOwn(ctx, teacher.ID, hidden.ID))
		require.NoError(t, svc.Delete(ctx, byGroup.ID))
		all, err := svc.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, forAll.ID, all[0].ID)
	})
}
