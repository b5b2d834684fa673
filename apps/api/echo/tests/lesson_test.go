package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/tests"
)

func TestLessonTargeting(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	lvl := testutil.CreateLevel(t, env.dirRepo, "L1")
	grpA := testutil.CreateGroup(t, env.dirRepo, "A", lvl.ID)
	grpB := testutil.CreateGroup(t, env.dirRepo, "B", lvl.ID)
	subject := testutil.CreateSubject(t, env.dirRepo, "فيزياء")
	teacher := testutil.CreateUser(t, env.usrRepo, user.TypeTeacher, "أستاذ", "teacher", "123456")
	inA := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "inA", "inA", "111111", testutil.WithPlacement(lvl.ID, grpA.ID))
	inB := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "inB", "inB", "222222", testutil.WithPlacement(lvl.ID, grpB.ID))
	teacherToken := getToken(t, env, teacher)

	t.Run("no file", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/lessons", teacherToken, map[string]string{"title": "درس"}, nil)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "No file"})}, rec)
	})

	t.Run("no title", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/lessons", teacherToken, map[string]string{"title": " "},
			&formFile{field: "file", name: "l.pdf", content: []byte("x")})
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("students cannot publish", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/lessons", getToken(t, env, inA), map[string]string{"title": "x"},
			&formFile{field: "file", name: "l.pdf", content: []byte("x")})
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	req, rec := newMultipartRequest(t, "/api/lessons", teacherToken,
		map[string]string{
			"subject_id":    fmt.Sprint(subject.ID),
			"title":         "الدرس الأول",
			"description":   "قوانين نيوتن",
			"target_all":    "false",
			"target_groups": fmt.Sprintf("%d, %d", grpA.ID, grpA.ID),
		},
		&formFile{field: "file", name: "lesson1.pdf", content: []byte("%PDF lesson")},
	)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created createdWithSuccess
	unmarshal(t, rec, &created)
	require.True(t, created.Success)

	visible := func(t *testing.T, usr user.User, query string) []lesson.Lesson {
		req, rec := newAuthRequest(http.MethodGet, "/api/lessons"+query, getToken(t, env, usr))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var lessons []lesson.Lesson
		unmarshal(t, rec, &lessons)
		return lessons
	}

	t.Run("group member sees it", func(t *testing.T) {
		lessons := visible(t, inA, fmt.Sprintf("?user_id=%d&user_group=%d&user_level=%d", inA.ID, grpA.ID, lvl.ID))
		require.Len(t, lessons, 1)
		l := lessons[0]
		assert.Equal(t, created.ID, l.ID)
		assert.Equal(t, "فيزياء", l.SubjectName.String)
		assert.Equal(t, "أستاذ", l.TeacherName.String)
		assert.Equal(t, []int{grpA.ID}, []int(l.TargetGroups))

		req, rec := newRequest(http.MethodGet, "/api/lessons/files/"+l.FilePath.String)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "%PDF lesson", rec.Body.String())
	})

	t.Run("other group does not", func(t *testing.T) {
		assert.Empty(t, visible(t, inB, fmt.Sprintf("?user_id=%d&user_group=%d&user_level=%d", inB.ID, grpB.ID, lvl.ID)))
	})

	t.Run("students only get their own view", func(t *testing.T) {
		assert.Empty(t, visible(t, inB, ""))
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/api/lessons?user_id=%d", inA.ID), getToken(t, env, inB))
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		assert.Len(t, visible(t, env.admin, ""), 1)
	})

	t.Run("only the targeted students are notified", func(t *testing.T) {
		notes, err := env.notifRepo.QueryNotifications(ctx, inA.ID, notification.RecentLimit)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Contains(t, notes[0].Message, "الدرس الأول")

		notes, err = env.notifRepo.QueryNotifications(ctx, inB.ID, notification.RecentLimit)
		require.NoError(t, err)
		assert.Empty(t, notes)
	})

	t.Run("teacher lessons", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/api/teachers/%d/lessons", teacher.ID), teacherToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var lessons []lesson.Lesson
		unmarshal(t, rec, &lessons)
		assert.Len(t, lessons, 1)
	})

	t.Run("delete", func(t *testing.T) {
		lessons, err := env.lessonRepo.QueryLessons(ctx, 0)
		require.NoError(t, err)
		require.Len(t, lessons, 1)

		other := testutil.CreateUser(t, env.usrRepo, user.TypeTeacher, "آخر", "other", "123456")
		req, rec := newAuthRequest(http.MethodDelete, fmt.Sprintf("/api/lessons/%d", created.ID), getToken(t, env, other))
		env.serve(req, rec)
		require.Equal(t, http.StatusForbidden, rec.Code, "only the author may delete it")

		req, rec = newAuthRequest(http.MethodDelete, "/api/lessons/9999", teacherToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusNotFound, rec.Code)

		req, rec = newAuthRequest(http.MethodDelete, fmt.Sprintf("/api/lessons/%d", created.ID), teacherToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		lessons, err = env.lessonRepo.QueryLessons(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, lessons)
	})
}

func TestNotifications(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	student := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "s", "s", "111111")
	other := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "o", "o", "111111")
	token := getToken(t, env, student)

	notifSvc := notification.NewService(env.notifRepo)
	require.NoError(t, notifSvc.Notify(ctx,
		notification.NewNotification{UserID: student.ID, Message: "first"},
		notification.NewNotification{UserID: student.ID, Message: "second", Link: notification.ChatLink(env.admin.ID)},
	))

	req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/api/notifications/%d", student.ID), token)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []notification.Notification
	unmarshal(t, rec, &notes)
	require.Len(t, notes, 2)

	tests := []httpTest{
		{
			name:     "someone else's feed",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/api/notifications/%d", other.ID),
			token:    token,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "mark read",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/api/notifications/read/%d", notes[0].ID),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "clear someone else's",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/api/notifications/clear/%d", other.ID),
			token:    token,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "clear",
			method:   http.MethodPost,
			path:     fmt.Sprintf("/api/notifications/clear/%d", student.ID),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "feed is empty",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/api/notifications/%d", student.ID),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
	}
	runHTTPTests(t, env, tests)
}
