package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	. "github.com/trezcool/madrasa/apps/api/echo"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/tests"
)

func TestLevelsAndGroups(t *testing.T) {
	env := setup(t)
	token := getToken(t, env, env.admin)

	req, rec := newAuthRequest(http.MethodPost, "/api/levels", token, marchallObj(t, directory.LevelData{Name: " السنة الأولى "}))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lvl CreatedResponse
	unmarshal(t, rec, &lvl)

	req, rec = newAuthRequest(http.MethodPost, "/api/groups", token, marchallObj(t, directory.GroupData{
		Name:    "الفوج أ",
		LevelID: null.IntFrom(lvl.ID),
	}))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var grp CreatedResponse
	unmarshal(t, rec, &grp)

	student := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "طالبة", "student", "654321", testutil.WithPlacement(lvl.ID, grp.ID))

	tests := []httpTest{
		{
			name:     "duplicate level",
			method:   http.MethodPost,
			path:     "/api/levels",
			body:     marchallObj(t, directory.LevelData{Name: "السنة الأولى"}),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "level already exists"}),
		},
		{
			name:     "blank level",
			method:   http.MethodPost,
			path:     "/api/levels",
			body:     marchallObj(t, directory.LevelData{Name: "   "}),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "groups with their level name",
			method:   http.MethodGet,
			path:     "/api/groups",
			token:    getToken(t, env, student),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []directory.Group{{
				ID:        grp.ID,
				Name:      "الفوج أ",
				LevelID:   null.IntFrom(lvl.ID),
				LevelName: null.StringFrom("السنة الأولى"),
			}}),
		},
		{
			name:     "student cannot create levels",
			method:   http.MethodPost,
			path:     "/api/levels",
			body:     marchallObj(t, directory.LevelData{Name: "x"}),
			token:    getToken(t, env, student),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "rename level",
			method:   http.MethodPut,
			path:     fmt.Sprintf("/api/levels/%d", lvl.ID),
			body:     marchallObj(t, directory.LevelData{Name: "المستوى 1"}),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "delete level",
			method:   http.MethodDelete,
			path:     fmt.Sprintf("/api/levels/%d", lvl.ID),
			token:    token,
			wantCode: http.StatusOK,
		},
	}
	runHTTPTests(t, env, tests)

	// placements referencing the deleted level are cleared, the group survives
	usr, err := env.usrRepo.GetUserByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.False(t, usr.LevelID.Valid)
	assert.Equal(t, null.IntFrom(grp.ID), usr.GroupID)

	groups, err := env.dirRepo.QueryGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.False(t, groups[0].LevelID.Valid)
}

func TestTeacherAssignmentsAndScope(t *testing.T) {
	env := setup(t)
	token := getToken(t, env, env.admin)
	lvl1 := testutil.CreateLevel(t, env.dirRepo, "L1")
	lvl2 := testutil.CreateLevel(t, env.dirRepo, "L2")
	grpA := testutil.CreateGroup(t, env.dirRepo, "A", lvl1.ID)
	grpB := testutil.CreateGroup(t, env.dirRepo, "B", lvl1.ID)
	testutil.CreateGroup(t, env.dirRepo, "C", lvl2.ID)
	math := testutil.CreateSubject(t, env.dirRepo, "رياضيات")

	teacher := testutil.CreateUser(t, env.usrRepo, user.TypeTeacher, "أستاذ", "teacher", "123456")
	other := testutil.CreateUser(t, env.usrRepo, user.TypeTeacher, "آخر", "other", "123456")
	s1 := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "s1", "s1", "111111", testutil.WithPlacement(lvl1.ID, grpA.ID))
	s2 := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "s2", "s2", "222222", testutil.WithPlacement(lvl1.ID, grpB.ID))
	s3 := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "s3", "s3", "333333", testutil.WithPlacement(lvl2.ID, 0))

	posts := []struct {
		path string
		body interface{}
	}{
		{"/api/teacher-subjects/bulk", directory.TeacherSubjects{TeacherID: teacher.ID, SubjectIDs: []int{math.ID, math.ID}}},
		{"/api/teacher-groups/bulk", directory.TeacherGroups{TeacherID: teacher.ID, GroupIDs: []int{grpA.ID, grpB.ID}}},
		{"/api/teacher-groups/bulk", directory.TeacherGroups{TeacherID: teacher.ID, GroupIDs: []int{grpA.ID}}},
		{"/api/teacher-teaching-students/bulk", directory.TeacherStudents{TeacherID: teacher.ID, StudentIDs: []int{s1.ID, s3.ID}}},
	}
	for _, p := range posts {
		req, rec := newAuthRequest(http.MethodPost, p.path, token, marchallObj(t, p.body))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	t.Run("own scope", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/api/teachers/%d/scope", teacher.ID), getToken(t, env, teacher))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var scope directory.Scope
		unmarshal(t, rec, &scope)
		require.Len(t, scope.Groups, 1, "the bulk replace dropped B")
		assert.Equal(t, grpA.ID, scope.Groups[0].ID)
		require.Len(t, scope.Levels, 1)
		assert.Equal(t, lvl1.ID, scope.Levels[0].ID)

		ids := make([]int, 0, len(scope.Students))
		for _, s := range scope.Students {
			ids = append(ids, s.ID)
		}
		assert.ElementsMatch(t, []int{s1.ID, s3.ID}, ids)
		assert.NotContains(t, ids, s2.ID)
	})

	t.Run("another teacher's scope", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/api/teachers/%d/scope", teacher.ID), getToken(t, env, other))
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("subjects show in the login profile", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/login", marchallObj(t, user.LoginRequest{Username: "teacher", Password: "123456"}))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			User user.Profile `json:"user"`
		}
		unmarshal(t, rec, &resp)
		require.NotNil(t, resp.User.Subjects)
		assert.Equal(t, "رياضيات", *resp.User.Subjects)
	})

	t.Run("remove one assignment", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, fmt.Sprintf("/api/teacher-subjects/%d/%d", teacher.ID, math.ID), token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		ts, err := env.dirRepo.QueryTeacherSubjects(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ts)
	})
}

func TestStudentTeacherLinks(t *testing.T) {
	env := setup(t)
	token := getToken(t, env, env.admin)
	teacher := testutil.CreateUser(t, env.usrRepo, user.TypeTeacher, "أستاذ", "teacher", "123456")
	s1 := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "s1", "s1", "111111")
	s2 := testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "s2", "s2", "222222")

	link := func(ids ...int) {
		req, rec := newAuthRequest(http.MethodPost, "/api/student-teacher-links/bulk", token,
			marchallObj(t, directory.TeacherStudents{TeacherID: teacher.ID, StudentIDs: ids}))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	link(s1.ID)
	link(s1.ID, s2.ID) // links are only ever added

	links, err := env.dirRepo.QueryStudentTeacherLinks(context.Background())
	require.NoError(t, err)
	assert.Len(t, links, 2)

	req, rec := newAuthRequest(http.MethodDelete, "/api/student-teacher-links", token,
		marchallObj(t, directory.Link{StudentID: s1.ID, TeacherID: teacher.ID}))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	links, err = env.dirRepo.QueryStudentTeacherLinks(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, s2.ID, links[0].StudentID)
}

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestImportStudents(t *testing.T) {
	env := setup(t)
	token := getToken(t, env, env.admin)
	lvl1 := testutil.CreateLevel(t, env.dirRepo, "Level 1")
	lvl2 := testutil.CreateLevel(t, env.dirRepo, "Level 2")
	testutil.CreateGroup(t, env.dirRepo, "A", lvl1.ID)
	grp2A := testutil.CreateGroup(t, env.dirRepo, "A", lvl2.ID)
	testutil.CreateUser(t, env.usrRepo, user.TypeStudent, "taken", "taken", "111111")

	content := workbook(t,
		[]interface{}{"Name", " USERNAME ", "Level", "Group"},
		[]interface{}{"سارة", "sara", "level 2", "a"},
		[]interface{}{"", "ghost", "", ""},
		[]interface{}{"مريم", "", "", ""},
		[]interface{}{"مكرر", "taken", "", ""},
	)

	t.Run("no file", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/students/import", token, map[string]string{"a": "b"}, nil)
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not a workbook", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/students/import", token, nil, &formFile{field: "file", name: "x.xlsx", content: []byte("nope")})
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	req, rec := newMultipartRequest(t, "/api/students/import", token, nil, &formFile{field: "file", name: "students.xlsx", content: content})
	env.serve(req, rec)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, ImportResponse{Imported: 2, Success: true}),
	}, rec)

	sara, err := env.usrRepo.GetUserByUsername(context.Background(), "sara")
	require.NoError(t, err)
	assert.Equal(t, null.IntFrom(lvl2.ID), sara.LevelID)
	assert.Equal(t, null.IntFrom(grp2A.ID), sara.GroupID)
	require.True(t, sara.RegistrationNumber.Valid)
	assert.NoError(t, sara.CheckPassword(sara.RegistrationNumber.String))

	students, err := env.usrRepo.QueryStudents(context.Background())
	require.NoError(t, err)
	assert.Len(t, students, 3)
}

func TestImportTeachers(t *testing.T) {
	env := setup(t)
	token := getToken(t, env, env.admin)

	content := workbook(t,
		[]interface{}{"name", "username", "phone"},
		[]interface{}{"أستاذ علي", "ali", "0550000000"},
		[]interface{}{"أستاذ عمر", "", ""},
	)
	req, rec := newMultipartRequest(t, "/api/teachers/import", token, nil, &formFile{field: "file", name: "teachers.xlsx", content: content})
	env.serve(req, rec)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, ImportResponse{Imported: 2, Success: true}),
	}, rec)

	ali, err := env.usrRepo.GetUserByUsername(context.Background(), "ali")
	require.NoError(t, err)
	assert.NoError(t, ali.CheckPassword("0550000000"))

	teachers, err := env.usrRepo.QueryUsers(context.Background(), user.TypeTeacher)
	require.NoError(t, err)
	assert.Len(t, teachers, 2)
}
