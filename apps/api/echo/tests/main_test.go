package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/madrasa/apps/api/echo"
	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/notification"
	"github.com/trezcool/madrasa/core/stats"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/services/email"
	"github.com/trezcool/madrasa/services/logger"
	"github.com/trezcool/madrasa/storage/database/inmem"
	"github.com/trezcool/madrasa/storage/files"
	"github.com/trezcool/madrasa/tests"
)

const adminPassword = "admin-pwd"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app        Server
	conf       *core.Config
	usrRepo    user.Repository
	dirRepo    directory.Repository
	chatRepo   chat.Repository
	lessonRepo lesson.Repository
	notifRepo  notification.Repository
	mail       *emailsvc.ConsoleServiceMock
	files      *files.Store
	admin      user.User
}

func setup(t *testing.T, configure ...func(*core.Config)) *testEnv {
	conf := core.NewTestConfig()
	conf.Server.UploadDir = t.TempDir()
	conf.Server.PublicDir = t.TempDir()
	for _, c := range configure {
		c(conf)
	}

	// set up DB & repos
	db := inmemdb.Open()
	env := &testEnv{
		conf:       conf,
		usrRepo:    inmemdb.NewUserRepository(db),
		dirRepo:    inmemdb.NewDirectoryRepository(db),
		chatRepo:   inmemdb.NewChatRepository(db),
		lessonRepo: inmemdb.NewLessonRepository(db),
		notifRepo:  inmemdb.NewNotificationRepository(db),
	}

	// set up services
	logger := logsvc.NewRollbarLogger(io.Discard, "TEST : ", conf)
	tmpls, err := core.ParseEmailTemplates(conf)
	require.NoError(t, err)
	env.mail = emailsvc.NewConsoleServiceMock(tmpls, logger, conf)
	env.files, err = files.NewStore(conf.Server.UploadDir, conf.Server.MaxUploadSize)
	require.NoError(t, err)

	validate, translator := testutil.NewValidator()
	usrSvc := user.NewService(env.usrRepo, env.mail, conf)
	notifSvc := notification.NewService(env.notifRepo)

	// set up server
	env.app, err = NewServer(&Options{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		Files:           env.files,
		DisableReqLogs:  true,
		UserSvc:         usrSvc,
		DirectorySvc:    directory.NewService(env.dirRepo),
		Importer:        directory.NewImporter(env.dirRepo, env.usrRepo),
		ChatSvc:         chat.NewService(env.chatRepo, usrSvc, notifSvc),
		LessonSvc:       lesson.NewService(env.lessonRepo, notifSvc),
		NotificationSvc: notifSvc,
		StatsSvc:        stats.NewService(inmemdb.NewStatsRepository(db)),
	})
	require.NoError(t, err)

	env.admin = testutil.CreateAdmin(t, env.usrRepo, "admin", adminPassword)
	return env
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

type formFile struct {
	field, name string
	content     []byte
}

func newMultipartRequest(
	t *testing.T,
	path, token string,
	fields map[string]string,
	file *formFile,
) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, env *testEnv, usr user.User) string {
	claims := GetUserClaims(usr, env.conf)
	token, err := GenerateToken(claims, env.conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
