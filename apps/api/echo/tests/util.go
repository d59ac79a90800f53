package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/fomu/apps/api/echo"
	"github.com/trezcool/fomu/core"
	"github.com/trezcool/fomu/core/form"
	"github.com/trezcool/fomu/core/section"
	"github.com/trezcool/fomu/core/user"
	emailsvc "github.com/trezcool/fomu/services/email"
	dummydb "github.com/trezcool/fomu/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server Server
	conf   *core.Config

	usrRepo  *dummydb.UserRepository
	secRepo  *dummydb.SectionRepository
	formRepo *dummydb.FormRepository
	mailSvc  interface {
		core.EmailService
		SentMessages() []core.EmailMessage
	}

	usrSvc  user.Service
	secSvc  section.Service
	formSvc form.Service
}

func setup(t *testing.T) *testApp {
	conf := core.NewTestConfig()
	logger := core.NewStdLogger(log.New(io.Discard, "", 0))
	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	codec, err := core.NewAnswersCodec(conf.AnswersSecretKey)
	require.NoError(t, err)

	app := &testApp{
		conf:     conf,
		usrRepo:  dummydb.NewUserRepository(),
		secRepo:  dummydb.NewSectionRepository(),
		formRepo: dummydb.NewFormRepository(),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf),
	}
	app.usrSvc = user.NewService(app.usrRepo, validate)
	app.secSvc = section.NewService(app.secRepo, validate)
	app.formSvc = form.NewService(app.formRepo, app.mailSvc, logger, codec, conf, validate)

	app.server = NewServer(&Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        app.usrSvc,
		SectionSvc:     app.secSvc,
		FormSvc:        app.formSvc,
	})
	return app
}

// Fixtures

func (app *testApp) createUser(t *testing.T, name, uname, email, pwd string, isStaff bool) user.User {
	t.Helper()
	usr, err := app.usrSvc.Create(context.Background(), user.NewUser{
		Name:     name,
		Username: uname,
		Email:    email,
		Password: pwd,
		IsStaff:  isStaff,
	})
	require.NoError(t, err)
	return usr
}

func (app *testApp) createSection(t *testing.T, number int, title, passcode string) section.Section {
	t.Helper()
	s, err := app.secSvc.Create(context.Background(), section.NewSection{
		Number:   number,
		Title:    title,
		Passcode: passcode,
	})
	require.NoError(t, err)
	return s
}

func (app *testApp) createForm(t *testing.T, title string, sectionNum int, kind form.Kind, schemaJSON string) form.Form {
	t.Helper()
	nf := form.NewForm{
		Title:         title,
		SectionNumber: sectionNum,
		Kind:          kind,
	}
	if schemaJSON != "" {
		require.NoError(t, json.Unmarshal([]byte(schemaJSON), &nf.Schema))
	}
	f, err := app.formSvc.CreateForm(context.Background(), nf)
	require.NoError(t, err)
	return f
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	require.NoError(t, err)
	return token
}

// Requests

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

// newUploadRequest builds a multipart/form-data request with a "pdf" file
// part and a "sectionNumber" value part.
func newUploadRequest(t *testing.T, path, token, filename, mediaType, sectionNum string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("sectionNumber", sectionNum))

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="pdf"; filename="`+filename+`"`)
	if mediaType != "" {
		hdr.Set("Content-Type", mediaType)
	}
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
