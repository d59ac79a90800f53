package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/fomu/core/form"
)

func Test_sectionApi_query(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "Jane Roe", "jroe", "jroe@test.local", "s3cretPwd!", false)
	token := app.getToken(t, usr)
	app.createSection(t, 1, "Listening", "1234")
	app.createSection(t, 2, "Reading", "5678")

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "happy path", token: token, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/sections", tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				assert.Contains(t, rec.Body.String(), "Listening")
				assert.Contains(t, rec.Body.String(), "Reading")
				assert.NotContains(t, rec.Body.String(), "passcode")
			}
		})
	}
}

func Test_sectionApi_unlock(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "Jane Roe", "jroe", "jroe@test.local", "s3cretPwd!", false)
	token := app.getToken(t, usr)
	app.createSection(t, 1, "Listening", "1234")

	tests := []httpTest{
		{
			name:     "auth required",
			path:     "/v1/sections/1/unlock",
			body:     []byte(`{"passcode": "1234"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "happy path",
			path:     "/v1/sections/1/unlock",
			body:     []byte(`{"passcode": "1234"}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong passcode",
			path:     "/v1/sections/1/unlock",
			body:     []byte(`{"passcode": "0000"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"passcode": "incorrect passcode"}`),
		},
		{
			name:     "missing passcode",
			path:     "/v1/sections/1/unlock",
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"passcode": "this field is required"}`),
		},
		{
			name:     "unknown section",
			path:     "/v1/sections/99/unlock",
			body:     []byte(`{"passcode": "1234"}`),
			token:    token,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "non-numeric section",
			path:     "/v1/sections/abc/unlock",
			body:     []byte(`{"passcode": "1234"}`),
			token:    token,
			wantCode: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_sectionApi_queryForms(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "Jane Roe", "jroe", "jroe@test.local", "s3cretPwd!", false)
	token := app.getToken(t, usr)
	app.createSection(t, 1, "Listening", "1234")
	app.createForm(t, "Comprehension", 1, form.KindDigital,
		`{"version":1,"fields":[{"kind":"radio","key":"q1","label":"Q1","choices":["A","B"]}],"answerKey":{"q1":"B"}}`)
	app.createForm(t, "Worksheet", 1, form.KindPDF, "")

	req, rec := newAuthRequest(http.MethodGet, "/v1/sections/1/forms", token)
	app.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Comprehension")
	assert.Contains(t, rec.Body.String(), "Worksheet")
	// answer keys never leave the backend
	assert.NotContains(t, rec.Body.String(), "answerKey")
}
