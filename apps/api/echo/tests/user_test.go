package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	app.createUser(t, "Jane Roe", "jroe", "jroe@test.local", "s3cretPwd!", false)

	tests := []httpTest{
		{
			name:     "happy path",
			body:     []byte(`{"username": "jroe", "password": "s3cretPwd!"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "login by email",
			body:     []byte(`{"username": "jroe@test.local", "password": "s3cretPwd!"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "username is case-insensitive",
			body:     []byte(`{"username": "JRoe", "password": "s3cretPwd!"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password",
			body:     []byte(`{"username": "jroe", "password": "nope nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "unknown user",
			body:     []byte(`{"username": "ghost", "password": "s3cretPwd!"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "missing fields",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "this field is required", "password": "this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp struct {
					Token string `json:"token"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "Jane Roe", "jroe", "jroe@test.local", "s3cretPwd!", false)
	token := app.getToken(t, usr)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/users/me")
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("happy path", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", token)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, usr.ID, got["id"])
		assert.Equal(t, "jroe", got["username"])
		assert.NotContains(t, rec.Body.String(), "password")
	})
}
