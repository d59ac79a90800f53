package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/fomu/core"
)

type memRepo struct {
	users map[string]User // by username
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo { return &memRepo{users: make(map[string]User)} }

func (r *memRepo) CheckUsernameUniqueness(_ context.Context, username, email string) error {
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			return ErrUserExists
		}
	}
	return nil
}

func (r *memRepo) CreateUser(_ context.Context, usr User) (User, error) {
	usr.ID = "u-" + usr.Username
	r.users[usr.Username] = usr
	return usr, nil
}

func (r *memRepo) GetUserByID(_ context.Context, id string) (User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memRepo) GetUserByUsernameOrEmail(_ context.Context, uname string) (User, error) {
	for _, u := range r.users {
		if u.Username == uname || u.Email == uname {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memRepo) SetLastLogin(_ context.Context, usr User) error {
	u := r.users[usr.Username]
	u.LastLogin = usr.LastLogin
	r.users[usr.Username] = u
	return nil
}

func newTestService(t *testing.T) (Service, *memRepo) {
	t.Helper()
	validate, translator := core.NewValidator()
	RegisterValidators(validate, translator)
	repo := newMemRepo()
	return NewService(repo, validate), repo
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	usr, err := svc.Create(ctx, NewUser{
		Name:     "Awa Ndiaye",
		Username: "awa",
		Email:    "Awa@Test.Local",
		Password: "G00d-pass!word",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "awa@test.local", usr.Email)
	assert.True(t, usr.IsActive)
	assert.NotEmpty(t, usr.PasswordHash)
	assert.NoError(t, usr.CheckPassword("G00d-pass!word"))

	t.Run("duplicate rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, NewUser{Username: "awa", Email: "other@test.local", Password: "G00d-pass!word"})
		require.Error(t, err)
		_, ok := err.(*core.ValidationError)
		assert.True(t, ok)
	})
}

func TestService_Create_passwordPolicy(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		pwd  string
	}{
		{name: "too short", pwd: "shorty"},
		{name: "all numeric", pwd: "123456789012"},
		{name: "contains whitespace", pwd: "spaced out pass"},
		{name: "similar to username", pwd: "mamadou-diallo1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, NewUser{
				Name:     "Mamadou Diallo",
				Username: "mamadou_diallo",
				Email:    "mamadou@test.local",
				Password: tt.pwd,
			})
			assert.Error(t, err)
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	usr, err := svc.Create(ctx, NewUser{
		Name:     "Awa Ndiaye",
		Username: "awa",
		Email:    "awa@test.local",
		Password: "G00d-pass!word",
	})
	require.NoError(t, err)

	t.Run("by username", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "Awa", "G00d-pass!word")
		require.NoError(t, err)
		assert.Equal(t, usr.ID, got.ID)
		assert.False(t, got.LastLogin.IsZero())
	})
	t.Run("by email", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "awa@test.local", "G00d-pass!word")
		assert.NoError(t, err)
	})
	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "awa", "nope")
		assert.IsType(t, &core.ValidationError{}, err)
	})
	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "ghost", "nope")
		assert.IsType(t, &core.ValidationError{}, err)
	})
	t.Run("deactivated user", func(t *testing.T) {
		u := repo.users["awa"]
		u.IsActive = false
		repo.users["awa"] = u

		_, err := svc.Authenticate(ctx, "awa", "G00d-pass!word")
		assert.IsType(t, &core.ValidationError{}, err)
	})
}
