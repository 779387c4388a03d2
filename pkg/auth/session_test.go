package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-network/noah/internal/testutil"
	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/credential"
	"github.com/noah-network/noah/pkg/util"
)

func newSession(t *testing.T, initial credential.Credential) (*Session, *testutil.FakeAPI, *credential.MemoryStore) {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	creds := credential.NewMemoryStore(initial)
	client := api.New(fake.URL, api.WithCredentialStore(creds))
	return NewSession(client, creds), fake, creds
}

func TestLogin_PersistsToken(t *testing.T) {
	s, fake, creds := newSession(t, credential.Credential{})
	fake.On(http.MethodPost, LoginPath, http.StatusOK, testutil.OK(map[string]any{
		"access_token": "abc.def",
		"token_type":   "bearer",
		"expires_in":   3600,
	}))

	require.NoError(t, s.Login(context.Background(), "admin", "secret"))
	assert.True(t, s.IsAuthenticated(context.Background()))
	assert.Equal(t, "", s.Err())
	assert.False(t, s.Loading())

	cred, _ := creds.Load(context.Background())
	assert.Equal(t, "abc.def", cred.Token)
	assert.Equal(t, "bearer", cred.TokenType)

	body := fake.Calls()[0].DecodeBody(t)
	assert.Equal(t, "admin", body["user"])
	assert.Equal(t, "secret", body["password"])
}

func TestLogin_DefaultsTokenType(t *testing.T) {
	s, fake, creds := newSession(t, credential.Credential{})
	fake.On(http.MethodPost, LoginPath, http.StatusOK, testutil.OK(map[string]any{"access_token": "t"}))

	require.NoError(t, s.Login(context.Background(), "admin", "secret"))
	cred, _ := creds.Load(context.Background())
	assert.Equal(t, credential.DefaultTokenType, cred.TokenType)
}

func TestLogin_FalseStatusFails(t *testing.T) {
	s, fake, creds := newSession(t, credential.Credential{})
	fake.On(http.MethodPost, LoginPath, http.StatusOK, map[string]any{
		"status":  false,
		"message": "Username atau password salah",
		"data":    map[string]any{"access_token": "ignored"},
	})

	err := s.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.True(t, IsLoginRejected(err))
	assert.True(t, errors.Is(err, util.ErrNotAuthenticated))
	assert.Equal(t, "Username atau password salah", s.Err())

	cred, _ := creds.Load(context.Background())
	assert.False(t, cred.Present())
}

func TestLogin_MissingTokenUsesDefaultMessage(t *testing.T) {
	s, fake, _ := newSession(t, credential.Credential{})
	fake.On(http.MethodPost, LoginPath, http.StatusOK, map[string]any{"status": true, "data": map[string]any{}})

	err := s.Login(context.Background(), "admin", "secret")
	require.Error(t, err)
	assert.Equal(t, DefaultLoginError, err.Error())
	assert.Equal(t, DefaultLoginError, s.Err())
}

func TestLogin_HTTPErrorMessage(t *testing.T) {
	s, fake, _ := newSession(t, credential.Credential{})
	fake.On(http.MethodPost, LoginPath, http.StatusUnprocessableEntity, testutil.Fail("user is required"))

	err := s.Login(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, IsLoginRejected(err))
	assert.Equal(t, "user is required", s.Err())
}

func TestLogin_NetworkErrorIsNotRejection(t *testing.T) {
	s, fake, _ := newSession(t, credential.Credential{})
	fake.Close()

	err := s.Login(context.Background(), "admin", "secret")
	require.Error(t, err)
	assert.False(t, IsLoginRejected(err))
	assert.True(t, errors.Is(err, util.ErrNetwork))
	assert.NotEmpty(t, s.Err())
}

func TestLogoutServer_IgnoresServerFailure(t *testing.T) {
	s, fake, creds := newSession(t, credential.Credential{Token: "tok"})
	fake.On(http.MethodPost, LogoutPath, http.StatusInternalServerError, testutil.Fail("boom"))

	require.NoError(t, s.LogoutServer(context.Background()))
	assert.False(t, s.IsAuthenticated(context.Background()))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer tok", calls[0].Header.Get("Authorization"))

	cred, _ := creds.Load(context.Background())
	assert.Equal(t, credential.Credential{}, cred)
}

func TestLogoutServer_UnreachableServer(t *testing.T) {
	s, fake, _ := newSession(t, credential.Credential{Token: "tok"})
	fake.Close()

	require.NoError(t, s.LogoutServer(context.Background()))
	assert.False(t, s.IsAuthenticated(context.Background()))
}

func TestLogoutLocal(t *testing.T) {
	s, fake, _ := newSession(t, credential.Credential{Token: "tok"})
	require.True(t, s.IsAuthenticated(context.Background()))

	require.NoError(t, s.LogoutLocal(context.Background()))
	assert.False(t, s.IsAuthenticated(context.Background()))
	assert.Empty(t, fake.Calls())
}

type failingStore struct{ credential.Store }

func (failingStore) Load(context.Context) (credential.Credential, error) {
	return credential.Credential{}, errors.New("disk gone")
}

func (failingStore) Clear(context.Context) error {
	return errors.New("read-only")
}

func TestSession_StoreFailures(t *testing.T) {
	s := NewSession(api.New("http://127.0.0.1:1"), failingStore{})
	assert.False(t, s.IsAuthenticated(context.Background()))
	assert.Error(t, s.LogoutLocal(context.Background()))
}
