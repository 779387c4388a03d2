// Package auth manages the login session: obtaining a token, persisting it
// through the credential store and clearing it on logout.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/noah-network/noah/pkg/api"
	"github.com/noah-network/noah/pkg/audit"
	"github.com/noah-network/noah/pkg/credential"
	"github.com/noah-network/noah/pkg/util"
)

// API paths for the session endpoints
const (
	LoginPath  = "/user/login"
	LogoutPath = "/user/logout"
)

// DefaultLoginError is recorded when the server gives no reason
const DefaultLoginError = "login failed"

// LoginError is returned when the server refused the credentials
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() error {
	return util.ErrNotAuthenticated
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type loginData struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Poster is the part of the API client a session needs
type Poster interface {
	Post(ctx context.Context, path string, body any) (*api.Response, error)
}

// Session logs in and out against the API. The token lives in the
// credential store shared with the API client.
type Session struct {
	client Poster
	creds  credential.Store

	// Source tags audit events (cli, shell, gateway)
	Source string

	mu      sync.Mutex
	loading bool
	errMsg  string
}

// NewSession creates a session over client storing tokens in creds
func NewSession(client Poster, creds credential.Store) *Session {
	return &Session{client: client, creds: creds}
}

// Login posts the credentials and persists the returned token. Success
// requires a truthy envelope status and a data.access_token.
func (s *Session) Login(ctx context.Context, user, password string) error {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	start := time.Now()
	err := s.login(ctx, user, password)
	audit.Log(audit.NewEvent(user, "session", audit.OpLogin).
		WithSource(s.Source).
		WithDuration(time.Since(start)).
		WithResult(err))

	if err != nil {
		s.mu.Lock()
		s.errMsg = api.Message(err, DefaultLoginError)
		s.mu.Unlock()
		util.WithField("user", user).Debugf("login failed: %v", err)
	}
	return err
}

func (s *Session) login(ctx context.Context, user, password string) error {
	resp, err := s.client.Post(ctx, LoginPath, loginRequest{User: user, Password: password})
	if err != nil {
		return err
	}

	var data loginData
	if p := resp.Payload(); p != nil {
		if err := json.Unmarshal(p, &data); err != nil {
			util.Debugf("login: unexpected data payload: %v", err)
		}
	}
	if !resp.Envelope.OK() || data.AccessToken == "" {
		msg := resp.Envelope.Message
		if msg == "" {
			msg = DefaultLoginError
		}
		return &LoginError{Message: msg}
	}

	cred := credential.Credential{
		Token:     data.AccessToken,
		TokenType: strings.TrimSpace(data.TokenType),
	}
	if cred.TokenType == "" {
		cred.TokenType = credential.DefaultTokenType
	}
	if err := s.creds.Save(ctx, cred); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// LogoutServer tells the server to revoke the token, ignoring any failure,
// then clears the local credential. Only the local step can fail.
func (s *Session) LogoutServer(ctx context.Context) error {
	if _, err := s.client.Post(ctx, LogoutPath, nil); err != nil {
		util.Debugf("server logout ignored: %v", err)
	}
	return s.LogoutLocal(ctx)
}

// LogoutLocal clears the persisted credential
func (s *Session) LogoutLocal(ctx context.Context) error {
	err := s.creds.Clear(ctx)
	audit.Log(audit.NewEvent("", "session", audit.OpLogout).WithSource(s.Source).WithResult(err))
	if err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a token is present. A credential that
// cannot be read counts as absent.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	c, err := s.creds.Load(ctx)
	if err != nil {
		util.Debugf("loading credential: %v", err)
		return false
	}
	return c.Present()
}

// Credential returns the persisted credential
func (s *Session) Credential(ctx context.Context) (credential.Credential, error) {
	return s.creds.Load(ctx)
}

// Loading reports whether a login is in flight
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the message of the last failed login
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// IsLoginRejected reports whether err means wrong credentials rather than
// an unreachable server.
func IsLoginRejected(err error) bool {
	var le *LoginError
	if errors.As(err, &le) {
		return true
	}
	status, ok := api.StatusCode(err)
	return ok && (status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity)
}
