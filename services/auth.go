package services

import (
	"context"
	"errors"

	"github.com/parley-im/parley-go/chat"
)

type loginForm struct {
	UserID   string `json:"userId"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	Remember bool   `json:"remember,omitempty"`
}

type loginResponse struct {
	UserID  string `json:"userId"`
	Token   string `json:"token"`
	Name    string `json:"name,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
	IsStaff bool   `json:"isStaff,omitempty"`
	IsCross bool   `json:"isCross,omitempty"`
}

func (r *loginResponse) authInfo(endpoint string) *chat.AuthInfo {
	return &chat.AuthInfo{
		Endpoint: endpoint,
		UserID:   r.UserID,
		Token:    r.Token,
		Name:     r.Name,
		Avatar:   r.Avatar,
		IsStaff:  r.IsStaff,
		IsCross:  r.IsCross,
	}
}

// Login exchanges a password for a session token. Rejected credentials
// surface as chat.ErrInvalidPassword.
func Login(ctx context.Context, endpoint, userID, password string) (*chat.AuthInfo, error) {
	return login(ctx, endpoint, &loginForm{UserID: userID, Password: password, Remember: true})
}

// LoginWithToken validates a previously issued token and refreshes the
// profile attached to it.
func LoginWithToken(ctx context.Context, endpoint, userID, token string) (*chat.AuthInfo, error) {
	return login(ctx, endpoint, &loginForm{UserID: userID, Token: token})
}

func login(ctx context.Context, endpoint string, form *loginForm) (*chat.AuthInfo, error) {
	s := New(endpoint, "")
	var resp loginResponse
	if err := s.post(ctx, "/auth/login", form, &resp); err != nil {
		// During login a 401 means bad credentials, not an expired session.
		if errors.Is(err, chat.ErrTokenExpired) || errors.Is(err, chat.ErrForbidden) {
			return nil, chat.ErrInvalidPassword
		}
		return nil, err
	}
	return resp.authInfo(endpoint), nil
}

// Signup registers a new account and signs it in.
func Signup(ctx context.Context, endpoint, userID, password string) (*chat.AuthInfo, error) {
	s := New(endpoint, "")
	var resp loginResponse
	if err := s.post(ctx, "/auth/signup", &loginForm{UserID: userID, Password: password}, &resp); err != nil {
		return nil, err
	}
	return resp.authInfo(endpoint), nil
}

// Logout invalidates the session token server-side.
func (s *Service) Logout(ctx context.Context) error {
	return s.post(ctx, "/auth/logout", nil, nil)
}
