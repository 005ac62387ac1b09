package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/devhub-auth/internal/session"
)

// SessionService is the part of *session.Manager the auth endpoints use.
type SessionService interface {
	Register(ctx context.Context, in session.RegisterInput) (session.AuthResult, error)
	Login(ctx context.Context, email, password string) (session.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (session.Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
	RequestPasswordReset(ctx context.Context, email string) (session.ResetTicket, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

// AuthHandler bundles the session endpoints under /v1/auth.
type AuthHandler struct {
	sessions SessionService
	// exposeResetToken returns the raw reset token in the forgot-password
	// response. Only for development, where no mailer is wired.
	exposeResetToken bool
}

func NewAuthHandler(sessions SessionService, exposeResetToken bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, exposeResetToken: exposeResetToken}
}

type verifyResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

type forgotPasswordResponse struct {
	Message    string     `json:"message"`
	ResetToken string     `json:"reset_token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Register: POST /v1/auth/register. Creates the user and returns a session.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.sessions.Register(c.Request().Context(), session.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Profile:  req.profileFields.model(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Login: POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Refresh: POST /v1/auth/refresh. With rotation on, the response carries a
// new refresh token and the presented one is spent.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tokens, err := h.sessions.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

// Logout: POST /v1/auth/logout. Always 204 for a well-formed body.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.sessions.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll: POST /v1/auth/logout-all (authenticated). Revokes every
// session of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.sessions.LogoutAll(c.Request().Context(), id.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Verify: GET /v1/auth/verify (authenticated). Lets other services check an
// access token without sharing the signing secret.
func (h *AuthHandler) Verify(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, verifyResponse{
		UserID:    id.UserID,
		Email:     id.Email,
		IssuedAt:  id.IssuedAt,
		ExpiresAt: id.ExpiresAt,
	})
}

// ForgotPassword: POST /v1/auth/password/forgot. The answer is the same
// whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ticket, err := h.sessions.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	resp := forgotPasswordResponse{Message: "if the account exists, a reset token has been issued"}
	if h.exposeResetToken && ticket.Token != "" {
		resp.ResetToken = ticket.Token
		resp.ExpiresAt = &ticket.ExpiresAt
	}
	return c.JSON(http.StatusAccepted, resp)
}

// ResetPassword: POST /v1/auth/password/reset.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.sessions.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
