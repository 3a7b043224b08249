package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shelftrack/shelftrack/internal/authsvc"
	"github.com/shelftrack/shelftrack/internal/logging"
)

type AuthHandler struct {
	Auth *authsvc.Service
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func tokensJSON(t *authsvc.Tokens) echo.Map {
	return echo.Map{
		"identity":      t.Identity,
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"access_exp":    t.AccessExp,
		"refresh_exp":   t.RefreshExp,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if _, err := h.Auth.SignUp(ctx, req.Email, req.Password); err != nil {
		l.Warn("register_failed", "error", err)
		return errorJSON(c, err)
	}

	tok, err := h.Auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		l.Error("register_signin_failed", "error", err)
		return errorJSON(c, err)
	}

	l.Info("register_success", "user_id", tok.Identity)
	return c.JSON(http.StatusCreated, tokensJSON(tok))
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	tok, err := h.Auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		l.Warn("login_failed", "error", err)
		return errorJSON(c, err)
	}

	l.Info("login_success", "user_id", tok.Identity)
	return c.JSON(http.StatusOK, tokensJSON(tok))
}

func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Auth.SignOut(ctx, req.RefreshToken); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	tok, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, tokensJSON(tok))
}
