package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth"
	"github.com/virtualhospital/vhauth/middleware"
)

type authHandler struct {
	engine   *vhauth.Engine
	users    *userDirectory
	identity identityVerifier
	logger   zerolog.Logger
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}

func userView(u *user) echo.Map {
	return echo.Map{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"role":     u.Role,
	}
}

func (h *authHandler) requestLog(c echo.Context) *zerolog.Logger {
	sc, _ := vhauth.SecurityContextFrom(c.Request().Context())
	l := h.logger.With().Str("request_id", sc.RequestID).Logger()
	return &l
}

// issue starts a session for u and resets the caller's rate window for
// action.
func (h *authHandler) issue(c echo.Context, u *user, action vhauth.RateAction) (*vhauth.IssueResult, error) {
	r := c.Request()
	res, err := h.engine.Issue(r.Context(), vhauth.UserClaims{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Provider: u.Provider,
	}, vhauth.IssueOptions{})
	if err != nil {
		return nil, err
	}

	subject, ok := middleware.RateSubjectFrom(r.Context(), action)
	if !ok {
		sc, _ := vhauth.SecurityContextFrom(r.Context())
		subject = middleware.RateSubject{IP: sc.IP, Identifier: middleware.RateIdentifier(r)}
	}
	if err := h.engine.ResetRate(r.Context(), subject.IP, subject.Identifier, action); err != nil {
		h.requestLog(c).Warn().Err(err).Str("action", string(action)).Msg("rate reset failed")
	}
	return res, nil
}

func (h *authHandler) register(c echo.Context) error {
	body := middleware.Body(c.Request())
	username, _ := body["username"].(string)
	email, _ := body["email"].(string)
	plain, _ := body["password"].(string)

	u, err := h.users.Register(c.Request().Context(), username, email, plain)
	if err != nil {
		if errors.Is(err, errUserExists) {
			return fail(c, http.StatusBadRequest, "User with this email already exists")
		}
		h.requestLog(c).Error().Err(err).Msg("registration failed")
		return fail(c, http.StatusInternalServerError, "Error registering user")
	}

	res, err := h.issue(c, u, vhauth.RateRegister)
	if err != nil {
		h.requestLog(c).Error().Err(err).Msg("registration session failed")
		return fail(c, statusFor(err), "Error registering user")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success":      true,
		"message":      "User registered successfully",
		"token":        res.AccessToken,
		"refreshToken": res.RefreshToken,
		"user":         userView(u),
	})
}

func (h *authHandler) login(c echo.Context) error {
	body := middleware.Body(c.Request())
	email, _ := body["email"].(string)
	plain, _ := body["password"].(string)

	u, err := h.users.Authenticate(c.Request().Context(), email, plain)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			return fail(c, http.StatusUnauthorized, "Invalid credentials")
		}
		h.requestLog(c).Error().Err(err).Msg("login failed")
		return fail(c, http.StatusInternalServerError, "Error logging in")
	}

	res, err := h.issue(c, u, vhauth.RateLogin)
	if err != nil {
		h.requestLog(c).Error().Err(err).Msg("login session failed")
		return fail(c, statusFor(err), "Error logging in")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message":      "Login successful",
		"token":        res.AccessToken,
		"refreshToken": res.RefreshToken,
		"user":         userView(u),
	})
}

// socialLogin signs in an identity vouched for by the social provider,
// creating the account on first use.
func (h *authHandler) socialLogin(c echo.Context) error {
	r := c.Request()
	body := middleware.Body(r)
	uid, _ := body["uid"].(string)
	email, _ := body["email"].(string)
	displayName, _ := body["displayName"].(string)

	if err := h.identity.VerifyIdentity(r.Context(), uid, email); err != nil {
		h.requestLog(c).Warn().Err(err).Msg("social identity rejected")
		return fail(c, http.StatusUnauthorized, "Invalid social identity")
	}

	u, created, err := h.users.UpsertSocial(r.Context(), uid, email, displayName)
	if err != nil {
		if errors.Is(err, errIdentityConflict) {
			return fail(c, http.StatusUnauthorized, "Invalid social identity")
		}
		h.requestLog(c).Error().Err(err).Msg("social login failed")
		return fail(c, http.StatusInternalServerError, "Firebase authentication failed")
	}

	res, err := h.issue(c, u, vhauth.RateLogin)
	if err != nil {
		h.requestLog(c).Error().Err(err).Msg("social login session failed")
		return fail(c, statusFor(err), "Firebase authentication failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message":      "Firebase login successful",
		"token":        res.AccessToken,
		"refreshToken": res.RefreshToken,
		"user":         userView(u),
		"isNewUser":    created,
	})
}

func (h *authHandler) refresh(c echo.Context) error {
	r := c.Request()
	body := middleware.Body(r)
	token, _ := body["refreshToken"].(string)
	if token == "" {
		return fail(c, http.StatusBadRequest, "Refresh token is required")
	}

	sc, _ := vhauth.SecurityContextFrom(r.Context())
	pair, err := h.engine.Refresh(r.Context(), token, sc.DeviceFingerprint)
	if err != nil {
		if errors.Is(err, vhauth.ErrStoreUnavailable) {
			h.requestLog(c).Error().Err(err).Msg("refresh unavailable")
			return fail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
		}
		return fail(c, http.StatusUnauthorized, "Invalid or expired refresh token")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message":      "Token refreshed successfully",
		"token":        pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *authHandler) logout(c echo.Context) error {
	auth, _ := middleware.AuthResultFromContext(c.Request().Context())
	if _, err := h.engine.Invalidate(c.Request().Context(), auth.SessionID); err != nil {
		h.requestLog(c).Error().Err(err).Msg("logout failed")
		return fail(c, statusFor(err), "Error logging out")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Logged out successfully"})
}

func (h *authHandler) logoutAll(c echo.Context) error {
	auth, _ := middleware.AuthResultFromContext(c.Request().Context())
	n, err := h.engine.InvalidateAll(c.Request().Context(), auth.UserID)
	if err != nil {
		h.requestLog(c).Error().Err(err).Msg("logout-all failed")
		return fail(c, statusFor(err), "Error logging out from all sessions")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("Logged out from %d sessions", n),
	})
}

func (h *authHandler) sessions(c echo.Context) error {
	auth, _ := middleware.AuthResultFromContext(c.Request().Context())
	list, err := h.engine.ListSessions(c.Request().Context(), auth.UserID)
	if err != nil {
		h.requestLog(c).Error().Err(err).Msg("list sessions failed")
		return fail(c, statusFor(err), "Error fetching sessions")
	}
	if list == nil {
		list = []vhauth.SessionInfo{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "sessions": list})
}

func statusFor(err error) int {
	if errors.Is(err, vhauth.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
