package auth

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/binhbb2204/mangashelf/internal/user"
	"github.com/binhbb2204/mangashelf/pkg/apperror"
	"github.com/binhbb2204/mangashelf/pkg/logger"
	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/binhbb2204/mangashelf/pkg/utils"
	"github.com/gin-gonic/gin"
)

const minUsernameLength = 3

const invalidCredentials = "Invalid username or password"

type Handler struct {
	users    UserRepository
	sessions *SessionManager
	log      *logger.Logger
}

func NewHandler(users UserRepository, sessions *SessionManager) *Handler {
	return &Handler{
		users:    users,
		sessions: sessions,
		log:      logger.GetLogger().WithContext("component", "auth"),
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.Validation(err.Error()))
		return
	}

	username := strings.TrimSpace(req.Username)
	if utf8.RuneCountInString(username) < minUsernameLength {
		apperror.Respond(c, apperror.Validation("username must be at least 3 characters"))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.users.FindByUsername(ctx, username); err == nil {
		apperror.Respond(c, apperror.Conflict("Username taken"))
		return
	} else if !errors.Is(err, user.ErrNotFound) {
		apperror.Respond(c, apperror.Internal("Failed to create user", err))
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		apperror.Respond(c, apperror.Internal("Failed to hash password", err))
		return
	}

	u, err := h.users.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			apperror.Respond(c, apperror.Conflict("Username taken"))
			return
		}
		apperror.Respond(c, apperror.Internal("Failed to create user", err))
		return
	}

	h.log.Info("user_registered", "user_id", u.ID, "username", u.Username)
	c.JSON(http.StatusOK, models.NewUserView(u))
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.Validation(err.Error()))
		return
	}

	u, err := h.users.FindByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			apperror.Respond(c, apperror.Unauthorized(invalidCredentials))
			return
		}
		apperror.Respond(c, apperror.Internal("Failed to look up user", err))
		return
	}

	if !h.users.CheckPassword(u, req.Password) {
		h.log.Warn("login_failed", "username", u.Username)
		apperror.Respond(c, apperror.Unauthorized(invalidCredentials))
		return
	}

	if err := h.sessions.Issue(c, u.ID); err != nil {
		apperror.Respond(c, apperror.Internal("Failed to issue session", err))
		return
	}

	h.log.Info("user_logged_in", "user_id", u.ID)
	c.JSON(http.StatusOK, models.NewUserView(u))
}

func (h *Handler) Logout(c *gin.Context) {
	h.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) UserInfo(c *gin.Context) {
	u := CurrentUser(c)
	if u == nil {
		apperror.Respond(c, apperror.Unauthorized("Missing authentication"))
		return
	}
	c.JSON(http.StatusOK, models.NewUserView(u))
}

func (h *Handler) ChangePassword(c *gin.Context) {
	u := CurrentUser(c)
	if u == nil {
		apperror.Respond(c, apperror.Unauthorized("Missing authentication"))
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.Validation(err.Error()))
		return
	}

	if !h.users.CheckPassword(u, req.CurrentPassword) {
		apperror.Respond(c, apperror.Unauthorized("Invalid credentials"))
		return
	}

	if err := h.users.SetPassword(c.Request.Context(), u, req.NewPassword); err != nil {
		apperror.Respond(c, apperror.Internal("Failed to update password", err))
		return
	}

	h.log.Info("password_changed", "user_id", u.ID)
	c.JSON(http.StatusOK, models.NewUserView(u))
}
