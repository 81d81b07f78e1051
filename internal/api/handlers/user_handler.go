package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/auth"
	"egharbari/api/internal/config"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
)

// UserHandler serves registration, login, the caller's profile and admin user management.
type UserHandler struct {
	cfg   *config.Config
	users services.IUserService
}

func NewUserHandler(cfg *config.Config, users services.IUserService) *UserHandler {
	return &UserHandler{cfg: cfg, users: users}
}

func (h *UserHandler) issueToken(c *gin.Context, status int, user *models.User) {
	token, err := auth.GenerateJWT(user, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		respondError(c, apperrors.Unexpected(err, "failed to issue token"))
		return
	}
	c.JSON(status, gin.H{"token": token, "user": user})
}

// Register handles POST /auth/register.
func (h *UserHandler) Register(c *gin.Context) {
	var input services.RegisterInput
	if !bindJSON(c, &input) {
		return
	}
	user, err := h.users.Register(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueToken(c, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(c, apperrors.Validation("email and password are required"))
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueToken(c, http.StatusOK, user)
}

// Me handles GET /me.
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	user, err := h.users.FindByID(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe handles PUT /me.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var input services.ProfileInput
	if !bindJSON(c, &input) {
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), actor.UserID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles PUT /me/password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
}

// AdminList handles GET /admin/users.
func (h *UserHandler) AdminList(c *gin.Context) {
	filter := services.UserFilter{Role: models.Role(c.Query("role")), Query: c.Query("q")}
	page, err := h.users.List(c.Request.Context(), filter, pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// targetUser parses :id and refuses operations an admin would apply to their own account.
func (h *UserHandler) targetUser(c *gin.Context) (models.Actor, bool) {
	actor, ok := mustActor(c)
	if !ok {
		return models.Actor{}, false
	}
	id, ok := pathID(c, "id", "user")
	if !ok {
		return models.Actor{}, false
	}
	if id == actor.UserID {
		respondError(c, apperrors.Validation("you cannot change your own account here"))
		return models.Actor{}, false
	}
	return models.Actor{UserID: id}, true
}

// SetRole handles PATCH /admin/users/:id/role.
func (h *UserHandler) SetRole(c *gin.Context) {
	target, ok := h.targetUser(c)
	if !ok {
		return
	}
	var req struct {
		Role models.Role `json:"role"`
	}
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.SetRole(c.Request.Context(), target.UserID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SetActive handles PATCH /admin/users/:id/active.
func (h *UserHandler) SetActive(c *gin.Context) {
	target, ok := h.targetUser(c)
	if !ok {
		return
	}
	value, ok := toggleRequest{}.bind(c)
	if !ok {
		return
	}
	user, err := h.users.SetActive(c.Request.Context(), target.UserID, value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Delete handles DELETE /admin/users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	target, ok := h.targetUser(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), target.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}
