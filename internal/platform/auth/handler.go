package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc AuthService }

// RegisterRoutes mounts /login on public and the account endpoints on
// protected, which must already run RequireAuth. Account changes need adminOnly.
func RegisterRoutes(public, protected gin.IRoutes, svc AuthService, adminOnly gin.HandlerFunc) {
	h := &AuthHandler{svc: svc}
	public.POST("/login", h.Login)

	protected.GET("/me", h.Me)
	protected.POST("/accounts", adminOnly, h.Register)
	protected.DELETE("/accounts/:id", adminOnly, h.DeleteAccount)
	protected.PATCH("/accounts/:id", adminOnly, h.ChangeUsername) // “ユーザー名変更” = id変更
}

func errorJSON(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid request")
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrDisabled) {
			errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "IDまたはパスワードが間違っています")
			return
		}
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Login successful",
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	id, role := CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{"id": id, "role": role})
}

type RegisterRequest struct {
	ID       string  `json:"id" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Role     *string `json:"role,omitempty"` // 未指定なら librarian
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid request")
		return
	}

	role := RoleLibrarian
	if req.Role != nil && *req.Role != "" {
		role = *req.Role
	}

	err := h.svc.Register(c.Request.Context(), req.ID, req.Password, role)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"message": "registered"})
	case errors.Is(err, ErrAlreadyExists):
		errorJSON(c, http.StatusConflict, "ALREADY_EXISTS", "ID already exists")
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrWeakPassword):
		errorJSON(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	default:
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "register failed")
	}
}

func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	if self, _ := CurrentUser(c); self == id {
		errorJSON(c, http.StatusBadRequest, "INVALID_ARGUMENT", "cannot delete the signed-in account")
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			errorJSON(c, http.StatusNotFound, "NOT_FOUND", "not found")
			return
		}
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "delete failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type ChangeUsernameRequest struct {
	NewID string `json:"new_id" binding:"required"`
}

func (h *AuthHandler) ChangeUsername(c *gin.Context) {
	oldID := c.Param("id")

	var req ChangeUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid request")
		return
	}

	err := h.svc.ChangeID(c.Request.Context(), oldID, req.NewID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "username changed"})
	case errors.Is(err, ErrNotFound):
		errorJSON(c, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.Is(err, ErrAlreadyExists):
		errorJSON(c, http.StatusConflict, "ALREADY_EXISTS", "new id already exists")
	default:
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "change id failed")
	}
}
