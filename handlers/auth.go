package handlers

import (
	"errors"
	"net/http"

	"roadalert/database"
	"roadalert/middleware"
	"roadalert/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves registration, login and profile lookup.
type AuthHandler struct {
	auth *database.AuthService
}

func NewAuthHandler(auth *database.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
			return
		}
		log.Errorf("Failed to register user: %v", err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.AuthResponse{
		Success: true,
		Token:   token,
		User:    user,
		Message: "Registration successful",
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: err.Error()})
			return
		}
		log.Errorf("Failed to log user in: %v", err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		Success: true,
		Token:   token,
		User:    user,
		Message: "Login successful",
	})
}

func (h *AuthHandler) Profile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "unauthorized"})
		return
	}

	user, err := h.auth.Profile(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("Failed to load profile for user %d: %v", userID, err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{Success: true, User: user})
}
