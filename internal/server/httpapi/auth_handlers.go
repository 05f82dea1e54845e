package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	msgLoginFieldsRequired = "Email and password are required."
	msgEmailRequired       = "Email address is required."
	msgTokenSent           = "Token sent to email!"
	msgAccountVerified     = "Your account is now verified."
)

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	accounts *services.AccountService
	minter   *auth.Minter
}

func NewAuthHandler(accounts *services.AccountService, minter *auth.Minter) *AuthHandler {
	return &AuthHandler{accounts: accounts, minter: minter}
}

func (h *AuthHandler) sendToken(c *gin.Context, status int, userID string) {
	token, err := h.minter.Mint(userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, tokenResponse{Status: "success", Token: token})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		fail(c, err)
		return
	}

	h.sendToken(c, http.StatusCreated, user.ID)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		fail(c, common.BadRequest(msgLoginFieldsRequired, common.ErrValidation))
		return
	}

	user, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	h.sendToken(c, http.StatusOK, user.ID)
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		fail(c, common.BadRequest(msgEmailRequired, common.ErrValidation))
		return
	}

	if err := h.accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Status: "success", Message: msgTokenSent})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	user, err := h.accounts.ResetPassword(c.Request.Context(), c.Param("resetToken"), req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	h.sendToken(c, http.StatusOK, user.ID)
}

func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	me, ok := mustUser(c)
	if !ok {
		return
	}

	var req updatePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	user, err := h.accounts.UpdatePassword(c.Request.Context(), me.ID, req.PasswordCurrent, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	h.sendToken(c, http.StatusOK, user.ID)
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if _, err := h.accounts.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, messageResponse{Status: "success", Message: msgAccountVerified})
}
