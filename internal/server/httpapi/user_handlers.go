package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/avatars"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
)

const msgAvatarRequired = "Please choose an image to upload."

// maxAvatarRequest bounds the whole multipart body: the image plus form overhead.
const maxAvatarRequest = avatars.DefaultMaxSize + 1<<20

// UserHandler serves the /users routes.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) List(c *gin.Context) {
	all, err := h.users.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Create(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	u, err := h.users.Create(c.Request.Context(), services.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
		Role:     req.Role,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	u, err := h.users.Update(c.Request.Context(), c.Param("id"), services.UpdateUserInput{
		Name:   req.Name,
		Email:  req.Email,
		Avatar: req.Avatar,
		Role:   req.Role,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) MyProfile(c *gin.Context) {
	me, ok := mustUser(c)
	if !ok {
		return
	}

	u, err := h.users.Profile(c.Request.Context(), me.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	me, ok := mustUser(c)
	if !ok {
		return
	}

	var req updateMeRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	u, err := h.users.UpdateMe(c.Request.Context(), me.ID, services.UpdateMeInput{
		Name:   req.Name,
		Email:  req.Email,
		Avatar: req.Avatar,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UploadAvatar accepts a multipart "avatar" image for the current user.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	me, ok := mustUser(c)
	if !ok {
		return
	}

	if c.Request.ContentLength > maxAvatarRequest {
		fail(c, common.BadRequest(services.MsgImageTooLarge, avatars.ErrTooLarge))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarRequest)

	fh, err := c.FormFile("avatar")
	if err != nil {
		fail(c, common.BadRequest(msgAvatarRequired, common.ErrValidation))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	u, err := h.users.UploadAvatar(c.Request.Context(), me.ID, fh.Header.Get("Content-Type"), f, fh.Size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
