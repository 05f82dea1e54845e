package services

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// Messages shown to API callers.
const (
	MsgEmailExists           = "Email is already exists."
	MsgIncorrectCredentials  = "Incorrect email or password."
	MsgNoUserWithEmail       = "There is no user with email address."
	MsgEmailSendFailed       = "There was an error sending the email."
	MsgResetTokenInvalid     = "Token is invalid or has expired."
	MsgCurrentPasswordWrong  = "Current password is incorrect."
	MsgVerifyTokenInvalid    = "Token is invalid or already verified."
	MsgNoUserWithID          = "No user found with this id."
	MsgUserNoLongerExists    = "The user belonging to this token does no longer exist."
	MsgNotAnImage            = "Not an image! Please upload an image."
	MsgImageUploadFailed     = "Image Upload failed. Please try again."
	MsgImageTooLarge         = "Image is too large! Please upload an image up to 5 MB."
	MsgAvatarUploadsDisabled = "Avatar uploads are not configured."
)

func errDuplicateEmail() error {
	return common.BadRequest(MsgEmailExists, common.ErrDuplicateEmail)
}

func errDeliveryFailed(cause error) error {
	return common.NewAppError(http.StatusInternalServerError, MsgEmailSendFailed,
		fmt.Errorf("%w: %v", common.ErrEmailDeliveryFailed, cause))
}

func errInvalidID(id string) error {
	return common.BadRequest("Invalid id: "+id, common.ErrValidation)
}
