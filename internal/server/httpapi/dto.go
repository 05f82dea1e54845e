package httpapi

type registerRequest struct {
	Name     string `json:"name" binding:"required" label:"Name"`
	Email    string `json:"email" binding:"required,email" label:"Email"`
	Password string `json:"password" binding:"required,min=4,max=20" label:"Password"`
	Avatar   string `json:"avatar" label:"Avatar"`
	Role     string `json:"role" binding:"omitempty,oneof=user admin" label:"Role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=4,max=20" label:"Password"`
}

type updatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" binding:"required" label:"Current Password"`
	Password        string `json:"password" binding:"required,min=4,max=20" label:"Password"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required,eqfield=Password" label:"Confirm password"`
}

type updateUserRequest struct {
	Name   *string `json:"name" label:"Name"`
	Email  *string `json:"email" binding:"omitempty,email" label:"Email"`
	Avatar *string `json:"avatar" label:"Avatar"`
	Role   *string `json:"role" binding:"omitempty,oneof=user admin" label:"Role"`
}

type updateMeRequest struct {
	Name   *string `json:"name" label:"Name"`
	Email  *string `json:"email" binding:"omitempty,email" label:"Email"`
	Avatar *string `json:"avatar" label:"Avatar"`
}

type tokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
