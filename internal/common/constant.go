package common

// AuthorizationHeaderName is the HTTP header carrying the session token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the session token in the Authorization header.
const BearerPrefix = "Bearer"

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultAvatar is assigned to users created without an avatar.
const DefaultAvatar = "default.jpeg"
