package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted; bools
// are pointers so that an absent key keeps the current value.
type JsonConfig struct {
	Env              string   `json:"env"`
	AppName          string   `json:"app_name"`
	BaseURL          string   `json:"base_url"`
	EndpointAddrHTTP string   `json:"endpoint_addr_http"`
	EndpointAddrGRPC string   `json:"endpoint_addr_grpc"`
	CORSAllowOrigins []string `json:"cors_allow_origins"`

	DatabaseDSN string `json:"database_dsn"`

	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	PasswordResetTokenValidity  timex.Duration `json:"password_reset_token_validity"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password"`
	SMTPFrom     string `json:"smtp_from"`
	SMTPSSL      *bool  `json:"smtp_ssl"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	RedisAddr     string         `json:"redis_addr"`
	RedisPassword string         `json:"redis_password"`
	RedisDB       int            `json:"redis_db"`
	UserCacheTTL  timex.Duration `json:"user_cache_ttl"`

	RestrictAdminRoutes  *bool `json:"restrict_admin_routes"`
	RequireVerifiedEmail *bool `json:"require_verified_email"`
}

// parseJson loads configuration values from a JSON file into config.
//
// The file path comes from the -c/-config flags or, failing that, the
// CONFIG environment variable. Without a path nothing is loaded. Keys that
// are absent or zero in the file leave the current value alone. An
// unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.Env, c.Env)
	setString(&config.AppName, c.AppName)
	setString(&config.BaseURL, c.BaseURL)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	if len(c.CORSAllowOrigins) > 0 {
		config.CORSAllowOrigins = c.CORSAllowOrigins
	}
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.PasswordResetTokenValidity.Duration != 0 {
		config.PasswordResetTokenValidity = c.PasswordResetTokenValidity.Duration
	}
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setBool(&config.SMTPSSL, c.SMTPSSL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	if c.UserCacheTTL.Duration != 0 {
		config.UserCacheTTL = c.UserCacheTTL.Duration
	}
	setBool(&config.RestrictAdminRoutes, c.RestrictAdminRoutes)
	setBool(&config.RequireVerifiedEmail, c.RequireVerifiedEmail)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
