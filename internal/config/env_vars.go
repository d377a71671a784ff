package config

import (
	"os"
)

const (
	apiBaseURLVar  = "LLCT_API_BASE_URL"
	authBaseURLVar = "LLCT_AUTH_BASE_URL"
	appNameVar     = "LLCT_APP_NAME"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetAPIBaseURL returns the base URL of the backend API (e.g. "https://api.llct.dev")
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "")
}

// GetAuthBaseURL returns the base URL of the identity-provider service
func (EnvVars) GetAuthBaseURL() string {
	return GetEnv(authBaseURLVar, "")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "LLCT Client")
}

// GetOAuthProvider returns the social-login provider used for backend token bridging
func (EnvVars) GetOAuthProvider() string {
	return GetEnv("LLCT_OAUTH_PROVIDER", "google")
}

func (EnvVars) GetTokenStorePath() string {
	return GetEnv("LLCT_TOKEN_STORE_PATH", "./data/tokens.db")
}

func (EnvVars) GetTokenStoreSecret() string {
	return GetEnv("LLCT_TOKEN_STORE_SECRET", "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
