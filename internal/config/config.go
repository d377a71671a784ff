package config

import "errors"

type Config interface {
	EnvConfig
	RouteConfig
}

type EnvConfig interface {
	GetAPIBaseURL() string
	GetAuthBaseURL() string
	GetAppName() string
	GetOAuthProvider() string
	GetTokenStorePath() string
	GetTokenStoreSecret() string
	GetEnv() string
}

type RouteConfig interface {
	GetLoginPath() string
	GetConfirmEmailPath() string
	GetAdminLandingPath() string
	GetInstructorLandingPath() string
	GetStudentLandingPath() string
	GetExcludedPathPrefixes() []string
}

type mainConfig struct {
	EnvVars
	Routes
}

func New() Config {
	return mainConfig{}
}

// Validate checks that the externally supplied base URLs are present.
// Only presence is checked; the values are owned by the environment.
func Validate(c Config) error {
	if c.GetAPIBaseURL() == "" {
		return errors.New("API base URL is required")
	}
	if c.GetAuthBaseURL() == "" {
		return errors.New("auth service base URL is required")
	}
	return nil
}
