package config

import "strings"

// Routes supplies the client-side paths the route guard redirects to and the
// path prefixes it never gates (auth pages and the backend proxy).
type Routes struct{}

var _ RouteConfig = Routes{}

func (Routes) GetLoginPath() string {
	return GetEnv("LLCT_LOGIN_PATH", "/login")
}

func (Routes) GetConfirmEmailPath() string {
	return GetEnv("LLCT_CONFIRM_EMAIL_PATH", "/confirm-email")
}

func (Routes) GetAdminLandingPath() string {
	return GetEnv("LLCT_ADMIN_LANDING_PATH", "/admin")
}

func (Routes) GetInstructorLandingPath() string {
	return GetEnv("LLCT_INSTRUCTOR_LANDING_PATH", "/instructor")
}

func (Routes) GetStudentLandingPath() string {
	return GetEnv("LLCT_STUDENT_LANDING_PATH", "/student")
}

func (Routes) GetExcludedPathPrefixes() []string {
	csv := GetEnv("LLCT_GUARD_EXCLUDED_PREFIXES", "/login,/register,/confirm-email,/auth/callback,/api")
	parts := strings.Split(csv, ",")
	prefixes := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}
