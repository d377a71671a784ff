package callback

import (
	"net/url"
)

// Payload is the redirect payload the identity provider delivers to the
// callback page. Providers put tokens in the URL fragment so they never hit
// server logs; some flows fall back to query parameters instead.
type Payload struct {
	AccessToken  string
	RefreshToken string
	Type         string
	Error        string
	ErrorDesc    string
	FromFragment bool
}

// parsePayload reads the fragment first and only falls back to the query
// string when the fragment carries nothing recognizable. ParseQuery does the
// percent-decoding, so it must see the fragment in escaped form.
func parsePayload(u *url.URL) Payload {
	if p, ok := parseFragment(u.EscapedFragment()); ok {
		return p
	}
	return parseQuery(u.Query())
}

func parseFragment(fragment string) (Payload, bool) {
	if fragment == "" {
		return Payload{}, false
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return Payload{}, false
	}
	p := Payload{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
		Type:         values.Get("type"),
		Error:        values.Get("error"),
		ErrorDesc:    values.Get("error_description"),
		FromFragment: true,
	}
	if p.AccessToken == "" && p.Error == "" && p.Type == "" {
		return Payload{}, false
	}
	return p, true
}

func parseQuery(values url.Values) Payload {
	return Payload{
		AccessToken: values.Get("token"),
		Type:        values.Get("type"),
		Error:       values.Get("error"),
		ErrorDesc:   values.Get("error_description"),
	}
}
