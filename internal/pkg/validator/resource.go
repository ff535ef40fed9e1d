package validator

import (
	"errors"
	"net/url"
	"regexp"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

func IsSlug(slug string) error {
	if slug == "" {
		return errors.New("slug is required")
	}
	if !slugPattern.MatchString(slug) {
		return errors.New("slug must be lowercase letters, digits and dashes")
	}
	return nil
}

// IsHTTPURL checks that raw is an absolute http(s) URL with a host. name is
// used in the returned message.
func IsHTTPURL(name, raw string) error {
	if raw == "" {
		return errors.New(name + " is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid " + name + " format")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New(name + " must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New(name + " must include a host")
	}

	return nil
}
