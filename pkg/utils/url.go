package utils

import (
	"fmt"
	"net/url"
)

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// ResolveTarget turns a target row's url column into a fetchable absolute URL.
// A nil base leaves the value untouched but still requires it to be absolute.
func ResolveTarget(base *url.URL, raw string) (string, error) {
	if base != nil {
		return ToAbsoluteURL(base, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("url %q is relative and no base url is configured", raw)
	}
	return u.String(), nil
}
