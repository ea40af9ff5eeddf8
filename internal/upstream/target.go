package upstream

import (
	"fmt"
	"net/url"
	"strings"
)

func buildTargetURL(baseURL, path, rawQuery string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("upstream url %q needs a scheme and host", baseURL)
	}
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if rawQuery != "" {
		u.RawQuery = rawQuery
	}
	return u.String(), nil
}
